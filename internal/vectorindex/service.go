package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

const DefaultTopK = 5

// writeReserve is the part of a deadline-bound Index call kept back from
// the embedder so the point write still has time to run.
const writeReserve = 5 * time.Second

var (
	ErrDimensionMismatch  = errors.New("collection vector size does not match embedding dimension")
	ErrCollectionNotFound = errors.New("collection not found")
)

// Point is one index entry
type Point struct {
	ID      uint64
	Vector  []float32
	Payload map[string]interface{}
}

// ScoredPoint is a search result as returned by the backend
type ScoredPoint struct {
	ID      uint64
	Score   float32
	Payload map[string]interface{}
}

// Hit is a search result mapped back to its catalog entity
type Hit struct {
	EntityID   int64             `json:"entityId"`
	EntityType models.EntityType `json:"type"`
	Name       string            `json:"name,omitempty"`
	Score      float32           `json:"score"`
}

// Backend is the wire protocol of the vector store.
type Backend interface {
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
	CollectionVectorSize(ctx context.Context, name string) (uint64, error)
	Upsert(ctx context.Context, collection string, point Point) error
	Delete(ctx context.Context, collection string, ids ...uint64) error
	Search(ctx context.Context, collection string, vector []float32, limit uint64) ([]ScoredPoint, error)
}

// Embedder turns text into a vector of a fixed dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, bool)
	Dimension() int
}

// Service owns collection lifecycle, point writes and similarity search.
type Service struct {
	backend  Backend
	embedder Embedder
	logger   *zap.Logger

	mu      sync.Mutex
	ensured map[string]bool
}

func NewService(backend Backend, embedder Embedder) *Service {
	return &Service{
		backend:  backend,
		embedder: embedder,
		logger:   util.GetLogger(),
		ensured:  make(map[string]bool),
	}
}

// PointID derives the point id from the entity type and id, so that
// entities of different types sharing a numeric id do not overwrite each other.
func PointID(t models.EntityType, id int64) uint64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s:%d", t, id)
	return h.Sum64()
}

// EnsureCollection creates the collection with the configured vector size
// if it is missing. An existing collection of another size is an error.
func (s *Service) EnsureCollection(ctx context.Context, name string) error {
	ctx, span := util.StartSpan(ctx, "VectorIndex.EnsureCollection")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensured[name] {
		return nil
	}

	exists, err := s.collectionExists(ctx, name)
	if err != nil {
		return err
	}

	if !exists {
		size := uint64(s.embedder.Dimension())
		if err := s.backend.CreateCollection(ctx, name, size); err != nil {
			// another instance may have created it in the meantime
			if exists, checkErr := s.collectionExists(ctx, name); checkErr != nil || !exists {
				return fmt.Errorf("failed to create collection %s: %w", name, err)
			}
		} else {
			s.logger.Info("Vector collection created",
				zap.String("collection", name),
				zap.Uint64("vector_size", size))
		}
	}

	if err := s.checkVectorSize(ctx, name); err != nil {
		return err
	}

	s.ensured[name] = true
	return nil
}

func (s *Service) collectionExists(ctx context.Context, name string) (bool, error) {
	names, err := s.backend.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) checkVectorSize(ctx context.Context, name string) error {
	size, err := s.backend.CollectionVectorSize(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to read collection %s: %w", name, err)
	}
	if want := uint64(s.embedder.Dimension()); size != want {
		return fmt.Errorf("%w: collection %s has %d, configured %d", ErrDimensionMismatch, name, size, want)
	}
	return nil
}

// forget drops the cached existence check so the next EnsureCollection
// looks at the backend again.
func (s *Service) forget(name string) {
	s.mu.Lock()
	delete(s.ensured, name)
	s.mu.Unlock()
}

// Upsert writes one point, replacing any point with the same id. A collection
// removed behind the service's back is recreated and the write retried once.
func (s *Service) Upsert(ctx context.Context, collection string, id uint64, vector []float32, payload map[string]interface{}) error {
	ctx, span := util.StartSpan(ctx, "VectorIndex.Upsert")
	defer span.End()

	point := Point{ID: id, Vector: vector, Payload: payload}
	err := s.backend.Upsert(ctx, collection, point)
	if errors.Is(err, ErrCollectionNotFound) {
		s.logger.Warn("Vector collection disappeared, recreating", zap.String("collection", collection))
		s.forget(collection)
		if err = s.EnsureCollection(ctx, collection); err == nil {
			err = s.backend.Upsert(ctx, collection, point)
		}
	}
	if err != nil {
		util.RecordError(span, err)
		return fmt.Errorf("failed to upsert point %d: %w", id, err)
	}
	return nil
}

// Delete removes the point of one entity. Missing points and missing
// collections are not errors.
func (s *Service) Delete(ctx context.Context, collection string, t models.EntityType, entityID int64) error {
	ctx, span := util.StartSpan(ctx, "VectorIndex.Delete")
	defer span.End()

	exists, err := s.collectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	if err := s.backend.Delete(ctx, collection, PointID(t, entityID)); err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", t, entityID, err)
	}
	return nil
}

// Index embeds a search document and upserts it. An unavailable embedding
// provider degrades to a zero vector; the point is still written.
func (s *Service) Index(ctx context.Context, collection string, doc models.SearchDocument) (degraded bool, err error) {
	ctx, span := util.StartSpan(ctx, "VectorIndex.Index")
	defer span.End()

	if err := s.EnsureCollection(ctx, collection); err != nil {
		return false, err
	}

	embedCtx, cancel := embedContext(ctx)
	vector, degraded := s.embedder.Embed(embedCtx, doc.Text)
	cancel()

	err = s.Upsert(ctx, collection, PointID(doc.EntityType, doc.EntityID), vector, Payload(doc))
	return degraded, err
}

// embedContext shortens ctx's deadline by the write reserve, or by a quarter
// of the remaining time when that is less than four reserves.
func embedContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	reserve := writeReserve
	if remaining := time.Until(deadline); remaining < 4*writeReserve {
		reserve = remaining / 4
	}
	return context.WithDeadline(ctx, deadline.Add(-reserve))
}

// Payload builds the stored metadata of a document.
func Payload(doc models.SearchDocument) map[string]interface{} {
	payload := map[string]interface{}{
		"entity_id": doc.EntityID,
		"type":      string(doc.EntityType),
		"text":      doc.Text,
	}
	if doc.Name != "" {
		payload["name"] = doc.Name
	}
	if doc.Price != nil {
		payload["price"] = doc.Price.InexactFloat64()
	}
	if doc.City != "" {
		payload["city"] = doc.City
	}
	return payload
}

// Search embeds queryText and returns the topK nearest entities.
func (s *Service) Search(ctx context.Context, collection, queryText string, topK int) ([]Hit, error) {
	ctx, span := util.StartSpan(ctx, "VectorIndex.Search")
	defer span.End()

	if topK <= 0 {
		topK = DefaultTopK
	}

	exists, err := s.collectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []Hit{}, nil
	}

	vector, degraded := s.embedder.Embed(ctx, queryText)
	if degraded {
		// a zero query vector has no direction under cosine distance
		s.logger.Warn("Search skipped, query embedding unavailable", zap.String("collection", collection))
		return []Hit{}, nil
	}

	points, err := s.backend.Search(ctx, collection, vector, uint64(topK))
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", collection, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hit, ok := hitFromPayload(p)
		if !ok {
			s.logger.Warn("Skipping point with unreadable payload", zap.Uint64("point_id", p.ID))
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func hitFromPayload(p ScoredPoint) (Hit, bool) {
	hit := Hit{Score: p.Score}

	switch id := p.Payload["entity_id"].(type) {
	case int64:
		hit.EntityID = id
	case float64:
		hit.EntityID = int64(id)
	default:
		return hit, false
	}

	typ, _ := p.Payload["type"].(string)
	entityType, err := models.ParseEntityType(typ)
	if err != nil {
		return hit, false
	}
	hit.EntityType = entityType
	hit.Name, _ = p.Payload["name"].(string)
	return hit, true
}
