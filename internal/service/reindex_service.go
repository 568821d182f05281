package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

const reindexLockTTL = 30 * time.Minute

type CatalogSource interface {
	ListActiveDocuments(ctx context.Context, t models.EntityType) ([]models.SearchDocument, error)
}

type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey, token string) error
}

// TypeReport is the outcome of resyncing one catalog type
type TypeReport struct {
	Indexed  int    `json:"indexed"`
	Degraded int    `json:"degraded"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
}

// SyncReport summarises a full resync
type SyncReport struct {
	Collection string                           `json:"collection"`
	Types      map[models.EntityType]TypeReport `json:"types"`
	Duration   time.Duration                    `json:"-"`
}

// Total returns the number of points written
func (r *SyncReport) Total() int {
	n := 0
	for _, t := range r.Types {
		n += t.Indexed
	}
	return n
}

// ReindexService rebuilds the vector index from the catalog tables
type ReindexService struct {
	source CatalogSource
	index  VectorIndex
	locker Locker
	logger *zap.Logger
}

// NewReindexService creates a reindex service. locker may be nil for
// single-instance deployments.
func NewReindexService(source CatalogSource, index VectorIndex, locker Locker) *ReindexService {
	return &ReindexService{
		source: source,
		index:  index,
		locker: locker,
		logger: util.GetLogger(),
	}
}

// SyncAll upserts every live catalog row. Each type is processed on its own,
// so a failure listing one type does not stop the others. Writes are
// idempotent per point, so overlapping with incremental sync is safe.
func (s *ReindexService) SyncAll(ctx context.Context, collection string) (*SyncReport, error) {
	ctx, span := util.StartSpan(ctx, "ReindexService.SyncAll")
	defer span.End()

	if s.locker != nil {
		lockKey := "vector-sync:" + collection
		token, err := s.locker.AcquireLock(ctx, lockKey, reindexLockTTL)
		switch {
		case err != nil:
			s.logger.Warn("Reindex lock unavailable, continuing without it", zap.Error(err))
		case token == "":
			return nil, ErrReindexInProgress
		default:
			defer func() {
				if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
					s.logger.Warn("Failed to release reindex lock", zap.Error(err))
				}
			}()
		}
	}

	start := time.Now()
	if err := s.index.EnsureCollection(ctx, collection); err != nil {
		return nil, fmt.Errorf("failed to ensure collection %s: %w", collection, err)
	}

	report := &SyncReport{
		Collection: collection,
		Types:      make(map[models.EntityType]TypeReport, len(models.EntityTypes)),
	}

	var errs []error
	for _, t := range models.EntityTypes {
		tr, err := s.syncType(ctx, collection, t)
		if err != nil {
			tr.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", t, err))
			s.logger.Error("Reindex of catalog type failed", zap.String("type", string(t)), zap.Error(err))
		}
		report.Types[t] = tr
		util.ReindexPointsTotal.WithLabelValues(string(t)).Add(float64(tr.Indexed))
	}

	joined := errors.Join(errs...)
	util.RecordError(span, joined)

	report.Duration = time.Since(start)
	util.ReindexDuration.Observe(report.Duration.Seconds())
	s.logger.Info("Vector index sync finished",
		zap.String("collection", collection),
		zap.Int("points", report.Total()),
		zap.Duration("duration", report.Duration))

	return report, joined
}

func (s *ReindexService) syncType(ctx context.Context, collection string, t models.EntityType) (TypeReport, error) {
	var tr TypeReport

	docs, err := s.source.ListActiveDocuments(ctx, t)
	if err != nil {
		return tr, err
	}

	var firstErr error
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return tr, err
		}
		degraded, err := s.index.Index(ctx, collection, doc)
		if err != nil {
			tr.Failed++
			if firstErr == nil {
				firstErr = err
			}
			s.logger.Warn("Failed to index entity during sync",
				zap.String("type", string(t)),
				zap.Int64("entity_id", doc.EntityID),
				zap.Error(err))
			continue
		}
		tr.Indexed++
		if degraded {
			tr.Degraded++
		}
	}

	if tr.Failed > 0 {
		return tr, fmt.Errorf("%d of %d entities failed: %w", tr.Failed, len(docs), firstErr)
	}
	return tr, nil
}
