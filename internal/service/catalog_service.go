package service

import (
	"context"
	"errors"
	"fmt"

	"booking-service/internal/broker"
	"booking-service/internal/models"
	"booking-service/internal/store"
	"booking-service/internal/util"
	"booking-service/internal/vectorindex"

	"go.uber.org/zap"
)

const maxSearchTopK = 50

type CatalogRepository interface {
	SaveCatalogEntity(ctx context.Context, entity models.CatalogEntity) error
	SoftDeleteCatalogEntity(ctx context.Context, t models.EntityType, id int64) error
}

// CatalogService is the catalog write path. It publishes a domain event only
// after the row is committed; what happens to the event never affects the
// caller's result.
type CatalogService struct {
	repo      CatalogRepository
	publisher broker.Publisher
	logger    *zap.Logger
}

func NewCatalogService(repo CatalogRepository, publisher broker.Publisher) *CatalogService {
	return &CatalogService{
		repo:      repo,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Save creates or updates a catalog row
func (s *CatalogService) Save(ctx context.Context, entity models.CatalogEntity) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.Save")
	defer span.End()

	t, id := entity.EntityKey()
	if id < 0 {
		return &ValidationError{Fields: map[string]string{"id": "must not be negative"}}
	}

	if err := s.repo.SaveCatalogEntity(ctx, entity); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s %d", ErrNotFound, t, id)
		}
		return fmt.Errorf("failed to save %s: %w", t, err)
	}

	_, id = entity.EntityKey()
	s.logger.Info("Catalog entity saved", zap.String("type", string(t)), zap.Int64("entity_id", id))
	s.publisher.Publish(ctx, models.NewEntityUpserted(entity.SearchDocument()))
	return nil
}

// Delete soft-deletes a catalog row
func (s *CatalogService) Delete(ctx context.Context, t models.EntityType, id int64) error {
	ctx, span := util.StartSpan(ctx, "CatalogService.Delete")
	defer span.End()

	if err := s.repo.SoftDeleteCatalogEntity(ctx, t, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s %d", ErrNotFound, t, id)
		}
		return fmt.Errorf("failed to delete %s %d: %w", t, id, err)
	}

	s.logger.Info("Catalog entity deleted", zap.String("type", string(t)), zap.Int64("entity_id", id))
	s.publisher.Publish(ctx, models.NewEntityDeleted(t, id))
	return nil
}

// SearchService answers semantic catalog queries
type SearchService struct {
	index      VectorIndex
	collection string
}

func NewSearchService(index VectorIndex, collection string) *SearchService {
	return &SearchService{index: index, collection: collection}
}

// Search returns up to topK hits; topK <= 0 means the default of 5
func (s *SearchService) Search(ctx context.Context, query string, topK int) ([]vectorindex.Hit, error) {
	ctx, span := util.StartSpan(ctx, "SearchService.Search")
	defer span.End()

	if query == "" {
		return nil, &ValidationError{Fields: map[string]string{"q": "is required"}}
	}
	if topK > maxSearchTopK {
		topK = maxSearchTopK
	}
	return s.index.Search(ctx, s.collection, query, topK)
}
