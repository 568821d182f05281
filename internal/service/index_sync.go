package service

import (
	"context"
	"fmt"

	"booking-service/internal/broker"
	"booking-service/internal/models"
	"booking-service/internal/util"
	"booking-service/internal/vectorindex"

	"go.uber.org/zap"
)

// VectorIndex is the part of the vector index the sync handlers use
type VectorIndex interface {
	EnsureCollection(ctx context.Context, name string) error
	Index(ctx context.Context, collection string, doc models.SearchDocument) (bool, error)
	Delete(ctx context.Context, collection string, t models.EntityType, entityID int64) error
	Search(ctx context.Context, collection, queryText string, topK int) ([]vectorindex.Hit, error)
}

// IndexSyncHandler keeps the vector index in step with catalog events
type IndexSyncHandler struct {
	index      VectorIndex
	collection string
	logger     *zap.Logger
}

func NewIndexSyncHandler(index VectorIndex, collection string) *IndexSyncHandler {
	return &IndexSyncHandler{
		index:      index,
		collection: collection,
		logger:     util.GetLogger(),
	}
}

// Register subscribes both handlers on the bus
func (h *IndexSyncHandler) Register(sub broker.Subscriber) {
	sub.OnEntityUpserted("index-sync-upsert", h.HandleUpserted)
	sub.OnEntityDeleted("index-sync-delete", h.HandleDeleted)
}

// HandleUpserted embeds the document and writes its point
func (h *IndexSyncHandler) HandleUpserted(ctx context.Context, event *models.EntityUpsertedEvent) error {
	ctx, span := util.StartSpan(ctx, "IndexSyncHandler.HandleUpserted")
	defer span.End()

	doc := event.Document
	degraded, err := h.index.Index(ctx, h.collection, doc)
	if err != nil {
		util.RecordError(span, err)
		util.IndexSyncTotal.WithLabelValues("upsert", "failed").Inc()
		return fmt.Errorf("index %s %d: %w", doc.EntityType, doc.EntityID, err)
	}

	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	util.IndexSyncTotal.WithLabelValues("upsert", outcome).Inc()
	h.logger.Debug("Indexed entity",
		zap.String("type", string(doc.EntityType)),
		zap.Int64("entity_id", doc.EntityID),
		zap.Bool("degraded", degraded))
	return nil
}

// HandleDeleted removes the entity's point; absent points are fine
func (h *IndexSyncHandler) HandleDeleted(ctx context.Context, event *models.EntityDeletedEvent) error {
	ctx, span := util.StartSpan(ctx, "IndexSyncHandler.HandleDeleted")
	defer span.End()

	if err := h.index.Delete(ctx, h.collection, event.EntityType, event.EntityID); err != nil {
		util.RecordError(span, err)
		util.IndexSyncTotal.WithLabelValues("delete", "failed").Inc()
		return fmt.Errorf("unindex %s %d: %w", event.EntityType, event.EntityID, err)
	}

	util.IndexSyncTotal.WithLabelValues("delete", "ok").Inc()
	h.logger.Debug("Removed entity from index",
		zap.String("type", string(event.EntityType)),
		zap.Int64("entity_id", event.EntityID))
	return nil
}
