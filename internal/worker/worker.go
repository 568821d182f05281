package worker

import (
	"context"
	"time"

	"booking-service/internal/broker"
	"booking-service/internal/service"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// CatalogWorker bridges catalog events from Kafka onto the in-process bus,
// for catalog writers running outside this service.
type CatalogWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.CatalogEventHandler
	logger       *zap.Logger
}

// NewCatalogWorker creates a new catalog worker
func NewCatalogWorker(consumer *broker.Consumer, dispatcher broker.Dispatcher) *CatalogWorker {
	return &CatalogWorker{
		consumer:     consumer,
		eventHandler: broker.NewCatalogEventHandler(dispatcher),
		logger:       util.GetLogger(),
	}
}

// Start blocks until ctx is cancelled
func (w *CatalogWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting catalog worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CatalogWorker) Stop() error {
	w.logger.Info("Stopping catalog worker")
	return w.consumer.Close()
}

type Reindexer interface {
	SyncAll(ctx context.Context, collection string) (*service.SyncReport, error)
}

// StartupSync runs one full reindex in the background. Failures are logged,
// never fatal: the API stays up and search degrades until the next sync.
type StartupSync struct {
	reindexer  Reindexer
	collection string
	delay      time.Duration
	logger     *zap.Logger
	done       chan struct{}
}

func NewStartupSync(reindexer Reindexer, collection string, delay time.Duration) *StartupSync {
	return &StartupSync{
		reindexer:  reindexer,
		collection: collection,
		delay:      delay,
		logger:     util.GetLogger(),
		done:       make(chan struct{}),
	}
}

// Start launches the sync and returns immediately
func (s *StartupSync) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return
			}
		}

		s.logger.Info("Starting vector index sync", zap.String("collection", s.collection))
		report, err := s.reindexer.SyncAll(ctx, s.collection)
		if err != nil {
			s.logger.Error("Startup vector index sync failed", zap.Error(err))
			return
		}
		s.logger.Info("Startup vector index sync completed", zap.Int("points", report.Total()))
	}()
}

// Done is closed once the sync has finished or was abandoned
func (s *StartupSync) Done() <-chan struct{} {
	return s.done
}
