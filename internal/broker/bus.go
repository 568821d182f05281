package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// Event is any domain event carrying a BaseEvent.
type Event interface {
	Base() models.BaseEvent
}

// Publisher is what catalog writers depend on. Publish never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Subscriber registers domain event handlers at startup.
type Subscriber interface {
	OnEntityUpserted(name string, h func(context.Context, *models.EntityUpsertedEvent) error)
	OnEntityDeleted(name string, h func(context.Context, *models.EntityDeletedEvent) error)
}

type handlerFunc func(context.Context, Event) error

type subscription struct {
	name string
	fn   handlerFunc
}

type envelope struct {
	ctx   context.Context
	event Event
}

type BusConfig struct {
	Workers        int
	QueueSize      int
	HandlerTimeout time.Duration
}

// Bus is an in-process publish/subscribe dispatcher. Publish enqueues onto a
// bounded queue drained by a worker pool; a full queue spills the event onto
// its own goroutine instead of dropping it.
type Bus struct {
	cfg    BusConfig
	logger *zap.Logger

	subsMu sync.RWMutex
	subs   map[string][]subscription

	mu      sync.RWMutex
	closed  bool
	queue   chan envelope
	workers sync.WaitGroup
	spilled sync.WaitGroup
}

// NewBus starts the worker pool
func NewBus(cfg BusConfig) *Bus {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}

	b := &Bus{
		cfg:    cfg,
		logger: util.GetLogger(),
		subs:   make(map[string][]subscription),
		queue:  make(chan envelope, cfg.QueueSize),
	}

	for i := 0; i < cfg.Workers; i++ {
		b.workers.Add(1)
		go b.work()
	}
	return b
}

func (b *Bus) OnEntityUpserted(name string, h func(context.Context, *models.EntityUpsertedEvent) error) {
	b.subscribe(models.EventTypeEntityUpserted, name, func(ctx context.Context, e Event) error {
		evt, ok := e.(*models.EntityUpsertedEvent)
		if !ok {
			return fmt.Errorf("unexpected event %T for %s", e, models.EventTypeEntityUpserted)
		}
		return h(ctx, evt)
	})
}

func (b *Bus) OnEntityDeleted(name string, h func(context.Context, *models.EntityDeletedEvent) error) {
	b.subscribe(models.EventTypeEntityDeleted, name, func(ctx context.Context, e Event) error {
		evt, ok := e.(*models.EntityDeletedEvent)
		if !ok {
			return fmt.Errorf("unexpected event %T for %s", e, models.EventTypeEntityDeleted)
		}
		return h(ctx, evt)
	})
}

func (b *Bus) subscribe(eventType, name string, fn handlerFunc) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	b.subs[eventType] = append(b.subs[eventType], subscription{name: name, fn: fn})
}

// Publish hands the event to the worker pool and returns immediately.
// The request context's cancellation is detached; its values are kept.
func (b *Bus) Publish(ctx context.Context, event Event) {
	env := envelope{ctx: context.WithoutCancel(ctx), event: event}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("Event published after bus shutdown, dropping",
			zap.String("event_type", event.Base().EventType),
			zap.String("event_id", event.Base().EventID))
		return
	}

	select {
	case b.queue <- env:
		util.EventQueueDepth.Set(float64(len(b.queue)))
	default:
		b.logger.Warn("Event queue full, dispatching on dedicated goroutine",
			zap.String("event_type", event.Base().EventType))
		b.spilled.Add(1)
		go func() {
			defer b.spilled.Done()
			_ = b.Dispatch(env.ctx, env.event)
		}()
	}
}

// Dispatch runs every handler for the event synchronously. Handler errors and
// panics are logged and joined into the returned error; one failing handler
// does not stop the others.
func (b *Bus) Dispatch(ctx context.Context, event Event) error {
	base := event.Base()

	b.subsMu.RLock()
	subs := append([]subscription(nil), b.subs[base.EventType]...)
	b.subsMu.RUnlock()

	if len(subs) == 0 {
		b.logger.Debug("No handlers for event", zap.String("event_type", base.EventType))
		return nil
	}

	var errs []error
	for _, sub := range subs {
		if err := b.invoke(ctx, sub, event); err != nil {
			b.logger.Error("Event handler failed",
				zap.String("handler", sub.name),
				zap.String("event_type", base.EventType),
				zap.String("event_id", base.EventID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sub.name, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) invoke(ctx context.Context, sub subscription, event Event) (err error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.HandlerTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return sub.fn(ctx, event)
}

func (b *Bus) work() {
	defer b.workers.Done()
	for env := range b.queue {
		util.EventQueueDepth.Set(float64(len(b.queue)))
		_ = b.Dispatch(env.ctx, env.event)
	}
}

// Close stops accepting events and waits for queued ones to be handled,
// or for ctx to expire.
func (b *Bus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.workers.Wait()
		b.spilled.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event bus drain interrupted: %w", ctx.Err())
	}
}
