package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReindexer struct {
	calls atomic.Int32
	err   error
}

func (r *countingReindexer) SyncAll(ctx context.Context, collection string) (*service.SyncReport, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &service.SyncReport{
		Collection: collection,
		Types:      map[models.EntityType]service.TypeReport{models.EntityTypeTrip: {Indexed: 2}},
	}, nil
}

func waitDone(t *testing.T, s *StartupSync) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("startup sync did not finish")
	}
}

func TestStartupSyncRunsOnce(t *testing.T) {
	r := &countingReindexer{}
	s := NewStartupSync(r, "rentify_memory", 0)

	s.Start(context.Background())
	waitDone(t, s)

	assert.Equal(t, int32(1), r.calls.Load())
}

func TestStartupSyncFailureIsNotFatal(t *testing.T) {
	r := &countingReindexer{err: errors.New("qdrant unavailable")}
	s := NewStartupSync(r, "rentify_memory", 0)

	s.Start(context.Background())
	waitDone(t, s)

	assert.Equal(t, int32(1), r.calls.Load())
}

func TestStartupSyncAbandonedOnShutdown(t *testing.T) {
	r := &countingReindexer{}
	s := NewStartupSync(r, "rentify_memory", time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	s.Start(ctx)
	cancel()
	waitDone(t, s)

	require.Equal(t, int32(0), r.calls.Load())
}
