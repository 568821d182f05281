package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"booking-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCatalogSource struct {
	docs map[models.EntityType][]models.SearchDocument
	errs map[models.EntityType]error
}

func (s *stubCatalogSource) ListActiveDocuments(ctx context.Context, t models.EntityType) ([]models.SearchDocument, error) {
	if err := s.errs[t]; err != nil {
		return nil, err
	}
	return s.docs[t], nil
}

func doc(t models.EntityType, id int64, text string) models.SearchDocument {
	return models.SearchDocument{EntityID: id, EntityType: t, Text: text}
}

func sampleCatalog() *stubCatalogSource {
	return &stubCatalogSource{
		docs: map[models.EntityType][]models.SearchDocument{
			models.EntityTypeAttraction: {doc(models.EntityTypeAttraction, 1, "Old town walk")},
			models.EntityTypeTrip:       {doc(models.EntityTypeTrip, 1, "Alps trek"), doc(models.EntityTypeTrip, 2, "Coast drive")},
			models.EntityTypeHotel:      {doc(models.EntityTypeHotel, 1, "Lakeside")},
			models.EntityTypeCar:        {doc(models.EntityTypeCar, 1, "Compact")},
		},
		errs: map[models.EntityType]error{},
	}
}

type memoryLocker struct {
	mu       sync.Mutex
	held     map[string]string
	err      error
	released int
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{held: map[string]string{}}
}

func (l *memoryLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	if _, ok := l.held[key]; ok {
		return "", nil
	}
	l.held[key] = "token-" + key
	return l.held[key], nil
}

func (l *memoryLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		l.released++
	}
	return nil
}

func TestSyncAllIndexesEveryType(t *testing.T) {
	index := newFakeIndex()
	locker := newMemoryLocker()
	svc := NewReindexService(sampleCatalog(), index, locker)

	report, err := svc.SyncAll(context.Background(), testCollection)

	require.NoError(t, err)
	assert.Equal(t, 5, report.Total())
	assert.Equal(t, 2, report.Types[models.EntityTypeTrip].Indexed)
	assert.Len(t, index.points, 5)
	assert.Contains(t, index.points, "Trip:1")
	assert.Contains(t, index.points, "Hotel:1")
	assert.Equal(t, 1, locker.released)
}

func TestSyncAllContinuesPastFailingType(t *testing.T) {
	index := newFakeIndex()
	source := sampleCatalog()
	source.errs[models.EntityTypeHotel] = errors.New("relation \"hotels\" does not exist")
	svc := NewReindexService(source, index, nil)

	report, err := svc.SyncAll(context.Background(), testCollection)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Hotel")
	assert.NotEmpty(t, report.Types[models.EntityTypeHotel].Error)
	assert.Equal(t, 1, report.Types[models.EntityTypeCar].Indexed)
	assert.Equal(t, 2, report.Types[models.EntityTypeTrip].Indexed)
	assert.Contains(t, index.points, "Car:1")
}

func TestSyncAllCountsPerEntityFailures(t *testing.T) {
	index := newFakeIndex()
	index.failTypes[models.EntityTypeTrip] = true
	svc := NewReindexService(sampleCatalog(), index, nil)

	report, err := svc.SyncAll(context.Background(), testCollection)

	require.Error(t, err)
	assert.Equal(t, 2, report.Types[models.EntityTypeTrip].Failed)
	assert.Equal(t, 1, report.Types[models.EntityTypeAttraction].Indexed)
}

func TestSyncAllReportsDegradedPoints(t *testing.T) {
	index := newFakeIndex()
	index.degraded = true
	svc := NewReindexService(sampleCatalog(), index, nil)

	report, err := svc.SyncAll(context.Background(), testCollection)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Types[models.EntityTypeCar].Degraded)
	assert.Equal(t, 5, report.Total())
}

func TestSyncAllRejectsConcurrentRun(t *testing.T) {
	locker := newMemoryLocker()
	locker.held["vector-sync:"+testCollection] = "other-instance"
	svc := NewReindexService(sampleCatalog(), newFakeIndex(), locker)

	_, err := svc.SyncAll(context.Background(), testCollection)

	assert.ErrorIs(t, err, ErrReindexInProgress)
}

func TestSyncAllRunsWhenLockBackendIsDown(t *testing.T) {
	locker := newMemoryLocker()
	locker.err = errors.New("redis: connection refused")
	svc := NewReindexService(sampleCatalog(), newFakeIndex(), locker)

	report, err := svc.SyncAll(context.Background(), testCollection)

	require.NoError(t, err)
	assert.Equal(t, 5, report.Total())
}

func TestSyncAllFailsWhenCollectionCannotBeEnsured(t *testing.T) {
	index := newFakeIndex()
	index.ensureErr = errors.New("vector dimension mismatch")
	locker := newMemoryLocker()
	svc := NewReindexService(sampleCatalog(), index, locker)

	_, err := svc.SyncAll(context.Background(), testCollection)

	require.Error(t, err)
	assert.Empty(t, index.points)
	assert.Equal(t, 1, locker.released)
}
