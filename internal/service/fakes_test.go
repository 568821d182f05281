package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/payment"
	"booking-service/internal/store"
	"booking-service/internal/vectorindex"
)

// memoryBookings mimics the store: one mutex stands in for the row lock.
type memoryBookings struct {
	mu       sync.Mutex
	nextID   int64
	bookings map[int64]*models.Booking
	writes   int
}

func newMemoryBookings() *memoryBookings {
	return &memoryBookings{nextID: 1, bookings: map[int64]*models.Booking{}}
}

func (m *memoryBookings) CreateBooking(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = m.nextID
	m.nextID++
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *memoryBookings) GetBookingByID(ctx context.Context, id int64) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memoryBookings) SetPaymentSession(ctx context.Context, id int64, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return store.ErrNotFound
	}
	b.PaymentSessionID = sessionID
	return nil
}

func (m *memoryBookings) ListActiveBookings(ctx context.Context) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Booking{}
	for _, b := range m.bookings {
		if b.IsActive() {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memoryBookings) LockBookingByID(ctx context.Context, id int64, fn store.MutateFunc) (*models.Booking, bool, error) {
	return m.mutate(func(b *models.Booking) bool { return b.ID == id }, fn)
}

func (m *memoryBookings) LockBookingBySession(ctx context.Context, sessionID string, fn store.MutateFunc) (*models.Booking, bool, error) {
	if sessionID == "" {
		return nil, false, store.ErrNotFound
	}
	return m.mutate(func(b *models.Booking) bool { return b.PaymentSessionID == sessionID }, fn)
}

func (m *memoryBookings) mutate(match func(*models.Booking) bool, fn store.MutateFunc) (*models.Booking, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.bookings {
		if !match(stored) {
			continue
		}
		work := *stored
		changed, err := fn(&work)
		if err != nil || !changed {
			cp := *stored
			return &cp, false, err
		}
		work.UpdatedAt = time.Now()
		*stored = work
		m.writes++
		cp := work
		return &cp, true, nil
	}
	return nil, false, store.ErrNotFound
}

func (m *memoryBookings) get(id int64) models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.bookings[id]
}

type fakeGateway struct {
	mu      sync.Mutex
	calls   int
	err     error
	counter int
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, b *models.Booking) (*payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	g.counter++
	id := fmt.Sprintf("cs_test_%d", g.counter)
	b.PaymentSessionID = id
	return &payment.CheckoutSession{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id}, nil
}

type recordingEvents struct {
	mu     sync.Mutex
	events []*models.BookingEvent
	err    error
}

func (r *recordingEvents) PublishBookingEvent(ctx context.Context, e *models.BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// fakeIndex records index calls per point key "<type>:<id>"
type fakeIndex struct {
	mu        sync.Mutex
	ensured   map[string]bool
	points    map[string]models.SearchDocument
	degraded  bool
	failTypes map[models.EntityType]bool
	ensureErr error
	hits      []vectorindex.Hit
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		ensured:   map[string]bool{},
		points:    map[string]models.SearchDocument{},
		failTypes: map[models.EntityType]bool{},
	}
}

func pointKey(t models.EntityType, id int64) string {
	return string(t) + ":" + strconv.FormatInt(id, 10)
}

func (f *fakeIndex) EnsureCollection(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.ensured[name] = true
	return nil
}

func (f *fakeIndex) Index(ctx context.Context, collection string, doc models.SearchDocument) (bool, error) {
	if err := f.EnsureCollection(ctx, collection); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTypes[doc.EntityType] {
		return false, errors.New("index unavailable")
	}
	f.points[pointKey(doc.EntityType, doc.EntityID)] = doc
	return f.degraded, nil
}

func (f *fakeIndex) Delete(ctx context.Context, collection string, t models.EntityType, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTypes[t] {
		return errors.New("index unavailable")
	}
	delete(f.points, pointKey(t, id))
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, collection, query string, topK int) ([]vectorindex.Hit, error) {
	if topK <= 0 {
		topK = vectorindex.DefaultTopK
	}
	if len(f.hits) > topK {
		return f.hits[:topK], nil
	}
	return f.hits, nil
}
