package service

import (
	"context"
	"errors"
	"testing"

	"booking-service/internal/models"
	"booking-service/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubVerifier accepts only the signature "valid"
type stubVerifier struct {
	event *payment.WebhookEvent
}

func (v *stubVerifier) ParseWebhook(payload []byte, header string) (*payment.WebhookEvent, error) {
	if header != "valid" {
		return nil, payment.ErrInvalidSignature
	}
	return v.event, nil
}

func completed(sessionID string) *payment.WebhookEvent {
	return &payment.WebhookEvent{ID: "evt_1", Type: payment.EventCheckoutSessionCompleted, SessionID: sessionID}
}

func newWebhookFixture(t *testing.T) (*WebhookService, *stubVerifier, *BookingService, *memoryBookings, string) {
	t.Helper()
	bookings, repo, _, _ := newBookingFixture()
	resp, err := bookings.Create(context.Background(), tripRequest())
	require.NoError(t, err)

	verifier := &stubVerifier{event: completed(resp.SessionID)}
	return NewWebhookService(verifier, bookings), verifier, bookings, repo, resp.SessionID
}

func TestWebhookConfirmsBooking(t *testing.T) {
	svc, _, _, repo, _ := newWebhookFixture(t)

	result, err := svc.Handle(context.Background(), []byte(`{}`), "valid")

	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomeConfirmed, result.Outcome)
	assert.Equal(t, int64(1), result.BookingID)
	confirmed := repo.get(1)
	assert.True(t, confirmed.IsConfirmedAndPaid())
}

func TestWebhookRedeliveryIsDuplicate(t *testing.T) {
	svc, _, _, repo, _ := newWebhookFixture(t)

	_, err := svc.Handle(context.Background(), []byte(`{}`), "valid")
	require.NoError(t, err)
	writes := repo.writes

	result, err := svc.Handle(context.Background(), []byte(`{}`), "valid")

	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomeDuplicate, result.Outcome)
	assert.Equal(t, writes, repo.writes)
}

func TestWebhookInvalidSignatureNeverConfirms(t *testing.T) {
	svc, _, _, repo, _ := newWebhookFixture(t)

	_, err := svc.Handle(context.Background(), []byte(`{}`), "tampered")

	assert.ErrorIs(t, err, ErrInvalidSignature)
	stored := repo.get(1)
	assert.False(t, stored.IsPaid)
	assert.Equal(t, models.BookingStatusPending, stored.Status)
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	svc, verifier, _, repo, _ := newWebhookFixture(t)
	verifier.event = &payment.WebhookEvent{ID: "evt_2", Type: "payment_intent.created"}

	result, err := svc.Handle(context.Background(), []byte(`{}`), "valid")

	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomeIgnored, result.Outcome)
	assert.False(t, repo.get(1).IsPaid)
}

func TestWebhookMissingSessionID(t *testing.T) {
	svc, verifier, _, _, _ := newWebhookFixture(t)
	verifier.event = completed("")

	_, err := svc.Handle(context.Background(), []byte(`{}`), "valid")

	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestWebhookUnknownSession(t *testing.T) {
	svc, verifier, _, _, _ := newWebhookFixture(t)
	verifier.event = completed("cs_missing")

	_, err := svc.Handle(context.Background(), []byte(`{}`), "valid")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWebhookForCancelledBookingIsAcknowledged(t *testing.T) {
	svc, _, bookings, repo, _ := newWebhookFixture(t)
	_, err := bookings.Cancel(context.Background(), 1)
	require.NoError(t, err)

	result, err := svc.Handle(context.Background(), []byte(`{}`), "valid")

	require.NoError(t, err)
	assert.Equal(t, WebhookOutcomeRejected, result.Outcome)
	assert.False(t, repo.get(1).IsPaid)
}

type failingConfirmer struct{}

func (failingConfirmer) Confirm(ctx context.Context, sessionID string) (*models.Booking, bool, error) {
	return nil, false, errors.New("connection reset")
}

func TestWebhookTransientFailureIsReturned(t *testing.T) {
	svc := NewWebhookService(&stubVerifier{event: completed("cs_test_1")}, failingConfirmer{})

	_, err := svc.Handle(context.Background(), []byte(`{}`), "valid")

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidSignature)
	assert.NotErrorIs(t, err, ErrNotFound)
}
