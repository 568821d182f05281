package service

import (
	"context"
	"errors"
	"fmt"

	"booking-service/internal/models"
	"booking-service/internal/payment"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

type WebhookVerifier interface {
	ParseWebhook(payload []byte, signatureHeader string) (*payment.WebhookEvent, error)
}

type BookingConfirmer interface {
	Confirm(ctx context.Context, sessionID string) (*models.Booking, bool, error)
}

// Webhook outcomes, also used as metric labels
const (
	WebhookOutcomeConfirmed = "confirmed"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeRejected  = "rejected"
)

type WebhookResult struct {
	EventID   string
	EventType string
	Outcome   string
	BookingID int64
}

// WebhookService verifies gateway notifications and drives Confirm.
// It keeps no delivery log of its own; Confirm is idempotent.
type WebhookService struct {
	verifier  WebhookVerifier
	confirmer BookingConfirmer
	logger    *zap.Logger
}

func NewWebhookService(verifier WebhookVerifier, confirmer BookingConfirmer) *WebhookService {
	return &WebhookService{
		verifier:  verifier,
		confirmer: confirmer,
		logger:    util.GetLogger(),
	}
}

// Handle processes one delivery. Errors map to: ErrInvalidSignature for a bad
// signature or body, ErrNotFound for an unknown session, anything else is
// transient and the gateway should redeliver.
func (s *WebhookService) Handle(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	ctx, span := util.StartSpan(ctx, "WebhookService.Handle")
	defer span.End()

	event, err := s.verifier.ParseWebhook(payload, signatureHeader)
	if err != nil {
		util.RecordError(span, err)
		util.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		s.logger.Warn("Rejected webhook", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := &WebhookResult{EventID: event.ID, EventType: event.Type}

	if event.Type != payment.EventCheckoutSessionCompleted {
		result.Outcome = WebhookOutcomeIgnored
		util.WebhookEventsTotal.WithLabelValues(event.Type, result.Outcome).Inc()
		s.logger.Debug("Ignoring webhook event", zap.String("event_type", event.Type))
		return result, nil
	}

	if event.SessionID == "" {
		util.WebhookEventsTotal.WithLabelValues(event.Type, "invalid_payload").Inc()
		return nil, fmt.Errorf("%w: checkout session id missing", ErrInvalidSignature)
	}

	booking, changed, err := s.confirmer.Confirm(ctx, event.SessionID)
	switch {
	case errors.Is(err, ErrInvalidTransition):
		// redelivery cannot fix this, so acknowledge
		result.Outcome = WebhookOutcomeRejected
		s.logger.Warn("Payment completed for a booking that cannot be confirmed",
			zap.String("event_id", event.ID),
			zap.String("session_id", event.SessionID),
			zap.Error(err))
	case err != nil:
		util.RecordError(span, err)
		outcome := "error"
		if errors.Is(err, ErrNotFound) {
			outcome = "not_found"
		}
		util.WebhookEventsTotal.WithLabelValues(event.Type, outcome).Inc()
		s.logger.Error("Failed to confirm booking from webhook",
			zap.String("event_id", event.ID),
			zap.String("session_id", event.SessionID),
			zap.Error(err))
		return nil, err
	case changed:
		result.Outcome = WebhookOutcomeConfirmed
		result.BookingID = booking.ID
	default:
		result.Outcome = WebhookOutcomeDuplicate
		result.BookingID = booking.ID
	}

	util.WebhookEventsTotal.WithLabelValues(event.Type, result.Outcome).Inc()
	return result, nil
}
