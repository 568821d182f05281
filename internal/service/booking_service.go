package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/payment"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BookingRepository is the booking persistence the state machine needs.
// The Lock methods hold the row under FOR UPDATE for the duration of fn.
type BookingRepository interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBookingByID(ctx context.Context, id int64) (*models.Booking, error)
	SetPaymentSession(ctx context.Context, id int64, sessionID string) error
	ListActiveBookings(ctx context.Context) ([]models.Booking, error)
	LockBookingByID(ctx context.Context, id int64, fn store.MutateFunc) (*models.Booking, bool, error)
	LockBookingBySession(ctx context.Context, sessionID string, fn store.MutateFunc) (*models.Booking, bool, error)
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, b *models.Booking) (*payment.CheckoutSession, error)
}

type BookingEventPublisher interface {
	PublishBookingEvent(ctx context.Context, event *models.BookingEvent) error
}

// BookingService owns the booking lifecycle
type BookingService struct {
	repo     BookingRepository
	gateway  PaymentGateway
	events   BookingEventPublisher
	validate *validator.Validate
	logger   *zap.Logger
}

// NewBookingService creates a booking service. events may be nil.
func NewBookingService(repo BookingRepository, gateway PaymentGateway, events BookingEventPublisher) *BookingService {
	return &BookingService{
		repo:     repo,
		gateway:  gateway,
		events:   events,
		validate: newValidator(),
		logger:   util.GetLogger(),
	}
}

// CreateBookingRequest represents a request to create a booking
type CreateBookingRequest struct {
	UserID      string          `json:"userId" validate:"required"`
	EntityID    int64           `json:"entityId" validate:"gt=0"`
	BookingType string          `json:"bookingType" validate:"required,bookingtype"`
	StartDate   time.Time       `json:"startDate"`
	EndDate     *time.Time      `json:"endDate,omitempty"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

// CreateBookingResponse is returned once the checkout session is open
type CreateBookingResponse struct {
	BookingID  int64  `json:"bookingId"`
	SessionID  string `json:"sessionId"`
	SessionURL string `json:"sessionUrl"`
}

// UpdateBookingRequest changes scheduling and price only
type UpdateBookingRequest struct {
	StartDate  time.Time       `json:"startDate"`
	EndDate    *time.Time      `json:"endDate,omitempty"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("bookingtype", func(fl validator.FieldLevel) bool {
		_, err := models.ParseEntityType(fl.Field().String())
		return err == nil
	})
	return v
}

func (s *BookingService) validateCreate(req *CreateBookingRequest) error {
	verr := &ValidationError{}

	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			verr.add(fe.Field(), fieldMessage(fe))
		}
	}
	validateSchedule(verr, req.StartDate, req.EndDate, req.TotalPrice)
	return verr.orNil()
}

// total_price is NUMERIC(12,2)
const priceScale = 2

var maxPrice = decimal.New(1, 12-priceScale)

func validateSchedule(verr *ValidationError, start time.Time, end *time.Time, price decimal.Decimal) {
	if start.IsZero() {
		verr.add("startDate", "is required")
	}
	if end != nil && end.Before(start) {
		verr.add("endDate", "must be on or after startDate")
	}
	switch {
	case !price.IsPositive():
		verr.add("totalPrice", "must be greater than zero")
	case !price.Equal(price.Truncate(priceScale)):
		verr.add("totalPrice", "must have at most 2 decimal places")
	case price.GreaterThanOrEqual(maxPrice):
		verr.add("totalPrice", "must be less than "+maxPrice.String())
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "bookingtype":
		return "must be one of Trip, Hotel, Car, Attraction"
	default:
		return "is invalid"
	}
}

// Create persists a pending booking and opens a checkout session for it.
// A gateway failure leaves the pending row in place.
func (s *BookingService) Create(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResponse, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Create")
	defer span.End()

	if err := s.validateCreate(req); err != nil {
		util.BookingTransitionsRejected.WithLabelValues("create", "validation").Inc()
		return nil, err
	}
	bookingType, _ := models.ParseEntityType(req.BookingType)

	booking := &models.Booking{
		UserID:      req.UserID,
		EntityID:    req.EntityID,
		BookingType: bookingType,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		TotalPrice:  req.TotalPrice,
		Status:      models.BookingStatusPending,
	}

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	util.BookingsCreatedTotal.Inc()
	s.logger.Info("Booking created",
		zap.Int64("booking_id", booking.ID),
		zap.String("user_id", booking.UserID),
		zap.String("booking_type", string(booking.BookingType)))

	checkout, err := s.gateway.CreateCheckoutSession(ctx, booking)
	if err != nil {
		util.RecordError(span, err)
		s.logger.Warn("Booking left pending after gateway failure",
			zap.Int64("booking_id", booking.ID),
			zap.Error(err))
		msg := err.Error()
		var gwErr *payment.Error
		if errors.As(err, &gwErr) {
			msg = gwErr.Message
		}
		return nil, &GatewayError{Message: msg, Err: err}
	}

	if err := s.repo.SetPaymentSession(ctx, booking.ID, checkout.ID); err != nil {
		return nil, fmt.Errorf("failed to store payment session: %w", err)
	}
	booking.PaymentSessionID = checkout.ID

	s.publish(ctx, models.EventTypeBookingCreated, booking)

	return &CreateBookingResponse{
		BookingID:  booking.ID,
		SessionID:  checkout.ID,
		SessionURL: checkout.URL,
	}, nil
}

// Confirm marks the booking behind a checkout session as paid. Repeated calls
// for the same session are no-ops; concurrent calls serialize on the row lock.
// The returned bool reports whether this call performed the transition.
func (s *BookingService) Confirm(ctx context.Context, sessionID string) (*models.Booking, bool, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Confirm")
	defer span.End()

	booking, changed, err := s.repo.LockBookingBySession(ctx, sessionID, func(b *models.Booking) (bool, error) {
		if b.IsConfirmedAndPaid() {
			return false, nil
		}
		if b.IsDeleted || b.Status == models.BookingStatusCancelled {
			return false, fmt.Errorf("%w: booking %d is %s", ErrInvalidTransition, b.ID, b.Status)
		}
		b.IsPaid = true
		b.Status = models.BookingStatusConfirmed
		return true, nil
	})
	if err != nil {
		util.RecordError(span, err)
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: no booking for session %s", ErrNotFound, sessionID)
		}
		if errors.Is(err, ErrInvalidTransition) {
			util.BookingTransitionsRejected.WithLabelValues("confirm", "terminal_state").Inc()
		}
		return nil, false, err
	}

	if !changed {
		s.logger.Info("Booking already confirmed",
			zap.Int64("booking_id", booking.ID),
			zap.String("session_id", sessionID))
		return booking, false, nil
	}

	util.BookingsConfirmedTotal.Inc()
	s.logger.Info("Booking confirmed",
		zap.Int64("booking_id", booking.ID),
		zap.String("session_id", sessionID))
	s.publish(ctx, models.EventTypeBookingConfirmed, booking)

	return booking, true, nil
}

// Cancel sets a live booking to Cancelled. Payment state is untouched;
// refunds are not issued.
func (s *BookingService) Cancel(ctx context.Context, id int64) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Cancel")
	defer span.End()

	booking, changed, err := s.repo.LockBookingByID(ctx, id, func(b *models.Booking) (bool, error) {
		if b.IsDeleted {
			return false, fmt.Errorf("%w: booking %d", ErrNotFound, id)
		}
		if b.Status == models.BookingStatusCancelled {
			return false, nil
		}
		b.Status = models.BookingStatusCancelled
		return true, nil
	})
	if err != nil {
		return nil, s.mapNotFound(err, id)
	}

	if changed {
		util.BookingsCancelledTotal.Inc()
		s.logger.Info("Booking cancelled",
			zap.Int64("booking_id", id),
			zap.Bool("is_paid", booking.IsPaid))
		s.publish(ctx, models.EventTypeBookingCancelled, booking)
	}
	return booking, nil
}

// Delete soft-deletes a booking and forces it to Cancelled.
func (s *BookingService) Delete(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "BookingService.Delete")
	defer span.End()

	booking, _, err := s.repo.LockBookingByID(ctx, id, func(b *models.Booking) (bool, error) {
		if b.IsDeleted {
			return false, fmt.Errorf("%w: booking %d", ErrNotFound, id)
		}
		b.IsDeleted = true
		b.Status = models.BookingStatusCancelled
		return true, nil
	})
	if err != nil {
		return s.mapNotFound(err, id)
	}

	s.logger.Info("Booking deleted", zap.Int64("booking_id", id))
	s.publish(ctx, models.EventTypeBookingDeleted, booking)
	return nil
}

// Update changes the dates and price of a live booking. Payment state is untouched.
func (s *BookingService) Update(ctx context.Context, id int64, req *UpdateBookingRequest) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.Update")
	defer span.End()

	verr := &ValidationError{}
	if id <= 0 {
		verr.add("id", "must be greater than 0")
	}
	validateSchedule(verr, req.StartDate, req.EndDate, req.TotalPrice)
	if err := verr.orNil(); err != nil {
		util.BookingTransitionsRejected.WithLabelValues("update", "validation").Inc()
		return nil, err
	}

	booking, _, err := s.repo.LockBookingByID(ctx, id, func(b *models.Booking) (bool, error) {
		if b.IsDeleted {
			return false, fmt.Errorf("%w: booking %d", ErrNotFound, id)
		}
		b.StartDate = req.StartDate
		b.EndDate = req.EndDate
		b.TotalPrice = req.TotalPrice
		return true, nil
	})
	if err != nil {
		return nil, s.mapNotFound(err, id)
	}

	s.logger.Info("Booking updated", zap.Int64("booking_id", id))
	return booking, nil
}

// GetByID returns a booking unless it is missing or soft-deleted
func (s *BookingService) GetByID(ctx context.Context, id int64) (*models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.GetByID")
	defer span.End()

	booking, err := s.repo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, s.mapNotFound(err, id)
	}
	if booking.IsDeleted {
		return nil, fmt.Errorf("%w: booking %d", ErrNotFound, id)
	}
	return booking, nil
}

// ListActive returns bookings that are not deleted, cancelled or failed
func (s *BookingService) ListActive(ctx context.Context) ([]models.Booking, error) {
	ctx, span := util.StartSpan(ctx, "BookingService.ListActive")
	defer span.End()

	bookings, err := s.repo.ListActiveBookings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

func (s *BookingService) mapNotFound(err error, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: booking %d", ErrNotFound, id)
	}
	return err
}

// publish is best-effort; the transition is already committed.
func (s *BookingService) publish(ctx context.Context, eventType string, b *models.Booking) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishBookingEvent(ctx, models.NewBookingEvent(eventType, b)); err != nil {
		s.logger.Error("Failed to publish booking event",
			zap.String("event_type", eventType),
			zap.Int64("booking_id", b.ID),
			zap.Error(err))
	}
}
