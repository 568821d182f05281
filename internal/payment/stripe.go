package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// EventCheckoutSessionCompleted is the only webhook event that changes state.
const EventCheckoutSessionCompleted = "checkout.session.completed"

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Error is a failed gateway call. Message is safe to show to the client.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// CheckoutSession is the result of opening a hosted checkout
type CheckoutSession struct {
	ID  string
	URL string
}

// WebhookEvent is a verified gateway notification
type WebhookEvent struct {
	ID        string
	Type      string
	SessionID string
}

type Config struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	ClientAppURL  string
}

// StripeGateway opens Stripe Checkout sessions and verifies Stripe webhooks
type StripeGateway struct {
	cfg      Config
	sessions *session.Client
	logger   *zap.Logger
}

func NewStripeGateway(cfg Config) *StripeGateway {
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	cfg.Currency = strings.ToLower(cfg.Currency)
	if cfg.ClientAppURL == "" {
		cfg.ClientAppURL = "http://localhost:3000"
	}
	cfg.ClientAppURL = strings.TrimRight(cfg.ClientAppURL, "/")

	return &StripeGateway{
		cfg:      cfg,
		sessions: &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey},
		logger:   util.GetLogger(),
	}
}

// WithBackend points the gateway at another Stripe backend, e.g. stripe-mock.
func (g *StripeGateway) WithBackend(b stripe.Backend) *StripeGateway {
	g.sessions = &session.Client{B: b, Key: g.cfg.SecretKey}
	return g
}

// CreateCheckoutSession opens a one-line-item checkout for the booking and
// records the session id on it. No retry is attempted here.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, b *models.Booking) (*CheckoutSession, error) {
	ctx, span := util.StartSpan(ctx, "StripeGateway.CreateCheckoutSession")
	defer span.End()

	amount, err := ToMinorUnits(b.TotalPrice, g.cfg.Currency)
	if err != nil {
		return nil, &Error{Op: "create_session", Message: err.Error(), Err: err}
	}

	params := g.sessionParams(b, amount)
	params.Context = ctx

	start := time.Now()
	s, err := g.sessions.New(params)
	util.PaymentGatewayLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.PaymentGatewayFailures.Inc()
		msg := err.Error()
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
			msg = stripeErr.Msg
		}
		g.logger.Error("Checkout session creation failed",
			zap.Int64("booking_id", b.ID),
			zap.String("message", msg))
		return nil, &Error{Op: "create_session", Message: msg, Err: err}
	}

	b.PaymentSessionID = s.ID
	g.logger.Info("Checkout session created",
		zap.Int64("booking_id", b.ID),
		zap.String("session_id", s.ID),
		zap.Int64("amount", amount))

	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (g *StripeGateway) sessionParams(b *models.Booking, amount int64) *stripe.CheckoutSessionParams {
	bookingID := strconv.FormatInt(b.ID, 10)
	entityID := strconv.FormatInt(b.EntityID, 10)

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(g.cfg.ClientAppURL + "/payment-success?sessionId={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripe.String(g.cfg.ClientAppURL + "/payment-cancelled"),
		ClientReferenceID:  stripe.String(bookingID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(g.cfg.Currency),
					UnitAmount: stripe.Int64(amount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:     stripe.String(fmt.Sprintf("%s Booking #%d", b.BookingType, b.ID)),
						Metadata: map[string]string{"entityId": entityID},
					},
				},
			},
		},
	}
	params.AddMetadata("bookingId", bookingID)
	params.AddMetadata("userId", b.UserID)
	params.AddMetadata("bookingType", string(b.BookingType))
	params.AddMetadata("entityId", entityID)
	return params
}

// ParseWebhook verifies the Stripe-Signature header and decodes the event.
func (g *StripeGateway) ParseWebhook(payload []byte, signatureHeader string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if out.Type == EventCheckoutSessionCompleted {
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		out.SessionID = cs.ID
	}
	return out, nil
}

// Stripe's zero- and three-decimal currencies. Every other currency has two.
var (
	zeroDecimalCurrencies = map[string]bool{
		"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
		"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
		"vuv": true, "xaf": true, "xof": true, "xpf": true,
	}
	threeDecimalCurrencies = map[string]bool{
		"bhd": true, "jod": true, "kwd": true, "omr": true, "tnd": true,
	}
)

// CurrencyExponent is the number of minor-unit digits Stripe expects for currency.
func CurrencyExponent(currency string) int32 {
	c := strings.ToLower(currency)
	switch {
	case zeroDecimalCurrencies[c]:
		return 0
	case threeDecimalCurrencies[c]:
		return 3
	default:
		return 2
	}
}

// ToMinorUnits converts a decimal amount to the smallest unit of currency,
// e.g. cents for usd and whole yen for jpy. Fractions of that unit are
// rejected rather than rounded.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount must not be negative: %s", amount)
	}
	exp := CurrencyExponent(currency)
	minor := amount.Shift(exp)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places for %s", amount, exp, currency)
	}
	return minor.IntPart(), nil
}
