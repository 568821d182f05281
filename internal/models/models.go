package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntityType tags a catalog entity kind. Bookings and index points both carry it.
type EntityType string

const (
	EntityTypeTrip       EntityType = "Trip"
	EntityTypeHotel      EntityType = "Hotel"
	EntityTypeCar        EntityType = "Car"
	EntityTypeAttraction EntityType = "Attraction"
)

// EntityTypes lists every catalog type in reindex order.
var EntityTypes = []EntityType{EntityTypeAttraction, EntityTypeTrip, EntityTypeHotel, EntityTypeCar}

// ParseEntityType matches case-insensitively and returns the canonical spelling.
func ParseEntityType(s string) (EntityType, error) {
	trimmed := strings.TrimSpace(s)
	for _, t := range EntityTypes {
		if strings.EqualFold(trimmed, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown entity type: %q", s)
}

// Booking statuses
const (
	BookingStatusPending   = "Pending"
	BookingStatusConfirmed = "Confirmed"
	BookingStatusCancelled = "Cancelled"
	BookingStatusFailed    = "Failed"
)

// Booking is a reservation of one catalog entity by one user
type Booking struct {
	ID               int64           `db:"id" json:"id"`
	UserID           string          `db:"user_id" json:"userId"`
	EntityID         int64           `db:"entity_id" json:"entityId"`
	BookingType      EntityType      `db:"booking_type" json:"bookingType"`
	StartDate        time.Time       `db:"start_date" json:"startDate"`
	EndDate          *time.Time      `db:"end_date" json:"endDate,omitempty"`
	TotalPrice       decimal.Decimal `db:"total_price" json:"totalPrice"`
	Status           string          `db:"status" json:"status"`
	PaymentSessionID string          `db:"payment_session_id" json:"paymentSessionId,omitempty"`
	IsPaid           bool            `db:"is_paid" json:"isPaid"`
	IsDeleted        bool            `db:"is_deleted" json:"-"`
	CreatedAt        time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updatedAt"`
}

// IsConfirmedAndPaid reports whether the payment has already been reconciled.
func (b *Booking) IsConfirmedAndPaid() bool {
	return b.IsPaid && b.Status == BookingStatusConfirmed
}

// IsActive mirrors the listing filter: not deleted, not cancelled, not failed.
func (b *Booking) IsActive() bool {
	return !b.IsDeleted && b.Status != BookingStatusCancelled && b.Status != BookingStatusFailed
}

// SearchDocument is the searchable text and metadata for one catalog entity.
// Incremental sync and full reindex both build it through the catalog types below.
type SearchDocument struct {
	EntityID   int64            `json:"entity_id"`
	EntityType EntityType       `json:"type"`
	Text       string           `json:"text"`
	Name       string           `json:"name,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	City       string           `json:"city,omitempty"`
}

// CatalogEntity is implemented by every catalog row the index knows about.
type CatalogEntity interface {
	EntityKey() (EntityType, int64)
	SearchDocument() SearchDocument
}

type Trip struct {
	ID          int64           `db:"id" json:"id"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description"`
	City        string          `db:"city" json:"city"`
	StartDate   *time.Time      `db:"start_date" json:"startDate,omitempty"`
	Price       decimal.Decimal `db:"price" json:"price"`
	IsDeleted   bool            `db:"is_deleted" json:"-"`
}

func (t *Trip) EntityKey() (EntityType, int64) { return EntityTypeTrip, t.ID }

func (t *Trip) SearchDocument() SearchDocument {
	parts := []string{t.Title, t.Description, t.City}
	if t.StartDate != nil {
		parts = append(parts, t.StartDate.Format("2006-01-02"))
	}
	price := t.Price
	return SearchDocument{
		EntityID:   t.ID,
		EntityType: EntityTypeTrip,
		Text:       joinText(parts...),
		Name:       t.Title,
		Price:      &price,
		City:       t.City,
	}
}

type Hotel struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	City        string          `db:"city" json:"city"`
	BasePrice   decimal.Decimal `db:"base_price" json:"basePrice"`
	IsDeleted   bool            `db:"is_deleted" json:"-"`
}

func (h *Hotel) EntityKey() (EntityType, int64) { return EntityTypeHotel, h.ID }

func (h *Hotel) SearchDocument() SearchDocument {
	price := h.BasePrice
	return SearchDocument{
		EntityID:   h.ID,
		EntityType: EntityTypeHotel,
		Text:       joinText(h.Name, h.Description),
		Name:       h.Name,
		Price:      &price,
		City:       h.City,
	}
}

type Car struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Overview    string          `db:"overview" json:"overview"`
	Price       decimal.Decimal `db:"price" json:"price"`
	IsDeleted   bool            `db:"is_deleted" json:"-"`
}

func (c *Car) EntityKey() (EntityType, int64) { return EntityTypeCar, c.ID }

// SearchDocument for cars has no city; rental cars are not tied to one.
func (c *Car) SearchDocument() SearchDocument {
	price := c.Price
	return SearchDocument{
		EntityID:   c.ID,
		EntityType: EntityTypeCar,
		Text:       joinText(c.Name, c.Description, c.Overview),
		Name:       c.Name,
		Price:      &price,
	}
}

type Attraction struct {
	ID          int64           `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Overview    string          `db:"overview" json:"overview"`
	City        string          `db:"city" json:"city"`
	Price       decimal.Decimal `db:"price" json:"price"`
	IsDeleted   bool            `db:"is_deleted" json:"-"`
}

func (a *Attraction) EntityKey() (EntityType, int64) { return EntityTypeAttraction, a.ID }

func (a *Attraction) SearchDocument() SearchDocument {
	price := a.Price
	return SearchDocument{
		EntityID:   a.ID,
		EntityType: EntityTypeAttraction,
		Text:       joinText(a.Name, a.Description, a.Overview),
		Name:       a.Name,
		Price:      &price,
		City:       a.City,
	}
}

func joinText(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
