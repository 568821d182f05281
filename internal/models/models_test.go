package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		in      string
		want    EntityType
		wantErr bool
	}{
		{"Trip", EntityTypeTrip, false},
		{"hotel", EntityTypeHotel, false},
		{" CAR ", EntityTypeCar, false},
		{"attraction", EntityTypeAttraction, false},
		{"Flight", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseEntityType(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestTripSearchDocument(t *testing.T) {
	start := time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)
	trip := &Trip{
		ID:          5,
		Title:       "Ancient Egypt Explorer",
		Description: "Pyramids and temples",
		City:        "Cairo",
		StartDate:   &start,
		Price:       decimal.RequireFromString("1500.00"),
	}

	doc := trip.SearchDocument()

	assert.Equal(t, int64(5), doc.EntityID)
	assert.Equal(t, EntityTypeTrip, doc.EntityType)
	assert.Equal(t, "Ancient Egypt Explorer Pyramids and temples Cairo 2025-12-25", doc.Text)
	assert.Equal(t, "Ancient Egypt Explorer", doc.Name)
	assert.Equal(t, "Cairo", doc.City)
	require.NotNil(t, doc.Price)
	assert.True(t, doc.Price.Equal(decimal.NewFromInt(1500)))
}

func TestCarSearchDocumentHasNoCity(t *testing.T) {
	car := &Car{ID: 2, Name: "Jeep", Description: "4x4", Overview: "  ", Price: decimal.NewFromInt(80)}

	doc := car.SearchDocument()

	assert.Equal(t, "Jeep 4x4", doc.Text)
	assert.Empty(t, doc.City)
	assert.Equal(t, EntityTypeCar, doc.EntityType)
}

func TestHotelAndAttractionText(t *testing.T) {
	hotel := &Hotel{ID: 1, Name: "Nile View", Description: "River rooms", City: "Luxor", BasePrice: decimal.NewFromInt(120)}
	assert.Equal(t, "Nile View River rooms", hotel.SearchDocument().Text)
	assert.Equal(t, "Luxor", hotel.SearchDocument().City)

	attraction := &Attraction{ID: 3, Name: "Karnak", Description: "Temple", Overview: "Guided tour", City: "Luxor"}
	assert.Equal(t, "Karnak Temple Guided tour", attraction.SearchDocument().Text)
}

func TestBookingStateHelpers(t *testing.T) {
	b := &Booking{Status: BookingStatusPending}
	assert.False(t, b.IsConfirmedAndPaid())
	assert.True(t, b.IsActive())

	b.Status = BookingStatusConfirmed
	b.IsPaid = true
	assert.True(t, b.IsConfirmedAndPaid())

	b.Status = BookingStatusCancelled
	assert.False(t, b.IsActive())
}
