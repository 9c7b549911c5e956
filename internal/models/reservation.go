package models

import "time"

type BookingType string

const (
	BookingDaily  BookingType = "daily"
	BookingHourly BookingType = "hourly"
)

func (t BookingType) Valid() bool {
	return t == BookingDaily || t == BookingHourly
}

// Reservation is an admitted booking. Dates are UTC calendar days.
// For daily bookings EndDate is the checkout day and is not occupied.
// For hourly bookings EndDate equals StartDate and both hours are set.
type Reservation struct {
	ID              string      `json:"id"`
	ListingID       string      `json:"listing_id"`
	UserID          string      `json:"user_id"`
	BookingType     BookingType `json:"booking_type"`
	StartDate       time.Time   `json:"start_date"`
	EndDate         time.Time   `json:"end_date"`
	StartHour       *int        `json:"start_hour,omitempty"`
	EndHour         *int        `json:"end_hour,omitempty"`
	TotalPrice      int64       `json:"total_price"`
	HasLateCheckout bool        `json:"has_late_checkout"`
	IdempotencyKey  string      `json:"-"`
	CreatedAt       time.Time   `json:"created_at"`
}

func (r *Reservation) IsHourly() bool {
	return r.BookingType == BookingHourly
}

// HasHours reports whether both hour bounds are present.
func (r *Reservation) HasHours() bool {
	return r.StartHour != nil && r.EndHour != nil
}

// Proposal is a candidate reservation that has not been admitted yet.
type Proposal struct {
	ListingID       string
	BookingType     BookingType
	StartDate       time.Time
	EndDate         time.Time
	StartHour       *int
	EndHour         *int
	HasLateCheckout bool
}

func (p *Proposal) HasHours() bool {
	return p.StartHour != nil && p.EndHour != nil
}

// Hour returns a pointer to h, for filling optional hour fields.
func Hour(h int) *int {
	return &h
}
