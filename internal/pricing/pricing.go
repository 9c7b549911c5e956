// Package pricing computes reservation totals for daily and hourly bookings.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"rentbook/internal/config"
	"rentbook/internal/interval"
	"rentbook/internal/models"
)

// ErrInvalidListing is returned when the listing cannot be priced at all.
var ErrInvalidListing = errors.New("pricing: invalid listing")

type Policy struct {
	MultiNightPremium float64
	LateCheckoutRate  float64
	HourlyMarkup      float64
	LateCutoffHour    int
	MaxHours          int
}

func DefaultPolicy() Policy {
	return Policy{
		MultiNightPremium: models.MultiNightPremium,
		LateCheckoutRate:  models.LateCheckoutRate,
		HourlyMarkup:      models.HourlyMarkup,
		LateCutoffHour:    models.LateCutoffHour,
		MaxHours:          models.MaxHourlyDuration,
	}
}

func PolicyFromConfig(b config.BookingConfig) Policy {
	return Policy{
		MultiNightPremium: b.MultiNightPremium,
		LateCheckoutRate:  b.LateCheckoutRate,
		HourlyMarkup:      b.HourlyMarkup,
		LateCutoffHour:    b.LateCutoffHour,
		MaxHours:          b.MaxHourlyDuration,
	}
}

// Quote is a price with its components. Total is what gets charged.
type Quote struct {
	BookingType      models.BookingType `json:"booking_type"`
	Nights           int                `json:"nights,omitempty"`
	Hours            int                `json:"hours,omitempty"`
	UnitPrice        int64              `json:"unit_price"`
	Base             int64              `json:"base"`
	Premium          int64              `json:"premium,omitempty"`
	LateCheckoutFee  int64              `json:"late_checkout_fee,omitempty"`
	DailyRateApplied bool               `json:"daily_rate_applied,omitempty"`
	Total            int64              `json:"total"`
}

type Calculator struct {
	policy Policy
}

func NewCalculator(policy Policy) *Calculator {
	return &Calculator{policy: policy}
}

var defaultCalculator = NewCalculator(DefaultPolicy())

// Compute prices a proposal with the default policy.
func Compute(listing *models.Listing, proposed models.Proposal, hasLateCheckout bool) (int64, error) {
	return defaultCalculator.Compute(listing, proposed, hasLateCheckout)
}

// Round rounds half up, matching how totals are shown to guests.
func Round(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}

// HourlyPrice is the listing's per-hour rate, never below 1.
func (c *Calculator) HourlyPrice(listing *models.Listing) int64 {
	price := Round(float64(listing.Price) / 24 * c.policy.HourlyMarkup)
	if price < 1 {
		return 1
	}
	return price
}

// Compute returns the total for proposed. A zero total means the selection is incomplete.
func (c *Calculator) Compute(listing *models.Listing, proposed models.Proposal, hasLateCheckout bool) (int64, error) {
	proposed.HasLateCheckout = hasLateCheckout
	q, err := c.Quote(listing, proposed)
	if err != nil {
		return 0, err
	}
	return q.Total, nil
}

func (c *Calculator) Quote(listing *models.Listing, proposed models.Proposal) (Quote, error) {
	if listing == nil {
		return Quote{}, fmt.Errorf("%w: listing is nil", ErrInvalidListing)
	}
	if listing.Price < 0 {
		return Quote{}, fmt.Errorf("%w: negative price %d for listing %s", ErrInvalidListing, listing.Price, listing.ID)
	}

	switch proposed.BookingType {
	case models.BookingDaily:
		return c.daily(listing, &proposed), nil
	case models.BookingHourly:
		return c.hourly(listing, &proposed), nil
	default:
		return Quote{}, fmt.Errorf("%w: unknown booking type %q", ErrInvalidListing, proposed.BookingType)
	}
}

func (c *Calculator) daily(listing *models.Listing, p *models.Proposal) Quote {
	q := Quote{BookingType: models.BookingDaily, UnitPrice: listing.Price}
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		return q
	}

	nights := interval.DayNumber(p.EndDate) - interval.DayNumber(p.StartDate)
	if nights <= 0 {
		return q
	}
	q.Nights = nights
	q.Base = int64(nights) * listing.Price
	q.Total = q.Base
	if nights > 1 {
		q.Total = Round(float64(nights) * float64(listing.Price) * c.policy.MultiNightPremium)
		q.Premium = q.Total - q.Base
	}

	if p.HasLateCheckout {
		q.LateCheckoutFee = Round(float64(listing.Price) * c.policy.LateCheckoutRate)
		q.Total += q.LateCheckoutFee
	}
	return q
}

func (c *Calculator) hourly(listing *models.Listing, p *models.Proposal) Quote {
	q := Quote{BookingType: models.BookingHourly, UnitPrice: c.HourlyPrice(listing)}
	if !p.HasHours() {
		return q
	}

	hours := *p.EndHour - *p.StartHour
	if hours <= 0 {
		return q
	}
	q.Hours = hours
	q.Base = int64(hours) * q.UnitPrice
	q.Total = q.Base

	if c.policy.MaxHours > 0 && hours > c.policy.MaxHours {
		q.Total = listing.Price
		q.DailyRateApplied = true
	}
	if *p.EndHour > c.policy.LateCutoffHour {
		q.Total = listing.Price
		q.DailyRateApplied = true
	}
	return q
}
