// Package availability decides whether a proposed reservation fits a listing's calendar.
// The same Checker backs the advisory check and the authoritative admission path.
package availability

import (
	"errors"
	"fmt"

	"rentbook/internal/config"
	"rentbook/internal/interval"
	"rentbook/internal/models"
)

type Reason string

const (
	ReasonSameDayRange     Reason = "SameDayRange"
	ReasonInvalidDateRange Reason = "InvalidDateRange"
	ReasonDateConflict     Reason = "DateConflict"
	ReasonHourlyConflict   Reason = "HourlyConflict"
	ReasonFullyBooked      Reason = "FullyBooked"
	ReasonTimeSlotConflict Reason = "TimeSlotConflict"
	ReasonDurationTooShort Reason = "DurationTooShort"
	ReasonPastCutoff       Reason = "PastCutoff"
	ReasonDurationTooLong  Reason = "DurationTooLong"
)

// ErrContractViolation is returned for proposals that are malformed for their booking type.
// It signals a caller bug, not a business rejection.
var ErrContractViolation = errors.New("availability: contract violation")

// Result is the outcome of a check. ConflictID is set when a specific reservation blocks the proposal.
type Result struct {
	Admitted   bool   `json:"admitted"`
	Reason     Reason `json:"reason,omitempty"`
	Detail     string `json:"detail,omitempty"`
	ConflictID string `json:"conflict_id,omitempty"`
}

func admitted() Result {
	return Result{Admitted: true}
}

func rejected(reason Reason, detail, conflictID string) Result {
	return Result{Reason: reason, Detail: detail, ConflictID: conflictID}
}

type Policy struct {
	MinHours          int
	MaxHours          int
	CleaningHours     int
	LatestEndHour     int
	BusinessStartHour int
	BusinessEndHour   int
}

func DefaultPolicy() Policy {
	return Policy{
		MinHours:          models.MinHourlyDuration,
		MaxHours:          models.MaxHourlyDuration,
		CleaningHours:     models.CleaningBufferHours,
		LatestEndHour:     models.LatestEndHour,
		BusinessStartHour: models.BusinessStartHour,
		BusinessEndHour:   models.BusinessEndHour,
	}
}

// PolicyFromConfig builds a policy from the booking section of the config.
func PolicyFromConfig(b config.BookingConfig) Policy {
	return Policy{
		MinHours:          b.MinHourlyDuration,
		MaxHours:          b.MaxHourlyDuration,
		CleaningHours:     b.CleaningBufferHours,
		LatestEndHour:     b.LatestEndHour,
		BusinessStartHour: b.BusinessStartHour,
		BusinessEndHour:   b.BusinessEndHour,
	}
}

type Checker struct {
	policy Policy
}

func NewChecker(policy Policy) *Checker {
	return &Checker{policy: policy}
}

func (c *Checker) Policy() Policy {
	return c.policy
}

var defaultChecker = NewChecker(DefaultPolicy())

// Check runs the default policy checker.
func Check(existing []models.Reservation, proposed models.Proposal) (Result, error) {
	return defaultChecker.Check(existing, proposed)
}

// Check evaluates proposed against the listing's existing reservations.
// Neither argument is modified.
func (c *Checker) Check(existing []models.Reservation, proposed models.Proposal) (Result, error) {
	if err := validateProposal(&proposed); err != nil {
		return Result{}, err
	}

	if proposed.BookingType == models.BookingHourly {
		return c.checkHourly(existing, &proposed), nil
	}
	return c.checkDaily(existing, &proposed), nil
}

func validateProposal(p *models.Proposal) error {
	switch p.BookingType {
	case models.BookingDaily:
		if p.StartDate.IsZero() || p.EndDate.IsZero() {
			return fmt.Errorf("%w: daily proposal requires start and end dates", ErrContractViolation)
		}
	case models.BookingHourly:
		if p.StartDate.IsZero() {
			return fmt.Errorf("%w: hourly proposal requires a date", ErrContractViolation)
		}
		if !p.HasHours() {
			return fmt.Errorf("%w: hourly proposal requires start and end hours", ErrContractViolation)
		}
		if !validHour(*p.StartHour) || !validHour(*p.EndHour) {
			return fmt.Errorf("%w: hours must be within 0..24, got %d..%d",
				ErrContractViolation, *p.StartHour, *p.EndHour)
		}
	default:
		return fmt.Errorf("%w: unknown booking type %q", ErrContractViolation, p.BookingType)
	}
	return nil
}

func validHour(h int) bool {
	return h >= 0 && h <= 24
}

func (c *Checker) checkDaily(existing []models.Reservation, p *models.Proposal) Result {
	start, end := interval.DayNumber(p.StartDate), interval.DayNumber(p.EndDate)
	if start == end {
		return rejected(ReasonSameDayRange, "Check-in and check-out dates cannot be the same", "")
	}
	if end < start {
		return rejected(ReasonInvalidDateRange, "Check-out date must be after check-in date", "")
	}

	nights := interval.Nights{Start: start, End: end}
	for i := range existing {
		r := &existing[i]
		if r.IsHourly() {
			continue
		}
		if nights.Overlaps(interval.OccupiedNights(r.StartDate, r.EndDate)) {
			return rejected(ReasonDateConflict, "These dates are already booked", r.ID)
		}
	}

	for i := range existing {
		r := &existing[i]
		if !r.IsHourly() {
			continue
		}
		day := interval.DayNumber(r.StartDate)
		if !nights.Contains(day) {
			continue
		}
		if day == start {
			return rejected(ReasonHourlyConflict, "Start date already has hourly bookings", r.ID)
		}
		return rejected(ReasonHourlyConflict,
			fmt.Sprintf("Selected dates include %s which already has hourly bookings", interval.DayKey(r.StartDate)), r.ID)
	}

	return admitted()
}

func (c *Checker) checkHourly(existing []models.Reservation, p *models.Proposal) Result {
	day := interval.DayNumber(p.StartDate)
	for i := range existing {
		r := &existing[i]
		if r.IsHourly() {
			continue
		}
		if interval.OccupiedNights(r.StartDate, r.EndDate).Contains(day) {
			return rejected(ReasonFullyBooked, "This date is already fully booked", r.ID)
		}
	}

	slot := interval.HourRange{Start: *p.StartHour, End: *p.EndHour}
	if r := c.slotConflict(existing, day, slot); r != nil {
		return rejected(ReasonTimeSlotConflict, "Time slot not available or conflicts with cleaning time", r.ID)
	}

	if slot.Duration() < c.policy.MinHours {
		return rejected(ReasonDurationTooShort,
			fmt.Sprintf("Minimum booking duration is %d hours", c.policy.MinHours), "")
	}
	if slot.End > c.policy.LatestEndHour {
		return rejected(ReasonPastCutoff,
			fmt.Sprintf("Bookings must end by %s", interval.FormatHour(c.policy.LatestEndHour)), "")
	}
	if c.policy.MaxHours > 0 && slot.Duration() > c.policy.MaxHours {
		return rejected(ReasonDurationTooLong,
			fmt.Sprintf("Bookings longer than %d hours must be booked as a full day", c.policy.MaxHours), "")
	}

	return admitted()
}

// slotConflict returns the hourly reservation whose slot or cleaning block
// intersects slot (with its own cleaning block), if any.
func (c *Checker) slotConflict(existing []models.Reservation, day int, slot interval.HourRange) *models.Reservation {
	if slot.Duration() <= 0 {
		return nil
	}
	candidate := slot.WithBuffer(c.policy.CleaningHours)
	for i := range existing {
		r := &existing[i]
		if !r.IsHourly() || !r.HasHours() || interval.DayNumber(r.StartDate) != day {
			continue
		}
		booked := interval.HourRange{Start: *r.StartHour, End: *r.EndHour}
		if candidate.Overlaps(booked.WithBuffer(c.policy.CleaningHours)) {
			return r
		}
	}
	return nil
}
