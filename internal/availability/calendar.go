package availability

import (
	"sort"
	"time"

	"rentbook/internal/interval"
	"rentbook/internal/models"
)

// DateStatus describes one calendar day of a listing.
type DateStatus struct {
	Date                string               `json:"date"`
	FullDayBooked       bool                 `json:"full_day_booked"`
	HasHourlyBookings   bool                 `json:"has_hourly_bookings"`
	BlockedSlots        []interval.HourRange `json:"blocked_slots"`
	AvailableStartHours []int                `json:"available_start_hours"`
}

// DateStatus reports how day is occupied and which hourly start times remain.
func (c *Checker) DateStatus(existing []models.Reservation, day time.Time) DateStatus {
	dayNum := interval.DayNumber(day)
	status := DateStatus{
		Date:         interval.DayKey(day),
		BlockedSlots: c.DisabledSlots(existing, day),
	}
	for i := range existing {
		r := &existing[i]
		if r.IsHourly() {
			if interval.DayNumber(r.StartDate) == dayNum {
				status.HasHourlyBookings = true
			}
			continue
		}
		if interval.OccupiedNights(r.StartDate, r.EndDate).Contains(dayNum) {
			status.FullDayBooked = true
		}
	}
	status.AvailableStartHours = c.AvailableStartHours(existing, day)
	return status
}

// DisabledDates returns every night occupied by a daily reservation, sorted and deduplicated.
// Checkout days are not included.
func (c *Checker) DisabledDates(existing []models.Reservation) []time.Time {
	seen := make(map[int]struct{})
	for i := range existing {
		r := &existing[i]
		if r.IsHourly() {
			continue
		}
		nights := interval.OccupiedNights(r.StartDate, r.EndDate)
		for d := nights.Start; d < nights.End; d++ {
			seen[d] = struct{}{}
		}
	}

	days := make([]int, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Ints(days)

	dates := make([]time.Time, 0, len(days))
	for _, d := range days {
		dates = append(dates, interval.FromDayNumber(d))
	}
	return dates
}

// DisabledSlots returns the booked hourly slots on day followed by their cleaning blocks,
// ordered by start hour.
func (c *Checker) DisabledSlots(existing []models.Reservation, day time.Time) []interval.HourRange {
	dayNum := interval.DayNumber(day)
	var slots []interval.HourRange
	for i := range existing {
		r := &existing[i]
		if !r.IsHourly() || !r.HasHours() || interval.DayNumber(r.StartDate) != dayNum {
			continue
		}
		booked := interval.HourRange{Start: *r.StartHour, End: *r.EndHour}
		slots = append(slots, booked, booked.CleaningBlock(c.policy.CleaningHours))
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start < slots[j].Start })
	return slots
}

// AvailableStartHours lists start hours within business hours for which a booking of
// the minimum duration would be admitted.
func (c *Checker) AvailableStartHours(existing []models.Reservation, day time.Time) []int {
	hours := []int{}
	last := c.policy.BusinessEndHour - c.policy.MinHours
	for h := c.policy.BusinessStartHour; h <= last; h++ {
		proposal := models.Proposal{
			BookingType: models.BookingHourly,
			StartDate:   day,
			EndDate:     day,
			StartHour:   models.Hour(h),
			EndHour:     models.Hour(h + c.policy.MinHours),
		}
		res, err := c.Check(existing, proposal)
		if err == nil && res.Admitted {
			hours = append(hours, h)
		}
	}
	return hours
}
