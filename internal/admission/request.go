package admission

import (
	"rentbook/internal/interval"
	"rentbook/internal/models"
)

// Request is an admission or advisory request as received from a client.
// Dates are YYYY-MM-DD (RFC3339 accepted), times are "HH:MM" on whole hours.
type Request struct {
	ListingID       string `json:"listingId"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate,omitempty"`
	BookingType     string `json:"bookingType,omitempty"`
	StartTime       string `json:"startTime,omitempty"`
	EndTime         string `json:"endTime,omitempty"`
	HasLateCheckout bool   `json:"hasLateCheckout,omitempty"`
	TotalPrice      *int64 `json:"totalPrice,omitempty"`
	IdempotencyKey  string `json:"idempotencyKey,omitempty"`
}

// proposal validates the structure of r and converts it.
// requirePrice is set on the authoritative path, where the client must echo the price it displayed.
func (r *Request) proposal(requirePrice bool) (models.Proposal, *Rejection) {
	var missing []string
	if r.ListingID == "" {
		missing = append(missing, "listingId")
	}
	if r.StartDate == "" {
		missing = append(missing, "startDate")
	}
	if requirePrice && r.TotalPrice == nil {
		missing = append(missing, "totalPrice")
	}

	bookingType := models.BookingType(r.BookingType)
	if bookingType == "" {
		bookingType = models.BookingDaily
	}
	if !bookingType.Valid() {
		return models.Proposal{}, reject(CodeInvalidBookingType, "Unknown booking type %q", r.BookingType)
	}
	if bookingType == models.BookingDaily && r.EndDate == "" {
		missing = append(missing, "endDate")
	}
	if len(missing) > 0 {
		return models.Proposal{}, missingFields(missing)
	}
	if bookingType == models.BookingHourly && (r.StartTime == "" || r.EndTime == "") {
		return models.Proposal{}, reject(CodeMissingTimes, "Start time and end time are required for hourly bookings")
	}

	p := models.Proposal{
		ListingID:       r.ListingID,
		BookingType:     bookingType,
		HasLateCheckout: r.HasLateCheckout,
	}

	start, err := interval.ParseDate(r.StartDate)
	if err != nil {
		return models.Proposal{}, reject(CodeInvalidDateFormat, "Invalid start date %q", r.StartDate)
	}
	p.StartDate = start

	if bookingType == models.BookingHourly {
		// hourly reservations live within one day
		p.EndDate = start
		p.HasLateCheckout = false

		startHour, err := interval.ParseHour(r.StartTime)
		if err != nil {
			return models.Proposal{}, reject(CodeInvalidTimeFormat, "Invalid start time %q", r.StartTime)
		}
		endHour, err := interval.ParseHour(r.EndTime)
		if err != nil {
			return models.Proposal{}, reject(CodeInvalidTimeFormat, "Invalid end time %q", r.EndTime)
		}
		p.StartHour, p.EndHour = models.Hour(startHour), models.Hour(endHour)
		return p, nil
	}

	end, err := interval.ParseDate(r.EndDate)
	if err != nil {
		return models.Proposal{}, reject(CodeInvalidDateFormat, "Invalid end date %q", r.EndDate)
	}
	p.EndDate = end
	return p, nil
}
