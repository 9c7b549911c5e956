package admission

import (
	"errors"
	"fmt"
	"strings"

	"rentbook/internal/availability"
)

type Code string

const (
	CodeMissingFields       Code = "MissingFields"
	CodeMissingTimes        Code = "MissingTimes"
	CodeInvalidBookingType  Code = "InvalidBookingType"
	CodeInvalidDateFormat   Code = "InvalidDateFormat"
	CodeInvalidTimeFormat   Code = "InvalidTimeFormat"
	CodeListingNotFound     Code = "ListingNotFound"
	CodeReservationNotFound Code = "ReservationNotFound"
	CodeForbidden           Code = "Forbidden"
	CodeIdempotencyConflict Code = "IdempotencyConflict"
)

// ErrInfrastructure marks failures of storage or other collaborators.
// Callers may retry the same request with the same idempotency key.
var ErrInfrastructure = errors.New("infrastructure error")

// Rejection is a deterministic business outcome. Retrying the same request yields the same rejection.
type Rejection struct {
	Code       Code   `json:"code"`
	Message    string `json:"message"`
	ConflictID string `json:"conflict_id,omitempty"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

func reject(code Code, format string, args ...interface{}) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

func fromResult(res availability.Result) *Rejection {
	return &Rejection{Code: Code(res.Reason), Message: res.Detail, ConflictID: res.ConflictID}
}

func missingFields(names []string) *Rejection {
	return reject(CodeMissingFields, "Missing required fields: %s", strings.Join(names, ", "))
}

// AsRejection unwraps a business rejection from err.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// IsInfrastructure reports whether err is a storage or collaborator failure.
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}

func infra(msg string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInfrastructure, msg, err)
}
