// Package admission turns client reservation requests into persisted reservations.
// Every admitted reservation passes the availability check twice: once against a
// snapshot and once inside the storage write transaction.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentbook/internal/availability"
	"rentbook/internal/database"
	"rentbook/internal/domain"
	"rentbook/internal/events"
	"rentbook/internal/interval"
	"rentbook/internal/metrics"
	"rentbook/internal/models"
	"rentbook/internal/pricing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const outcomeAdmitted = "admitted"

type Controller struct {
	store          domain.ReservationStore
	idempotency    domain.IdempotencyStore
	checker        *availability.Checker
	pricer         *pricing.Calculator
	eventBus       domain.EventPublisher
	syncWorker     domain.SyncWorker
	idempotencyTTL time.Duration
	logger         *zerolog.Logger
}

// NewController wires the admission path. Everything except store may be nil.
func NewController(
	store domain.ReservationStore,
	idempotency domain.IdempotencyStore,
	checker *availability.Checker,
	pricer *pricing.Calculator,
	eventBus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	idempotencyTTL time.Duration,
	logger *zerolog.Logger,
) *Controller {
	if checker == nil {
		checker = availability.NewChecker(availability.DefaultPolicy())
	}
	if pricer == nil {
		pricer = pricing.NewCalculator(pricing.DefaultPolicy())
	}
	if idempotencyTTL <= 0 {
		idempotencyTTL = models.IdempotencyTTL * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Controller{
		store:          store,
		idempotency:    idempotency,
		checker:        checker,
		pricer:         pricer,
		eventBus:       eventBus,
		syncWorker:     syncWorker,
		idempotencyTTL: idempotencyTTL,
		logger:         logger,
	}
}

// Admission is the result of a successful Admit. Replayed is set when the
// reservation was created by an earlier request with the same idempotency key.
type Admission struct {
	Reservation *models.Reservation `json:"reservation"`
	Replayed    bool                `json:"replayed"`
}

// Advice is the advisory answer: availability and the price the server would charge.
type Advice struct {
	Result availability.Result `json:"result"`
	Quote  pricing.Quote       `json:"quote"`
}

// Admit validates req, checks availability, prices it and persists the reservation for userID.
// Business outcomes are returned as *Rejection, storage failures wrap ErrInfrastructure.
func (c *Controller) Admit(ctx context.Context, req Request, userID string) (adm *Admission, err error) {
	started := time.Now()
	bookingType := req.BookingType
	defer func() {
		metrics.ObserveAdmission(bookingType, outcome(err), time.Since(started))
	}()

	proposal, rej := req.proposal(true)
	if rej != nil {
		return nil, rej
	}
	bookingType = string(proposal.BookingType)

	listing, err := c.Listing(ctx, proposal.ListingID)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		prior, err := c.replay(ctx, req.IdempotencyKey, proposal.ListingID, userID)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return &Admission{Reservation: prior, Replayed: true}, nil
		}
	}

	existing, err := c.store.ListReservations(ctx, listing.ID)
	if err != nil {
		return nil, infra("failed to load reservations", err)
	}
	if err := c.check(existing, proposal); err != nil {
		return nil, err
	}

	total, err := c.pricer.Compute(listing, proposal, proposal.HasLateCheckout)
	if err != nil {
		return nil, fmt.Errorf("failed to price listing %s: %w", listing.ID, err)
	}
	if req.TotalPrice != nil && *req.TotalPrice != total {
		c.logger.Warn().
			Str("listing_id", listing.ID).
			Int64("client_price", *req.TotalPrice).
			Int64("price", total).
			Msg("Client price differs from computed price")
	}

	reservation := &models.Reservation{
		ID:              uuid.NewString(),
		ListingID:       listing.ID,
		UserID:          userID,
		BookingType:     proposal.BookingType,
		StartDate:       proposal.StartDate,
		EndDate:         proposal.EndDate,
		StartHour:       proposal.StartHour,
		EndHour:         proposal.EndHour,
		TotalPrice:      total,
		HasLateCheckout: proposal.HasLateCheckout,
		IdempotencyKey:  req.IdempotencyKey,
	}

	err = c.store.CreateReservationChecked(ctx, reservation, func(current []models.Reservation) error {
		return c.check(current, proposal)
	})
	if err != nil {
		if rej, ok := AsRejection(err); ok {
			c.logger.Info().Str("listing_id", listing.ID).Str("code", string(rej.Code)).Msg("Reservation rejected at write time")
			return nil, rej
		}
		// a concurrent request with the same key committed first
		var dup *database.DuplicateKeyError
		if errors.As(err, &dup) {
			prior, err := boundTo(dup.Reservation, proposal.ListingID, userID)
			if err != nil {
				return nil, err
			}
			return &Admission{Reservation: prior, Replayed: true}, nil
		}
		if errors.Is(err, database.ErrDuplicateKey) {
			prior, err := c.replay(ctx, req.IdempotencyKey, proposal.ListingID, userID)
			if err != nil {
				return nil, err
			}
			if prior != nil {
				return &Admission{Reservation: prior, Replayed: true}, nil
			}
		}
		if errors.Is(err, availability.ErrContractViolation) {
			return nil, err
		}
		return nil, infra("failed to create reservation", err)
	}

	if req.IdempotencyKey != "" && c.idempotency != nil {
		if err := c.idempotency.Remember(ctx, req.IdempotencyKey, reservation.ID, c.idempotencyTTL); err != nil {
			c.logger.Warn().Err(err).Str("reservation_id", reservation.ID).Msg("Failed to remember idempotency key")
		}
	}

	c.logger.Info().
		Str("reservation_id", reservation.ID).
		Str("listing_id", listing.ID).
		Str("user_id", userID).
		Str("booking_type", string(reservation.BookingType)).
		Int64("total_price", total).
		Msg("Reservation admitted")

	c.publishEvent(events.EventReservationCreated, reservation, listing, userID)
	c.enqueueSync(ctx, models.SyncTaskUpsert, reservation)

	return &Admission{Reservation: reservation}, nil
}

// Advise runs the same checks as Admit without persisting anything.
// An availability rejection is reported in Advice.Result rather than as an error.
func (c *Controller) Advise(ctx context.Context, req Request) (*Advice, error) {
	proposal, rej := req.proposal(false)
	if rej != nil {
		return nil, rej
	}

	listing, err := c.Listing(ctx, proposal.ListingID)
	if err != nil {
		return nil, err
	}

	existing, err := c.store.ListReservations(ctx, listing.ID)
	if err != nil {
		return nil, infra("failed to load reservations", err)
	}

	result, err := c.checker.Check(existing, proposal)
	if err != nil {
		return nil, err
	}
	quote, err := c.pricer.Quote(listing, proposal)
	if err != nil {
		return nil, fmt.Errorf("failed to price listing %s: %w", listing.ID, err)
	}
	return &Advice{Result: result, Quote: quote}, nil
}

// Cancel deletes a reservation on behalf of its guest or the listing owner.
func (c *Controller) Cancel(ctx context.Context, reservationID, requesterID string) error {
	reservation, err := c.store.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return reject(CodeReservationNotFound, "Reservation %s not found", reservationID)
		}
		return infra("failed to load reservation", err)
	}

	if err := c.store.DeleteReservation(ctx, reservationID, requesterID); err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			return reject(CodeReservationNotFound, "Reservation %s not found", reservationID)
		case errors.Is(err, database.ErrForbidden):
			return reject(CodeForbidden, "Only the guest or the listing owner can cancel this reservation")
		default:
			return infra("failed to delete reservation", err)
		}
	}

	if reservation.IdempotencyKey != "" && c.idempotency != nil {
		if err := c.idempotency.Forget(ctx, reservation.IdempotencyKey); err != nil {
			c.logger.Warn().Err(err).Str("reservation_id", reservationID).Msg("Failed to forget idempotency key")
		}
	}

	c.logger.Info().
		Str("reservation_id", reservationID).
		Str("listing_id", reservation.ListingID).
		Str("requester_id", requesterID).
		Msg("Reservation cancelled")

	listing, err := c.store.GetListing(ctx, reservation.ListingID)
	if err != nil {
		listing = nil
	}
	c.publishEvent(events.EventReservationDeleted, reservation, listing, requesterID)
	c.enqueueSync(ctx, models.SyncTaskDelete, reservation)
	return nil
}

// Reservations lists a listing's reservations ordered by start.
func (c *Controller) Reservations(ctx context.Context, listingID string) ([]models.Reservation, error) {
	if _, err := c.Listing(ctx, listingID); err != nil {
		return nil, err
	}
	reservations, err := c.store.ListReservations(ctx, listingID)
	if err != nil {
		return nil, infra("failed to load reservations", err)
	}
	return reservations, nil
}

// ReservationsInRange lists reservations of a listing occupying any day in [from, to].
func (c *Controller) ReservationsInRange(ctx context.Context, listingID string, from, to time.Time) ([]models.Reservation, error) {
	if _, err := c.Listing(ctx, listingID); err != nil {
		return nil, err
	}
	reservations, err := c.store.ListReservationsInRange(ctx, listingID, interval.Day(from), interval.Day(to))
	if err != nil {
		return nil, infra("failed to load reservations", err)
	}
	return reservations, nil
}

// Calendar is a listing's occupancy around one day.
type Calendar struct {
	ListingID     string                  `json:"listing_id"`
	Day           availability.DateStatus `json:"day"`
	DisabledDates []string                `json:"disabled_dates"`
}

// Calendar reports the status of day and the nights blocked by daily reservations
// within the next models.DefaultCalendarDays days.
func (c *Controller) Calendar(ctx context.Context, listingID string, day time.Time) (*Calendar, error) {
	reservations, err := c.Reservations(ctx, listingID)
	if err != nil {
		return nil, err
	}

	from := interval.DayNumber(day)
	window := interval.Nights{Start: from, End: from + models.DefaultCalendarDays}

	cal := &Calendar{
		ListingID:     listingID,
		Day:           c.checker.DateStatus(reservations, day),
		DisabledDates: []string{},
	}
	for _, d := range c.checker.DisabledDates(reservations) {
		if window.Contains(interval.DayNumber(d)) {
			cal.DisabledDates = append(cal.DisabledDates, interval.DayKey(d))
		}
	}
	return cal, nil
}

// Listing loads a listing, reporting an unknown id as CodeListingNotFound.
func (c *Controller) Listing(ctx context.Context, id string) (*models.Listing, error) {
	listing, err := c.store.GetListing(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, reject(CodeListingNotFound, "Listing %s not found", id)
		}
		return nil, infra("failed to load listing", err)
	}
	return listing, nil
}

func (c *Controller) check(existing []models.Reservation, proposal models.Proposal) error {
	result, err := c.checker.Check(existing, proposal)
	if err != nil {
		return err
	}
	if !result.Admitted {
		return fromResult(result)
	}
	return nil
}

// replay returns the reservation created earlier under key, or nil when the key is unused.
func (c *Controller) replay(ctx context.Context, key, listingID, userID string) (*models.Reservation, error) {
	var prior *models.Reservation

	if c.idempotency != nil {
		id, found, err := c.idempotency.Lookup(ctx, key)
		if err != nil {
			// storage keeps the key unique, so a miss here is only slower
			c.logger.Warn().Err(err).Msg("Idempotency lookup failed")
		}
		if found {
			prior, err = c.store.GetReservation(ctx, id)
			if err != nil && !errors.Is(err, database.ErrNotFound) {
				return nil, infra("failed to load reservation", err)
			}
		}
	}

	if prior == nil {
		r, err := c.store.GetReservationByIdempotencyKey(ctx, key)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, nil
			}
			return nil, infra("failed to look up idempotency key", err)
		}
		prior = r
	}

	return boundTo(prior, listingID, userID)
}

// boundTo accepts prior as a replay only for the same listing and user.
func boundTo(prior *models.Reservation, listingID, userID string) (*models.Reservation, error) {
	if prior.ListingID != listingID || prior.UserID != userID {
		return nil, reject(CodeIdempotencyConflict, "Idempotency key was already used for a different reservation")
	}
	return prior, nil
}

func (c *Controller) publishEvent(eventType string, r *models.Reservation, listing *models.Listing, changedBy string) {
	if c.eventBus == nil {
		return
	}

	payload := events.ReservationEventPayload{
		ReservationID:   r.ID,
		ListingID:       r.ListingID,
		UserID:          r.UserID,
		BookingType:     string(r.BookingType),
		StartDate:       interval.DayKey(r.StartDate),
		EndDate:         interval.DayKey(r.EndDate),
		TotalPrice:      r.TotalPrice,
		HasLateCheckout: r.HasLateCheckout,
		ChangedBy:       changedBy,
		OccurredAt:      time.Now().UTC(),
	}
	if r.HasHours() {
		payload.StartTime = interval.FormatHour(*r.StartHour)
		payload.EndTime = interval.FormatHour(*r.EndHour)
	}
	if listing != nil {
		payload.ListingTitle = listing.Title
		payload.HostChatID = listing.HostChatID
	}

	if err := c.eventBus.PublishJSON(eventType, payload); err != nil {
		c.logger.Error().Err(err).Str("event_type", eventType).Str("reservation_id", r.ID).Msg("publish event error")
	}
}

func (c *Controller) enqueueSync(ctx context.Context, taskType string, r *models.Reservation) {
	if c.syncWorker == nil {
		return
	}
	if err := c.syncWorker.EnqueueTask(ctx, taskType, r); err != nil {
		c.logger.Error().Err(err).Str("reservation_id", r.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

func outcome(err error) string {
	if err == nil {
		return outcomeAdmitted
	}
	if rej, ok := AsRejection(err); ok {
		return string(rej.Code)
	}
	return "error"
}
