package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventReservationCreated = "reservation_created"
	EventReservationDeleted = "reservation_deleted"
)

// ReservationEventPayload is the reservation snapshot sent to event consumers.
type ReservationEventPayload struct {
	ReservationID   string    `json:"reservation_id"`
	ListingID       string    `json:"listing_id"`
	ListingTitle    string    `json:"listing_title,omitempty"`
	HostChatID      int64     `json:"host_chat_id,omitempty"`
	UserID          string    `json:"user_id"`
	BookingType     string    `json:"booking_type"`
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date"`
	StartTime       string    `json:"start_time,omitempty"`
	EndTime         string    `json:"end_time,omitempty"`
	TotalPrice      int64     `json:"total_price"`
	HasLateCheckout bool      `json:"has_late_checkout,omitempty"`
	ChangedBy       string    `json:"changed_by,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged when logger is set.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and returns how many handlers failed.
func (b *EventBus) Publish(event *Event) int {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	failed := 0
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			failed++
			if b.logger != nil {
				b.logger.Error().Err(err).Str("event", event.Type).Msg("Event handler failed")
			}
		}
	}
	return failed
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// DecodeReservation unpacks a reservation event payload.
func DecodeReservation(event *Event) (ReservationEventPayload, error) {
	var payload ReservationEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return ReservationEventPayload{}, fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	return payload, nil
}
