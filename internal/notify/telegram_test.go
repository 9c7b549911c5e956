package notify

import (
	"encoding/json"
	"errors"
	"io"
	"testing"

	"rentbook/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func event(t *testing.T, eventType string, p events.ReservationEventPayload) *events.Event {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return &events.Event{Type: eventType, Payload: raw}
}

func TestTelegramNotifier(t *testing.T) {
	logger := zerolog.New(io.Discard)
	sender := new(mockTelegramSender)
	notifier := NewTelegramNotifier(sender, &logger)

	payload := events.ReservationEventPayload{
		ReservationID: "r-1",
		ListingID:     "loft",
		ListingTitle:  "Loft",
		HostChatID:    777,
		UserID:        "guest",
		BookingType:   "hourly",
		StartDate:     "2024-01-20",
		EndDate:       "2024-01-20",
		StartTime:     "10:00",
		EndTime:       "13:00",
		TotalPrice:    18,
	}

	t.Run("SendsToHost", func(t *testing.T) {
		sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.ChatID == 777 && assert.ObjectsAreEqual(FormatMessage(events.EventReservationCreated, payload), msg.Text)
		})).Return(tgbotapi.Message{}, nil).Once()

		assert.NoError(t, notifier.HandleEvent(event(t, events.EventReservationCreated, payload)))
		sender.AssertExpectations(t)
	})

	t.Run("SendError", func(t *testing.T) {
		sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, errors.New("blocked")).Once()

		err := notifier.HandleEvent(event(t, events.EventReservationDeleted, payload))
		assert.ErrorContains(t, err, "r-1")
		sender.AssertExpectations(t)
	})

	t.Run("NoHostChat", func(t *testing.T) {
		p := payload
		p.HostChatID = 0
		assert.NoError(t, notifier.HandleEvent(event(t, events.EventReservationCreated, p)))
		sender.AssertNumberOfCalls(t, "Send", 2)
	})

	t.Run("BadPayload", func(t *testing.T) {
		assert.Error(t, notifier.HandleEvent(&events.Event{Type: events.EventReservationCreated, Payload: []byte("{")}))
	})
}

func TestTelegramNotifier_Subscribe(t *testing.T) {
	logger := zerolog.New(io.Discard)
	sender := new(mockTelegramSender)
	sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil)

	bus := events.NewEventBus(&logger)
	NewTelegramNotifier(sender, &logger).Subscribe(bus)

	p := events.ReservationEventPayload{ReservationID: "r-1", HostChatID: 1}
	require.NoError(t, bus.PublishJSON(events.EventReservationCreated, p))
	require.NoError(t, bus.PublishJSON(events.EventReservationDeleted, p))
	sender.AssertNumberOfCalls(t, "Send", 2)
}

func TestFormatMessage(t *testing.T) {
	daily := events.ReservationEventPayload{
		ReservationID:   "r-2",
		ListingID:       "cabin",
		UserID:          "guest",
		StartDate:       "2024-02-01",
		EndDate:         "2024-02-04",
		TotalPrice:      330,
		HasLateCheckout: true,
	}

	text := FormatMessage(events.EventReservationCreated, daily)
	assert.Contains(t, text, "Новое бронирование")
	assert.Contains(t, text, "cabin")
	assert.Contains(t, text, "2024-02-01 → 2024-02-04 (поздний выезд)")
	assert.Contains(t, text, "330")

	daily.ChangedBy = "host"
	text = FormatMessage(events.EventReservationDeleted, daily)
	assert.Contains(t, text, "Бронирование отменено")
	assert.Contains(t, text, "Отменил: host")
}
