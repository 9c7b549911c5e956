// Package notify tells listing hosts about reservation changes.
package notify

import (
	"fmt"
	"strings"

	"rentbook/internal/domain"
	"rentbook/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type TelegramNotifier struct {
	bot    domain.TelegramSender
	logger *zerolog.Logger
}

func NewTelegramNotifier(bot domain.TelegramSender, logger *zerolog.Logger) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, logger: logger}
}

// Subscribe registers the notifier for reservation events on bus.
func (n *TelegramNotifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventReservationCreated, n.HandleEvent)
	bus.Subscribe(events.EventReservationDeleted, n.HandleEvent)
}

// HandleEvent sends one message to the host chat of the listing.
// Listings without a host chat are skipped.
func (n *TelegramNotifier) HandleEvent(ev *events.Event) error {
	payload, err := events.DecodeReservation(ev)
	if err != nil {
		return err
	}
	if payload.HostChatID == 0 {
		n.logger.Debug().Str("listing_id", payload.ListingID).Msg("No host chat, notification skipped")
		return nil
	}

	msg := tgbotapi.NewMessage(payload.HostChatID, FormatMessage(ev.Type, payload))
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram notification for %s: %w", payload.ReservationID, err)
	}
	return nil
}

// FormatMessage renders a reservation event as plain text.
func FormatMessage(eventType string, p events.ReservationEventPayload) string {
	var b strings.Builder

	switch eventType {
	case events.EventReservationCreated:
		b.WriteString("🆕 Новое бронирование")
	case events.EventReservationDeleted:
		b.WriteString("❌ Бронирование отменено")
	default:
		b.WriteString(eventType)
	}

	title := p.ListingTitle
	if title == "" {
		title = p.ListingID
	}
	fmt.Fprintf(&b, "\n\n🏠 %s", title)

	if p.StartTime != "" {
		fmt.Fprintf(&b, "\n📅 %s, %s–%s", p.StartDate, p.StartTime, p.EndTime)
	} else {
		fmt.Fprintf(&b, "\n📅 %s → %s", p.StartDate, p.EndDate)
		if p.HasLateCheckout {
			b.WriteString(" (поздний выезд)")
		}
	}
	fmt.Fprintf(&b, "\n💰 %d", p.TotalPrice)
	fmt.Fprintf(&b, "\n👤 %s", p.UserID)
	if eventType == events.EventReservationDeleted && p.ChangedBy != "" && p.ChangedBy != p.UserID {
		fmt.Fprintf(&b, "\nОтменил: %s", p.ChangedBy)
	}
	fmt.Fprintf(&b, "\nID: %s", p.ReservationID)
	return b.String()
}
