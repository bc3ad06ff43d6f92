// Package notify pushes booking events to the salon managers' Telegram
// accounts.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"nailbook/internal/events"
	"nailbook/internal/models"
)

// MessageSender is the slice of the bot API the notifier uses.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier fans booking events out to manager chats, rate limited
// to stay under the Bot API flood control.
type TelegramNotifier struct {
	sender   MessageSender
	managers []int64
	limiter  *rate.Limiter
	logger   *zerolog.Logger
}

// New creates a notifier over an authenticated bot API.
func New(sender MessageSender, managers []int64, logger *zerolog.Logger) *TelegramNotifier {
	// Bot API allows ~30 messages per second overall.
	return &TelegramNotifier{
		sender:   sender,
		managers: managers,
		limiter:  rate.NewLimiter(rate.Limit(20), 30),
		logger:   logger,
	}
}

// NewBot authenticates with the Bot API token.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return api, nil
}

// Subscribe registers the notifier on the event bus.
func (n *TelegramNotifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.TypeBookingCreated, n.onBookingEvent("New booking"))
	bus.Subscribe(events.TypeBookingConfirmed, n.onBookingEvent("Booking confirmed"))
	bus.Subscribe(events.TypeBookingCancelled, n.onBookingEvent("Booking cancelled"))
	bus.Subscribe(events.TypeBookingRescheduled, n.onBookingEvent("Booking rescheduled"))
}

func (n *TelegramNotifier) onBookingEvent(title string) events.EventHandler {
	return func(e events.Event) error {
		var b models.Booking
		if err := json.Unmarshal(e.Payload, &b); err != nil {
			return fmt.Errorf("decode %s payload: %w", e.Type, err)
		}
		n.Broadcast(context.Background(), formatBooking(title, &b))
		return nil
	}
}

// Broadcast sends text to every manager chat.
func (n *TelegramNotifier) Broadcast(ctx context.Context, text string) {
	for _, chatID := range n.managers {
		if err := n.limiter.Wait(ctx); err != nil {
			return
		}
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.sender.Send(msg); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("telegram send failed")
		}
	}
}

func formatBooking(title string, b *models.Booking) string {
	text := fmt.Sprintf("%s\nRef: %s\nService: %s\nStatus: %s",
		title, b.BookingID, b.ServiceType, b.Status)
	if b.CustomerID != "" && b.CustomerID != models.CustomerPending {
		text += fmt.Sprintf("\nCustomer: %s", b.CustomerID)
	}
	return text
}
