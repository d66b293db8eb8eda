// Package notify abstracts "announce a triggered alert" behind a sink
// interface so the service layer stays ignorant of delivery channels.
//
// Delivery is best effort and fire-and-forget: a sink that cannot deliver
// logs and moves on, it never propagates an error back into the alert path.
// The on-screen toast and alert tone are handled by chart clients reacting
// to the alert_fired event; the sinks here cover the out-of-band channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/whdcks5588-jpg/chanyview/internal/model"
)

// Notification describes one triggered alert.
type Notification struct {
	Symbol    string
	Timeframe model.Timeframe
	Alert     model.Alert
	Price     decimal.Decimal // trade price that tripped the threshold
	Time      time.Time
}

// Sink consumes alert notifications.
type Sink interface {
	Notify(ctx context.Context, n Notification)
}

// MultiSink fans a notification out to every child sink in order.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, n Notification) {
	for _, s := range m {
		s.Notify(ctx, n)
	}
}

// LogSink writes triggered alerts to the structured log. It is always
// installed so every trigger leaves a trace regardless of configuration.
type LogSink struct{}

func (LogSink) Notify(_ context.Context, n Notification) {
	log.Info().
		Str("symbol", n.Symbol).
		Str("timeframe", string(n.Timeframe)).
		Str("alert_id", n.Alert.ID).
		Str("threshold", n.Alert.Price.String()).
		Str("price", n.Price.String()).
		Msg("price alert triggered")
}

// TelegramSink pushes triggered alerts to a Telegram chat. This is the
// system-level notification channel; it may be unavailable (missing token,
// revoked bot, network trouble) and the alert path proceeds regardless.
type TelegramSink struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// ErrTelegramNotConfigured indicates a missing token or chat id.
var ErrTelegramNotConfigured = errors.New("telegram sink not configured")

// NewTelegramSink authorizes the bot for the given token and target chat.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	if token == "" || chatID == 0 {
		return nil, ErrTelegramNotConfigured
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize telegram bot: %w", err)
	}

	log.Info().Str("account", bot.Self.UserName).Msg("telegram sink authorized")
	return &TelegramSink{bot: bot, chatID: chatID}, nil
}

func (s *TelegramSink) Notify(_ context.Context, n Notification) {
	text := fmt.Sprintf("🔔 %s %s alert: price %s crossed %s",
		n.Symbol, n.Timeframe, n.Price.String(), n.Alert.Price.String())

	if _, err := s.bot.Send(tgbotapi.NewMessage(s.chatID, text)); err != nil {
		log.Warn().Err(err).
			Str("alert_id", n.Alert.ID).
			Msg("failed to deliver telegram notification")
	}
}
