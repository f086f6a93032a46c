package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// Sender delivers a rendered message to a channel and returns the
// channel-assigned message id.
type Sender interface {
	SendMessage(ctx context.Context, channelID, text string) (string, error)
}

// TelegramConfig configures the Telegram Bot API client.
type TelegramConfig struct {
	Token       string
	APIEndpoint string
	RatePerSec  float64
	Timeout     time.Duration
}

// TelegramSender sends Markdown messages through the Bot API, throttled to
// stay below Telegram's global send limit.
type TelegramSender struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
}

func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("connect telegram: %w", err)
	}
	return &TelegramSender{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}, nil
}

// API exposes the underlying client for the command bot.
func (s *TelegramSender) API() *tgbotapi.BotAPI {
	return s.api
}

func (s *TelegramSender) SendMessage(ctx context.Context, channelID, text string) (string, error) {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid chat id %q: %w", channelID, err)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	type result struct {
		sent tgbotapi.Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sent, err := s.api.Send(msg)
		done <- result{sent: sent, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		if r.err != nil {
			return "", r.err
		}
		return strconv.Itoa(r.sent.MessageID), nil
	}
}
