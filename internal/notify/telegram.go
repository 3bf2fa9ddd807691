package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramConfig configures the Telegram sink.
type TelegramConfig struct {
	Token  string
	ChatID string
	// Endpoint is the Bot API URL template, "%s" for token then method.
	Endpoint string
	Timeout  time.Duration
}

// Telegram sends alerts through the Telegram Bot API.
type Telegram struct {
	cfg    TelegramConfig
	client *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegram validates cfg. The bot is authenticated on first send so an
// unreachable API does not block startup.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is required")
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		return nil, errors.New("telegram chat id is required")
	}
	if !strings.HasPrefix(cfg.ChatID, "@") {
		if _, err := strconv.ParseInt(cfg.ChatID, 10, 64); err != nil {
			return nil, fmt.Errorf("telegram chat id must be numeric or @channel: %w", err)
		}
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = tgbotapi.APIEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Telegram{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

// Notify sends text to the configured chat.
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	bot, err := t.ensureBot()
	if err != nil {
		return err
	}
	if _, err := bot.Send(t.message(Truncate(text, MaxMessageLength))); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (t *Telegram) message(text string) tgbotapi.MessageConfig {
	if strings.HasPrefix(t.cfg.ChatID, "@") {
		return tgbotapi.NewMessageToChannel(t.cfg.ChatID, text)
	}
	id, _ := strconv.ParseInt(t.cfg.ChatID, 10, 64) // validated in NewTelegram
	return tgbotapi.NewMessage(id, text)
}

func (t *Telegram) ensureBot() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.cfg.Token, t.cfg.Endpoint, t.client)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	t.bot = bot
	return bot, nil
}
