package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"notification-engine/internal/config"
	"notification-engine/internal/logging"
	"notification-engine/internal/models"
)

// Notifier forwards critical system alerts to an operator Telegram chat.
// Sends are rate limited so an alert storm cannot flood the chat or trip
// Telegram's API limits.
type Notifier struct {
	bot     *bot.Bot
	chatID  int64
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewNotifier builds a Notifier from configuration. It returns nil when the
// bot token or chat ID is unset; callers treat a nil Notifier as disabled.
func NewNotifier(cfg config.Config, logger *logging.Logger) (*Notifier, error) {
	if cfg.Ops.TelegramBotToken == "" || cfg.Ops.TelegramChatID == 0 {
		return nil, nil
	}

	b, err := bot.New(cfg.Ops.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}

	perSecond := cfg.Ops.TelegramRate
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Notifier{
		bot:     b,
		chatID:  cfg.Ops.TelegramChatID,
		limiter: rate.NewLimiter(rate.Limit(float64(perSecond)), perSecond),
		logger:  logger,
	}, nil
}

// NotifyAlert sends one alert to the ops chat, retrying transient failures.
func (n *Notifier) NotifyAlert(ctx context.Context, alert models.SystemAlert) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}

	text := fmt.Sprintf(
		"*%s*\n%s\n\n*Severity:* %s\n*Kind:* %s\n*Raised:* %s",
		alert.Title,
		alert.Message,
		alert.Severity,
		alert.Kind,
		alert.CreatedAt.Format(time.RFC3339),
	)

	return retry(n.logger, 3, time.Second, func() error {
		params := &bot.SendMessageParams{
			ChatID:    n.chatID,
			Text:      text,
			ParseMode: "Markdown",
		}
		if _, err := n.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", n.chatID, err)
		}
		return nil
	})
}

func retry(logger *logging.Logger, maxAttempts int, delay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			logger.Errorf("Attempt %d/%d failed: %v", attempt, maxAttempts, err)
			if attempt < maxAttempts {
				time.Sleep(delay)
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
}
