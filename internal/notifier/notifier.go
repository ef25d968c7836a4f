// Package notifier delivers the run's status message. Delivery is best
// effort: failures are logged and never returned to the pipeline.
package notifier

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ibeckermayer/renewbot/internal/config"
	"github.com/ibeckermayer/renewbot/internal/message"
	"github.com/ibeckermayer/renewbot/internal/notifier/providers"
)

// Sender delivers one message to a destination (chat id, mail address).
type Sender interface {
	Send(ctx context.Context, destination string, msg message.Message) error
}

// Notifier sends status messages to a fixed destination.
type Notifier struct {
	sender      Sender
	destination string
	logger      *zap.Logger
}

// New creates a notifier. A nil sender yields a disabled notifier.
func New(sender Sender, destination string, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, destination: destination, logger: logger.Named("notifier")}
}

// NewFromConfig creates a notifier based on configuration. Missing
// credentials disable notifications rather than failing.
func NewFromConfig(cfg config.NotifyConfig, logger *zap.Logger) (*Notifier, error) {
	switch cfg.Provider {
	case "", "none":
		return New(nil, "", logger), nil
	case "telegram":
		if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
			logger.Info("telegram not configured, notifications disabled")
			return New(nil, "", logger), nil
		}
		return New(providers.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.APIBase), cfg.Telegram.ChatID, logger), nil
	case "smtp":
		if cfg.SMTP.Host == "" || cfg.SMTP.To == "" {
			logger.Info("smtp not configured, notifications disabled")
			return New(nil, "", logger), nil
		}
		sender := providers.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.From)
		return New(sender, cfg.SMTP.To, logger), nil
	default:
		return nil, fmt.Errorf("unknown notification provider: %s", cfg.Provider)
	}
}

// Enabled reports whether messages are actually delivered.
func (n *Notifier) Enabled() bool {
	return n != nil && n.sender != nil
}

// Notify sends msg, logging any failure.
func (n *Notifier) Notify(ctx context.Context, msg message.Message) {
	if !n.Enabled() {
		if n != nil {
			n.logger.Info("notifications disabled, message not sent", zap.String("text", msg.Text))
		}
		return
	}
	if err := n.sender.Send(ctx, n.destination, msg); err != nil {
		n.logger.Error("failed to send notification", zap.Error(err))
		return
	}
	n.logger.Info("notification sent", zap.String("subject", msg.Subject))
}

// Send delivers msg and returns the delivery error, for interactive checks.
func (n *Notifier) Send(ctx context.Context, msg message.Message) error {
	if !n.Enabled() {
		return fmt.Errorf("notifications are not configured")
	}
	return n.sender.Send(ctx, n.destination, msg)
}
