package notifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ibeckermayer/renewbot/internal/config"
	"github.com/ibeckermayer/renewbot/internal/message"
)

type fakeSender struct {
	dest []string
	msgs []message.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, dest string, msg message.Message) error {
	f.dest = append(f.dest, dest)
	f.msgs = append(f.msgs, msg)
	return f.err
}

func TestNotifySends(t *testing.T) {
	s := &fakeSender{}
	n := New(s, "456", zaptest.NewLogger(t))

	n.Notify(context.Background(), message.Message{Text: "hi"})

	assert.True(t, n.Enabled())
	assert.Equal(t, []string{"456"}, s.dest)
	assert.Equal(t, "hi", s.msgs[0].Text)
}

func TestNotifyFailureIsLoggedOnly(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	n := New(&fakeSender{err: errors.New("network down")}, "456", zap.New(core))

	n.Notify(context.Background(), message.Message{Text: "hi"})

	entries := logs.FilterMessage("failed to send notification").All()
	assert.Len(t, entries, 1)
}

func TestDisabledNotifierIsNoop(t *testing.T) {
	n := New(nil, "", zaptest.NewLogger(t))
	n.Notify(context.Background(), message.Message{Text: "hi"})

	assert.False(t, n.Enabled())
	assert.Error(t, n.Send(context.Background(), message.Message{Text: "hi"}))
}

func TestNewFromConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name    string
		cfg     config.NotifyConfig
		enabled bool
		wantErr bool
	}{
		{"none", config.NotifyConfig{}, false, false},
		{"telegram", config.NotifyConfig{Provider: "telegram", Telegram: config.TelegramConfig{BotToken: "1:A", ChatID: "2"}}, true, false},
		{"telegram missing chat", config.NotifyConfig{Provider: "telegram", Telegram: config.TelegramConfig{BotToken: "1:A"}}, false, false},
		{"smtp", config.NotifyConfig{Provider: "smtp", SMTP: config.SMTPConfig{Host: "mail", Port: 25, To: "ops@example.com"}}, true, false},
		{"smtp missing host", config.NotifyConfig{Provider: "smtp"}, false, false},
		{"unknown", config.NotifyConfig{Provider: "pigeon"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewFromConfig(tt.cfg, logger)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, n.Enabled())
		})
	}
}
