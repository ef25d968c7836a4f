package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ibeckermayer/renewbot/internal/message"
)

// DefaultTelegramAPI is the Bot API base URL.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramSender sends messages through a Telegram bot.
type TelegramSender struct {
	botToken string
	baseURL  string
	client   *http.Client
}

// NewTelegramSender creates a sender for botToken. An empty baseURL uses
// the public Bot API.
func NewTelegramSender(botToken, baseURL string) *TelegramSender {
	if baseURL == "" {
		baseURL = DefaultTelegramAPI
	}
	return &TelegramSender{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts msg.Text to chatID in Markdown mode.
func (t *TelegramSender) Send(ctx context.Context, chatID string, msg message.Message) error {
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       msg.Text,
		"parse_mode": "Markdown",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of the error.
		return fmt.Errorf("telegram request failed: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var result telegramResponse
	if err := json.Unmarshal(body, &result); err != nil || resp.StatusCode != http.StatusOK || !result.OK {
		if result.Description != "" {
			return fmt.Errorf("telegram API error (%d): %s", resp.StatusCode, result.Description)
		}
		return fmt.Errorf("telegram API error (%d): %s", resp.StatusCode, string(body))
	}
	return nil
}

func unwrapURLError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
