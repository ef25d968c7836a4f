package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/renewbot/internal/message"
)

func TestTelegramSend(t *testing.T) {
	var got map[string]string
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	s := NewTelegramSender("123:ABC", server.URL)
	err := s.Send(context.Background(), "456", message.Message{Text: "✅ 续费成功"})

	require.NoError(t, err)
	assert.Equal(t, "/bot123:ABC/sendMessage", path)
	assert.Equal(t, map[string]string{"chat_id": "456", "text": "✅ 续费成功", "parse_mode": "Markdown"}, got)
}

func TestTelegramSendAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()

	err := NewTelegramSender("123:ABC", server.URL).Send(context.Background(), "456", message.Message{Text: "x"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramSendHidesToken(t *testing.T) {
	err := NewTelegramSender("secret-token", "http://127.0.0.1:1").Send(context.Background(), "1", message.Message{Text: "x"})

	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestSMTPSend(t *testing.T) {
	s := NewSMTPSender("mail.example.com", 587, "bot", "pw", "bot@example.com")

	var addr string
	var body []byte
	s.send = func(a string, _ smtp.Auth, from string, to []string, msg []byte) error {
		addr = a
		body = msg
		assert.Equal(t, "bot@example.com", from)
		assert.Equal(t, []string{"ops@example.com"}, to)
		return nil
	}

	err := s.Send(context.Background(), "ops@example.com", message.Message{Subject: "[renewbot] 续费", Text: "line1\nline2"})
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:587", addr)
	mail := string(body)
	assert.Contains(t, mail, "To: ops@example.com\r\n")
	assert.Contains(t, mail, "Subject: =?utf-8?q?")
	assert.True(t, strings.HasSuffix(mail, "line1\r\nline2\r\n"))
}
