package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ibeckermayer/renewbot/internal/browser/browsertest"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "续费...", Truncate("续费时长", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
}

func TestFileRecorderWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	page := browsertest.New().SetPage("/x", "<html><body>"+strings.Repeat("x", 2000)+"</body></html>")
	require.NoError(t, page.Navigate(context.Background(), "/x", 0))

	r := NewFileRecorder(dir, "0123456789abcdef", 100, zaptest.NewLogger(t))
	r.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	r.Capture(context.Background(), page, LoginFailed)

	base := filepath.Join(dir, "2026-01-02T03-04-05_01234567_login_failed")
	png, err := os.ReadFile(base + ".png")
	require.NoError(t, err)
	assert.NotEmpty(t, png)

	html, err := os.ReadFile(base + ".html")
	require.NoError(t, err)
	assert.Len(t, []rune(string(html)), 103)
	assert.Equal(t, 1, page.Screenshots)
}

func TestDiscard(t *testing.T) {
	page := browsertest.New()
	Discard.Capture(context.Background(), page, ServerList)
	assert.Zero(t, page.Screenshots)
}
