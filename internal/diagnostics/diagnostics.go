// Package diagnostics writes screenshots and truncated HTML dumps at
// defined points of a run. Artifacts are informational only; nothing in
// the pipeline reads them back.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/renewbot/internal/browser"
)

// Point names where in the run an artifact was captured.
type Point string

const (
	ChallengeTimeout Point = "challenge_timeout"
	LoginFormMissing Point = "login_form_missing"
	AfterLogin       Point = "after_login"
	LoginFailed      Point = "login_failed"
	ServerList       Point = "server_list"
)

// DefaultHTMLLimit is the number of characters of page HTML kept per dump.
const DefaultHTMLLimit = 500

// Recorder captures the page state at a point. Implementations log their own
// failures and never return them.
type Recorder interface {
	Capture(ctx context.Context, page browser.Page, point Point)
}

type discard struct{}

func (discard) Capture(context.Context, browser.Page, Point) {}

// Discard drops every capture.
var Discard Recorder = discard{}

// FileRecorder writes <timestamp>_<run>_<point>.png and .html into dir.
type FileRecorder struct {
	dir       string
	runID     string
	htmlLimit int
	logger    *zap.Logger
	now       func() time.Time
}

// NewFileRecorder creates a recorder for one run.
func NewFileRecorder(dir, runID string, htmlLimit int, logger *zap.Logger) *FileRecorder {
	if htmlLimit <= 0 {
		htmlLimit = DefaultHTMLLimit
	}
	return &FileRecorder{
		dir:       dir,
		runID:     runID,
		htmlLimit: htmlLimit,
		logger:    logger.Named("diagnostics"),
		now:       time.Now,
	}
}

// Capture saves a screenshot and the head of the document HTML.
func (r *FileRecorder) Capture(ctx context.Context, page browser.Page, point Point) {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		r.logger.Warn("failed to create diagnostics dir", zap.String("dir", r.dir), zap.Error(err))
		return
	}
	base := filepath.Join(r.dir, r.filename(point))

	if png, err := page.Screenshot(ctx); err != nil {
		r.logger.Warn("screenshot failed", zap.String("point", string(point)), zap.Error(err))
	} else if err := os.WriteFile(base+".png", png, 0644); err != nil {
		r.logger.Warn("failed to write screenshot", zap.Error(err))
	}

	snap, err := page.Snapshot(ctx)
	if err != nil {
		r.logger.Warn("snapshot failed", zap.String("point", string(point)), zap.Error(err))
		return
	}
	excerpt := Truncate(snap.HTML, r.htmlLimit)
	if err := os.WriteFile(base+".html", []byte(excerpt), 0644); err != nil {
		r.logger.Warn("failed to write html dump", zap.Error(err))
	}

	r.logger.Info("captured page",
		zap.String("point", string(point)),
		zap.String("url", snap.URL),
		zap.String("path", base),
	)
	r.logger.Debug("page html", zap.String("point", string(point)), zap.String("html", excerpt))
}

func (r *FileRecorder) filename(point Point) string {
	run := r.runID
	if len(run) > 8 {
		run = run[:8]
	}
	return fmt.Sprintf("%s_%s_%s", r.now().Format("2006-01-02T15-04-05"), run, point)
}

// Truncate keeps the first limit characters of s, marking the cut with "...".
func Truncate(s string, limit int) string {
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
