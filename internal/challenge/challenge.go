// Package challenge detects the anti-bot interstitial and waits it out.
package challenge

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ibeckermayer/renewbot/internal/browser"
	"github.com/ibeckermayer/renewbot/internal/diagnostics"
)

var (
	// TextPhrases appear in the body of the interstitial.
	TextPhrases = []string{"Checking your browser", "正在检查您的浏览器"}
	// TitlePhrases appear in its title.
	TitlePhrases = []string{"Cloudflare"}
	// ClassPrefix is the vendor class-name prefix of its DOM nodes.
	ClassPrefix = "cf-"
)

// DefaultTimeout bounds the wait for the interstitial to clear.
const DefaultTimeout = 30 * time.Second

// Result of AwaitPassable.
type Result int

const (
	Passed Result = iota
	TimedOut
)

func (r Result) String() string {
	if r == TimedOut {
		return "timed_out"
	}
	return "passed"
}

// Detect reports whether s looks like the interstitial: a known body phrase,
// the provider in the title, or a div carrying a vendor class.
func Detect(s browser.Snapshot) bool {
	if browser.ContainsAny(s.Text, TextPhrases) || browser.ContainsAny(s.Title, TitlePhrases) {
		return true
	}
	return hasVendorClass(s.HTML)
}

func hasVendorClass(html string) bool {
	if html == "" {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	found := false
	doc.Find("div[class]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = strings.Contains(s.AttrOr("class", ""), ClassPrefix)
		return !found
	})
	return found
}

// Cleared holds once the interstitial's text and title markers are gone.
// Vendor classes may linger on the real page and are not waited on.
func Cleared() browser.Condition {
	return browser.AllOf(
		browser.Not(browser.TextContains(TextPhrases...)),
		browser.Not(browser.TitleContains(TitlePhrases...)),
	)
}

// Gate waits out the interstitial. It is advisory: a TimedOut result leaves
// the decision to proceed with the caller.
type Gate struct {
	Timeout  time.Duration
	Recorder diagnostics.Recorder
	logger   *zap.Logger
}

// NewGate returns a gate with the default timeout.
func NewGate(rec diagnostics.Recorder, logger *zap.Logger) *Gate {
	if rec == nil {
		rec = diagnostics.Discard
	}
	return &Gate{
		Timeout:  DefaultTimeout,
		Recorder: rec,
		logger:   logger.Named("challenge"),
	}
}

// AwaitPassable returns Passed when no interstitial is showing or it clears
// in time. On timeout it captures the page and returns TimedOut.
func (g *Gate) AwaitPassable(ctx context.Context, page browser.Page) Result {
	snap, err := page.Snapshot(ctx)
	if err != nil {
		g.logger.Warn("could not inspect page for challenge", zap.Error(err))
		return Passed
	}
	if !Detect(snap) {
		g.logger.Debug("no challenge present")
		return Passed
	}

	g.logger.Info("challenge detected, waiting for it to clear", zap.Duration("timeout", g.Timeout))
	if err := page.WaitFor(ctx, Cleared(), g.Timeout); err != nil {
		g.logger.Warn("challenge did not clear, continuing", zap.Error(err))
		g.Recorder.Capture(ctx, page, diagnostics.ChallengeTimeout)
		return TimedOut
	}

	g.logger.Info("challenge passed")
	return Passed
}
