// Package renewal drives the renew dialog on a server's detail page.
package renewal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/renewbot/internal/browser"
	"github.com/ibeckermayer/renewbot/internal/locator"
	"github.com/ibeckermayer/renewbot/internal/pacing"
	"github.com/ibeckermayer/renewbot/internal/types"
)

// Options holds the detail page URL template and the step timeouts.
type Options struct {
	// DetailURL contains "{id}" where the machine id goes.
	DetailURL         string
	Duration          string
	NavigationTimeout time.Duration
	DialogTimeout     time.Duration
	ResponseTimeout   time.Duration
}

// DefaultOptions returns the timeouts used against the panel.
func DefaultOptions(detailURL string) Options {
	return Options{
		DetailURL:         detailURL,
		Duration:          DurationOneMonth,
		NavigationTimeout: 30 * time.Second,
		DialogTimeout:     10 * time.Second,
		ResponseTimeout:   10 * time.Second,
	}
}

// URLFor returns the detail page of machineID.
func (o Options) URLFor(machineID string) string {
	return strings.ReplaceAll(o.DetailURL, "{id}", machineID)
}

// Flow renews one server.
type Flow struct {
	opts   Options
	pacer  pacing.Pauser
	logger *zap.Logger
}

// NewFlow creates a renewal flow.
func NewFlow(opts Options, pacer pacing.Pauser, logger *zap.Logger) *Flow {
	if opts.Duration == "" {
		opts.Duration = DurationOneMonth
	}
	return &Flow{opts: opts, pacer: pacer, logger: logger.Named("renewal")}
}

// Renew opens the detail page of machineID and submits a renewal. Each
// failed step ends in its own outcome; the error is set only when the page
// could not be driven, with OutcomeFailed.
func (f *Flow) Renew(ctx context.Context, page browser.Page, machineID string, daysLeft int) (types.Outcome, error) {
	logger := f.logger.With(zap.String("machine_id", machineID), zap.Int("days_left", daysLeft))

	url := f.opts.URLFor(machineID)
	logger.Info("opening server detail", zap.String("url", url))
	if err := page.Navigate(ctx, url, f.opts.NavigationTimeout); err != nil {
		logger.Warn("detail page navigation incomplete, continuing", zap.Error(err))
	}

	if err := f.pacer.Pause(ctx); err != nil {
		return types.OutcomeFailed, err
	}
	renew, ok, err := f.find(ctx, page, RenewPhrases)
	if err != nil {
		return types.OutcomeFailed, err
	}
	if !ok {
		logger.Error("renew button not found")
		return types.OutcomeRenewControlNotFound, nil
	}
	logger.Info("found renew button", zap.Stringer("ref", renew), zap.String("text", renew.Text))

	if err := page.Click(ctx, renew.Target()); err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			logger.Error("renew button vanished before click", zap.Error(err))
			return types.OutcomeRenewControlNotFound, nil
		}
		return types.OutcomeFailed, fmt.Errorf("failed to click renew: %w", err)
	}
	if err := page.WaitFor(ctx, browser.TextContains(DialogPhrases...), f.opts.DialogTimeout); err != nil {
		logger.Warn("renew dialog not detected, continuing", zap.Error(err))
	}

	if err := f.pacer.Pause(ctx); err != nil {
		return types.OutcomeFailed, err
	}
	changed, err := page.SelectRadio(ctx, DurationInput, f.opts.Duration)
	switch {
	case errors.Is(err, browser.ErrNotFound):
		logger.Warn("duration option not found, keeping the default", zap.String("value", f.opts.Duration))
	case err != nil:
		return types.OutcomeFailed, fmt.Errorf("failed to select duration: %w", err)
	default:
		logger.Info("selected duration", zap.String("value", f.opts.Duration), zap.Bool("changed", changed))
	}

	if err := f.pacer.Pause(ctx); err != nil {
		return types.OutcomeFailed, err
	}
	confirm, ok, err := f.find(ctx, page, ConfirmPhrases)
	if err != nil {
		return types.OutcomeFailed, err
	}
	if !ok {
		logger.Error("confirm button not found")
		return types.OutcomeConfirmControlNotFound, nil
	}
	logger.Info("found confirm button", zap.Stringer("ref", confirm), zap.String("text", confirm.Text))

	if err := page.ClickAndWaitResponse(ctx, confirm.Target(), RenewResponse, f.opts.ResponseTimeout); err != nil {
		switch {
		case browser.IsTimeout(err):
			logger.Warn("no renewal response seen, checking page anyway", zap.Error(err))
		case errors.Is(err, browser.ErrNotFound):
			logger.Error("confirm button vanished before click", zap.Error(err))
			return types.OutcomeConfirmControlNotFound, nil
		default:
			return types.OutcomeFailed, fmt.Errorf("failed to confirm renewal: %w", err)
		}
	}
	logger.Info("renewal submitted")

	snap, err := page.Snapshot(ctx)
	if err != nil {
		return types.OutcomeFailed, fmt.Errorf("failed to read page after renewal: %w", err)
	}
	if browser.ContainsAny(snap.Text, SuccessPhrases) {
		logger.Info("renewal succeeded")
		return types.OutcomeSuccess, nil
	}
	logger.Warn("renewal result could not be confirmed")
	return types.OutcomeUncertain, nil
}

// find discovers a button by text against the current DOM. References are
// never reused across steps.
func (f *Flow) find(ctx context.Context, page browser.Page, phrases []string) (locator.Reference, bool, error) {
	els, err := page.Elements(ctx, ButtonTag)
	if err != nil {
		return locator.Reference{}, false, fmt.Errorf("failed to list buttons: %w", err)
	}
	ref, ok := locator.FindByText(els, ButtonTag, phrases)
	return ref, ok, nil
}
