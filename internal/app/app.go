package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ibeckermayer/renewbot/internal/auth"
	"github.com/ibeckermayer/renewbot/internal/browser"
	"github.com/ibeckermayer/renewbot/internal/challenge"
	"github.com/ibeckermayer/renewbot/internal/config"
	"github.com/ibeckermayer/renewbot/internal/diagnostics"
	"github.com/ibeckermayer/renewbot/internal/message"
	"github.com/ibeckermayer/renewbot/internal/notifier"
	"github.com/ibeckermayer/renewbot/internal/pacing"
	"github.com/ibeckermayer/renewbot/internal/renewal"
	"github.com/ibeckermayer/renewbot/internal/subscription"
	"github.com/ibeckermayer/renewbot/internal/types"
)

// finishTimeout bounds notification and history writes after the run.
const finishTimeout = 30 * time.Second

// Launcher starts a browser session. It returns the context page calls must
// use, the page driver and a release func that is called exactly once.
type Launcher func(ctx context.Context) (context.Context, browser.Page, func(), error)

// History persists finished runs.
type History interface {
	Record(ctx context.Context, r types.Report) error
}

// Deps are the collaborators of a run. Launch and Notifier are required.
type Deps struct {
	Launch   Launcher
	Notifier *notifier.Notifier
	// History may be nil.
	History History
	// Recorders builds the diagnostics recorder for a run id. Nil disables
	// artifact capture.
	Recorders func(runID string) diagnostics.Recorder
	// Pacer defaults to the configured delay window.
	Pacer pacing.Pauser
}

// App runs the login, check and renew pipeline.
type App struct {
	cfg     *config.Config
	deps    Deps
	builder *message.Builder
	logger  *zap.Logger

	newID func() string
	now   func() time.Time
}

// New creates an App.
func New(cfg *config.Config, deps Deps, logger *zap.Logger) (*App, error) {
	if deps.Launch == nil {
		return nil, errors.New("app: launcher is required")
	}
	if deps.Recorders == nil {
		deps.Recorders = func(string) diagnostics.Recorder { return diagnostics.Discard }
	}
	if deps.Pacer == nil {
		deps.Pacer = pacing.New(cfg.Pacing.MinDelayMS, cfg.Pacing.MaxDelayMS)
	}
	builder, err := message.New(cfg.Site.Name)
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:     cfg,
		deps:    deps,
		builder: builder,
		logger:  logger.Named("app"),
		newID:   uuid.NewString,
		now:     time.Now,
	}, nil
}

// ChromeLauncher returns a Launcher that starts a chromedp session.
func ChromeLauncher(opts browser.Options, obs browser.Observer, logger *zap.Logger) Launcher {
	return func(ctx context.Context) (context.Context, browser.Page, func(), error) {
		s, err := browser.Launch(ctx, opts, obs, logger.Named("browser"))
		if err != nil {
			return nil, nil, nil, err
		}
		return s.Context(), s.Page(), s.Close, nil
	}
}

// BrowserOptions maps the browser section of the config onto launch options.
func BrowserOptions(cfg config.BrowserConfig) browser.Options {
	opts := browser.DefaultOptions()
	opts.Headless = cfg.Headless
	opts.RemoteURL = cfg.RemoteURL
	if cfg.UserAgent != "" {
		opts.UserAgent = cfg.UserAgent
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts.WindowWidth, opts.WindowHeight = cfg.WindowWidth, cfg.WindowHeight
	}
	if cfg.ActionTimeout > 0 {
		opts.ActionTimeout = config.Seconds(cfg.ActionTimeout)
	}
	return opts
}

// Run executes one pipeline run. It always sends exactly one notification
// and always releases the browser, whatever the outcome.
func (a *App) Run(ctx context.Context) (report types.Report) {
	report = types.Report{
		RunID:     a.newID(),
		MachineID: a.cfg.Account.MachineID,
		StartedAt: a.now(),
	}
	logger := a.logger.With(zap.String("run", shortID(report.RunID)), zap.String("machine", report.MachineID))
	logger.Info("run started")

	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked", zap.Any("panic", r), zap.Stack("stack"))
			report.Outcome = types.OutcomeFailed
			report.Err = fmt.Errorf("panic: %v", r)
		}
		report.FinishedAt = a.now()
		a.finish(ctx, &report, logger)
	}()

	a.execute(ctx, &report, logger)
	return report
}

// Job adapts Run to the scheduler, reporting failure classes as errors.
func (a *App) Job(ctx context.Context) error {
	r := a.Run(ctx)
	if r.Outcome.IsFailure() {
		if r.Err != nil {
			return fmt.Errorf("run %s: %s: %w", shortID(r.RunID), r.Outcome, r.Err)
		}
		return fmt.Errorf("run %s: %s", shortID(r.RunID), r.Outcome)
	}
	return nil
}

func (a *App) execute(ctx context.Context, report *types.Report, logger *zap.Logger) {
	fail := func(err error) {
		report.Outcome = types.OutcomeFailed
		report.Err = err
	}

	runCtx, page, release, err := a.deps.Launch(ctx)
	if err != nil {
		fail(fmt.Errorf("failed to start browser: %w", err))
		return
	}
	defer func() {
		release()
		logger.Debug("browser released")
	}()

	cfg := a.cfg
	rec := a.deps.Recorders(report.RunID)

	gate := challenge.NewGate(rec, logger)
	gate.Timeout = config.Seconds(cfg.Browser.ChallengeTimeout)

	loginOpts := auth.DefaultOptions(cfg.LoginURL())
	loginOpts.NavigationTimeout = config.Seconds(cfg.Browser.LoginTimeout)
	loginOpts.FormTimeout = config.Seconds(cfg.Browser.FormTimeout)
	loginOpts.SubmitTimeout = config.Seconds(cfg.Browser.SubmitTimeout)

	creds := types.Credentials{Username: cfg.Account.Username, Password: cfg.Account.Password}
	res, err := auth.NewFlow(loginOpts, gate, a.deps.Pacer, rec, logger).Login(runCtx, page, creds)
	if err != nil {
		fail(err)
		return
	}
	if res != auth.LoggedIn {
		logger.Warn("login did not succeed", zap.Stringer("result", res))
		report.Outcome = res.Outcome()
		report.Err = res.Err()
		return
	}

	days, found, err := a.checkSubscription(runCtx, page, gate, rec, logger)
	if err != nil {
		fail(err)
		return
	}
	if !found {
		report.Outcome = types.OutcomeInfoNotFound
		return
	}
	report.DaysLeft, report.HasDays = days, true

	if !subscription.NeedsRenewal(days, cfg.Renewal.ThresholdDays) {
		logger.Info("renewal not needed", zap.Int("days_left", days), zap.Int("threshold", cfg.Renewal.ThresholdDays))
		report.Outcome = types.OutcomeNotNeeded
		return
	}

	renewOpts := renewal.DefaultOptions(cfg.DetailURL())
	if cfg.Renewal.Duration != "" {
		renewOpts.Duration = cfg.Renewal.Duration
	}
	renewOpts.NavigationTimeout = config.Seconds(cfg.Browser.PageTimeout)
	renewOpts.DialogTimeout = config.Seconds(cfg.Browser.DialogTimeout)
	renewOpts.ResponseTimeout = config.Seconds(cfg.Browser.ResponseTimeout)

	outcome, err := renewal.NewFlow(renewOpts, a.deps.Pacer, logger).Renew(runCtx, page, report.MachineID, days)
	if err != nil {
		fail(err)
		return
	}
	report.Outcome = outcome
}

// checkSubscription opens the server list and reads the remaining days for
// the configured machine.
func (a *App) checkSubscription(ctx context.Context, page browser.Page, gate *challenge.Gate, rec diagnostics.Recorder, logger *zap.Logger) (int, bool, error) {
	listURL := a.cfg.ListURL()
	logger.Info("opening server list", zap.String("url", listURL))
	if err := page.Navigate(ctx, listURL, config.Seconds(a.cfg.Browser.PageTimeout)); err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		logger.Warn("server list did not finish loading, continuing", zap.Error(err))
	}
	gate.AwaitPassable(ctx, page)
	rec.Capture(ctx, page, diagnostics.ServerList)

	snap, err := page.Snapshot(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read server list: %w", err)
	}

	id := a.cfg.Account.MachineID
	days, ok := subscription.FindDaysLeft(snap.HTML, id)
	if !ok {
		days, ok = subscription.FindDaysLeft(snap.Text, id)
	}
	if !ok {
		logger.Warn("machine not found on server list")
		return 0, false, nil
	}
	logger.Info("subscription found", zap.Int("days_left", days))
	return days, true, nil
}

// finish sends the single notification and records the run. Both use a
// context detached from the run so they still happen after a timeout.
func (a *App) finish(ctx context.Context, report *types.Report, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	data := message.Data{MachineID: report.MachineID, DaysLeft: report.DaysLeft}
	if report.Err != nil {
		data.Error = report.Err.Error()
	}
	msg, err := a.builder.Build(report.Outcome, data)
	if err != nil {
		logger.Error("failed to build message", zap.Error(err))
		msg = message.Message{Subject: "[renewbot] " + string(report.Outcome), Text: string(report.Outcome)}
	}
	report.Message = msg.Text
	a.deps.Notifier.Notify(ctx, msg)

	if a.deps.History != nil {
		if err := a.deps.History.Record(ctx, *report); err != nil {
			logger.Error("failed to record run", zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("outcome", string(report.Outcome)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	}
	if report.HasDays {
		fields = append(fields, zap.Int("days_left", report.DaysLeft))
	}
	if report.Err != nil {
		fields = append(fields, zap.Error(report.Err))
	}
	if report.Outcome.IsFailure() {
		logger.Warn("run finished", fields...)
	} else {
		logger.Info("run finished", fields...)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
