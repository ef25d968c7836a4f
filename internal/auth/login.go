// Package auth logs into the hosting panel through its web form.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/renewbot/internal/browser"
	"github.com/ibeckermayer/renewbot/internal/captcha"
	"github.com/ibeckermayer/renewbot/internal/challenge"
	"github.com/ibeckermayer/renewbot/internal/diagnostics"
	"github.com/ibeckermayer/renewbot/internal/pacing"
	"github.com/ibeckermayer/renewbot/internal/types"
)

var (
	// ErrFormNotFound means the username field never appeared, even after a
	// second navigation.
	ErrFormNotFound = errors.New("login form not found")
	// ErrNotLoggedIn means the form was submitted but no logged-in marker showed up.
	ErrNotLoggedIn = errors.New("login not confirmed")
	// ErrSubmit means the submit control could not be clicked.
	ErrSubmit = errors.New("login submit failed")
)

// Result of a login attempt.
type Result int

const (
	LoggedIn Result = iota
	NotLoggedIn
	FormNotFound
	NavigationFailed
)

func (r Result) String() string {
	switch r {
	case LoggedIn:
		return "logged_in"
	case NotLoggedIn:
		return "not_logged_in"
	case FormNotFound:
		return "form_not_found"
	case NavigationFailed:
		return "navigation_failed"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Outcome maps a failed login to the run outcome. It is meaningless for LoggedIn.
func (r Result) Outcome() types.Outcome {
	switch r {
	case FormNotFound:
		return types.OutcomeFormNotFound
	case NavigationFailed:
		return types.OutcomeNavigationFailed
	default:
		return types.OutcomeLoginFailed
	}
}

// Err returns the sentinel describing a failed result, or nil for LoggedIn.
func (r Result) Err() error {
	switch r {
	case LoggedIn:
		return nil
	case FormNotFound:
		return ErrFormNotFound
	case NavigationFailed:
		return ErrSubmit
	default:
		return ErrNotLoggedIn
	}
}

// Options holds the login URL and the step timeouts.
type Options struct {
	LoginURL          string
	NavigationTimeout time.Duration
	FormTimeout       time.Duration
	SubmitTimeout     time.Duration
}

// DefaultOptions returns the timeouts the panel needs behind its challenge.
func DefaultOptions(loginURL string) Options {
	return Options{
		LoginURL:          loginURL,
		NavigationTimeout: 60 * time.Second,
		FormTimeout:       10 * time.Second,
		SubmitTimeout:     60 * time.Second,
	}
}

// Flow performs the form login.
type Flow struct {
	opts     Options
	gate     *challenge.Gate
	pacer    pacing.Pauser
	recorder diagnostics.Recorder
	logger   *zap.Logger
}

// NewFlow creates a login flow.
func NewFlow(opts Options, gate *challenge.Gate, pacer pacing.Pauser, rec diagnostics.Recorder, logger *zap.Logger) *Flow {
	if rec == nil {
		rec = diagnostics.Discard
	}
	return &Flow{
		opts:     opts,
		gate:     gate,
		pacer:    pacer,
		recorder: rec,
		logger:   logger.Named("login"),
	}
}

// Login navigates to the login page and submits the form with creds.
// Expected failures are reported through Result; the error is non-nil only
// when the page could not be driven at all.
func (f *Flow) Login(ctx context.Context, page browser.Page, creds types.Credentials) (Result, error) {
	f.logger.Info("starting login", zap.String("url", f.opts.LoginURL), zap.Object("credentials", creds))

	f.navigate(ctx, page)
	f.logger.Info("challenge gate", zap.Stringer("result", f.gate.AwaitPassable(ctx, page)))

	if err := page.WaitVisible(ctx, UsernameField, f.opts.FormTimeout); err != nil {
		f.logger.Warn("login form not visible, navigating again", zap.Error(err))
		f.navigate(ctx, page)
		if err := page.WaitVisible(ctx, UsernameField, f.opts.FormTimeout); err != nil {
			if ctx.Err() != nil {
				return NotLoggedIn, ctx.Err()
			}
			f.logger.Error("login form not found after retry", zap.Error(err))
			f.recorder.Capture(ctx, page, diagnostics.LoginFormMissing)
			return FormNotFound, nil
		}
	}

	if err := f.pacer.Pause(ctx); err != nil {
		return NotLoggedIn, err
	}

	if err := f.fillCaptcha(ctx, page); err != nil {
		return NotLoggedIn, err
	}
	f.logToken(ctx, page)

	if err := f.fill(ctx, page, UsernameField, creds.Username); err != nil {
		return NotLoggedIn, err
	}
	if err := f.fill(ctx, page, PasswordField, creds.Password); err != nil {
		return NotLoggedIn, err
	}

	if err := f.pacer.Pause(ctx); err != nil {
		return NotLoggedIn, err
	}
	if _, err := EnsureChecked(ctx, page, AgreeCheckbox); err != nil {
		return NotLoggedIn, fmt.Errorf("failed to check agreement: %w", err)
	}

	if err := f.pacer.Pause(ctx); err != nil {
		return NotLoggedIn, err
	}
	f.logger.Info("submitting login form")
	if err := page.SubmitAndWaitNavigation(ctx, SubmitButton, f.opts.SubmitTimeout); err != nil {
		if !browser.IsTimeout(err) {
			f.logger.Error("submit failed", zap.Error(err))
			return NavigationFailed, nil
		}
		f.logger.Warn("navigation after submit timed out, checking login state anyway", zap.Error(err))
	}

	f.recorder.Capture(ctx, page, diagnostics.AfterLogin)

	snap, err := page.Snapshot(ctx)
	if err != nil {
		return NotLoggedIn, fmt.Errorf("failed to read page after login: %w", err)
	}
	if !browser.ContainsAny(snap.Text, LoggedInPhrases) {
		f.logger.Error("login failed", zap.String("url", snap.URL), zap.String("title", snap.Title))
		f.recorder.Capture(ctx, page, diagnostics.LoginFailed)
		return NotLoggedIn, nil
	}

	f.logger.Info("logged in", zap.String("url", snap.URL))
	return LoggedIn, nil
}

// navigate loads the login page. Any error is logged and ignored: the page
// may have partially loaded and the form wait decides.
func (f *Flow) navigate(ctx context.Context, page browser.Page) {
	if err := page.Navigate(ctx, f.opts.LoginURL, f.opts.NavigationTimeout); err != nil {
		f.logger.Warn("login page navigation incomplete, continuing", zap.Error(err))
	}
}

func (f *Flow) fill(ctx context.Context, page browser.Page, selector, value string) error {
	if err := f.pacer.Pause(ctx); err != nil {
		return err
	}
	if err := page.Fill(ctx, selector, value); err != nil {
		return fmt.Errorf("failed to fill %s: %w", selector, err)
	}
	return nil
}

// fillCaptcha answers the arithmetic captcha when the field is present and
// its prompt parses. Anything else leaves the field alone.
func (f *Flow) fillCaptcha(ctx context.Context, page browser.Page) error {
	present, err := page.Exists(ctx, CaptchaField)
	if err != nil {
		return fmt.Errorf("failed to look for captcha: %w", err)
	}
	if !present {
		f.logger.Debug("no captcha field")
		return nil
	}

	prompt, err := page.Attribute(ctx, CaptchaField, CaptchaPromptAttr)
	if err != nil {
		f.logger.Warn("could not read captcha prompt", zap.Error(err))
		return nil
	}
	answer, ok := captcha.Solve(prompt)
	if !ok {
		f.logger.Warn("unrecognised captcha prompt, leaving field empty", zap.String("prompt", prompt))
		return nil
	}

	f.logger.Info("solved captcha", zap.String("prompt", prompt), zap.String("answer", answer))
	return f.fill(ctx, page, CaptchaField, answer)
}

func (f *Flow) logToken(ctx context.Context, page browser.Page) {
	token, err := page.Attribute(ctx, CSRFToken, "value")
	if err != nil || token == "" {
		f.logger.Debug("no csrf token on form")
		return
	}
	if len(token) > 10 {
		token = token[:10]
	}
	f.logger.Debug("csrf token present", zap.String("prefix", token))
}

// EnsureChecked leaves the checkbox matching selector checked, clicking it
// only when it is currently unchecked. A missing checkbox is not an error.
func EnsureChecked(ctx context.Context, page browser.Page, selector string) (clicked bool, err error) {
	checked, err := page.Checked(ctx, selector)
	if errors.Is(err, browser.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if checked {
		return false, nil
	}
	if err := page.Click(ctx, browser.CSS(selector)); err != nil {
		return false, err
	}
	return true, nil
}
