package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Observer receives browser events. Both methods are called from the
// chromedp event goroutine and must not block.
type Observer interface {
	OnResponse(url string, status int64, headers map[string]string)
	OnConsole(kind, text string)
}

// Session owns one browser context for the duration of a run.
type Session struct {
	ctx    context.Context
	page   *ChromePage
	cancel func()
	once   sync.Once
}

// Launch starts (or attaches to) Chrome, applies the stealth initialization
// and returns a ready session. The caller must Close it.
func Launch(ctx context.Context, opts Options, obs Observer, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		logger.Info("attaching to remote browser", zap.String("url", opts.RemoteURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, AllocatorOptions(opts)...)
	}

	sugar := logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	s := &Session{
		ctx:  browserCtx,
		page: NewChromePage(opts.ActionTimeout),
		cancel: func() {
			if err := chromedp.Cancel(browserCtx); err != nil {
				logger.Debug("browser cancel", zap.Error(err))
			}
			browserCancel()
			allocCancel()
		},
	}

	if obs != nil {
		chromedp.ListenTarget(browserCtx, dispatch(obs))
	}

	if err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Info("browser started", zap.Bool("headless", opts.Headless))
	return s, nil
}

// Page returns the driver for the session's tab.
func (s *Session) Page() Page { return s.page }

// Context returns the browser context; page calls must use it or a descendant.
func (s *Session) Context() context.Context { return s.ctx }

// Close releases the tab, the browser and the allocator. Safe to call twice.
func (s *Session) Close() {
	s.once.Do(s.cancel)
}

func dispatch(obs Observer) func(ev interface{}) {
	return func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if e.Response == nil {
				return
			}
			headers := make(map[string]string, len(e.Response.Headers))
			for k, v := range e.Response.Headers {
				headers[strings.ToLower(k)] = fmt.Sprint(v)
			}
			obs.OnResponse(e.Response.URL, e.Response.Status, headers)
		case *runtime.EventConsoleAPICalled:
			parts := make([]string, 0, len(e.Args))
			for _, arg := range e.Args {
				if len(arg.Value) > 0 {
					parts = append(parts, string(arg.Value))
				} else {
					parts = append(parts, arg.Description)
				}
			}
			obs.OnConsole(string(e.Type), strings.Join(parts, " "))
		}
	}
}

// LogObserver logs responses from Host and console output.
type LogObserver struct {
	Host   string
	Logger *zap.Logger
}

func (o LogObserver) OnResponse(url string, status int64, headers map[string]string) {
	if o.Host != "" && !strings.Contains(url, o.Host) {
		return
	}
	if status == 403 && headers["cf-mitigated"] != "" {
		o.Logger.Warn("challenge response", zap.String("url", url), zap.String("cf-mitigated", headers["cf-mitigated"]))
		return
	}
	o.Logger.Debug("response", zap.String("url", url), zap.Int64("status", status))
}

func (o LogObserver) OnConsole(kind, text string) {
	o.Logger.Debug("console", zap.String("type", kind), zap.String("text", text))
}
