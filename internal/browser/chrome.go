package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/errgroup"
)

// ChromePage drives the current tab of a chromedp browser context. Every
// ctx passed to its methods must descend from the Session context.
type ChromePage struct {
	actionTimeout time.Duration
}

var _ Page = (*ChromePage)(nil)

// NewChromePage creates a page driver bounding untimed actions by actionTimeout.
func NewChromePage(actionTimeout time.Duration) *ChromePage {
	if actionTimeout <= 0 {
		actionTimeout = 15 * time.Second
	}
	return &ChromePage{actionTimeout: actionTimeout}
}

func (p *ChromePage) run(ctx context.Context, timeout time.Duration, op string, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = p.actionTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := chromedp.Run(ctx, actions...); err != nil {
		return classify(op, err)
	}
	return nil
}

// classify maps deadline errors onto ErrTimeout so callers can apply their
// continue-on-timeout policy without knowing about chromedp.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, chromedp.ErrPollingTimeout) {
		return fmt.Errorf("%s: %w: %v", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Navigate loads url and waits for the load event.
func (p *ChromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return p.run(ctx, timeout, "navigate "+url, chromedp.Navigate(url))
}

// Snapshot captures the location, title, body text and document HTML.
func (p *ChromePage) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := p.run(ctx, 0, "snapshot",
		chromedp.Location(&s.URL),
		chromedp.Title(&s.Title),
		chromedp.Evaluate(`document.body ? document.body.textContent : ""`, &s.Text),
		chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ""`, &s.HTML),
	)
	return s, err
}

// WaitFor polls cond in the page until it holds.
func (p *ChromePage) WaitFor(ctx context.Context, cond Condition, timeout time.Duration) error {
	return p.run(ctx, timeout+time.Second, "wait for condition",
		chromedp.Poll(cond.Script(), nil,
			chromedp.WithPollingInterval(250*time.Millisecond),
			chromedp.WithPollingTimeout(timeout),
		),
	)
}

// WaitVisible waits until selector matches a visible node.
func (p *ChromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, timeout, "wait visible "+selector, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Exists reports whether selector matches any node right now.
func (p *ChromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := p.run(ctx, 0, "exists "+selector,
		chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%s) !== null`, jsValue(selector)), &ok),
	)
	return ok, err
}

type lookupResult struct {
	Found   bool   `json:"found"`
	Value   string `json:"value"`
	Checked bool   `json:"checked"`
	Changed bool   `json:"changed"`
}

// Attribute returns the named attribute of the first node matching selector.
func (p *ChromePage) Attribute(ctx context.Context, selector, name string) (string, error) {
	var res lookupResult
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return {found: false};
		return {found: true, value: el.getAttribute(%s) || ""};
	})()`, jsValue(selector), jsValue(name))
	if err := p.run(ctx, 0, "attribute "+selector, chromedp.Evaluate(js, &res)); err != nil {
		return "", err
	}
	if !res.Found {
		return "", fmt.Errorf("attribute %s of %s: %w", name, selector, ErrNotFound)
	}
	return res.Value, nil
}

// Checked reports the checked property of the first node matching selector.
func (p *ChromePage) Checked(ctx context.Context, selector string) (bool, error) {
	var res lookupResult
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return {found: false};
		return {found: true, checked: !!el.checked};
	})()`, jsValue(selector))
	if err := p.run(ctx, 0, "checked "+selector, chromedp.Evaluate(js, &res)); err != nil {
		return false, err
	}
	if !res.Found {
		return false, fmt.Errorf("checked %s: %w", selector, ErrNotFound)
	}
	return res.Checked, nil
}

// Fill types value into the field matching selector.
func (p *ChromePage) Fill(ctx context.Context, selector, value string) error {
	return p.run(ctx, 0, "fill "+selector, chromedp.SendKeys(selector, value, chromedp.ByQuery))
}

// Click clicks target.
func (p *ChromePage) Click(ctx context.Context, target Target) error {
	return p.click(ctx, target)
}

// click checks that target resolves before clicking it. chromedp retries an
// unresolved selector until the deadline, so a missing node and a node that
// never becomes clickable are both ErrNotFound. Click-phase errors never wrap
// a deadline: nothing was clicked.
func (p *ChromePage) click(ctx context.Context, target Target) error {
	op := "click " + target.Query
	ctx, cancel := context.WithTimeout(ctx, p.actionTimeout)
	defer cancel()

	var present bool
	err := chromedp.Run(ctx, chromedp.Evaluate(presenceScript(target), &present))
	if err == nil && !present {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err == nil {
		err = chromedp.Run(ctx, clickAction(target))
	}
	return clickError(op, err)
}

func clickError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, chromedp.ErrPollingTimeout):
		return fmt.Errorf("%s: %w: not clickable before deadline: %v", op, ErrNotFound, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func presenceScript(t Target) string {
	if t.JSPath {
		return fmt.Sprintf(`(() => { try { return (%s) != null; } catch (e) { return false; } })()`, t.Query)
	}
	return fmt.Sprintf(`document.querySelector(%s) !== null`, jsValue(t.Query))
}

func clickAction(t Target) chromedp.Action {
	if t.JSPath {
		return chromedp.Click(t.Query, chromedp.ByJSPath)
	}
	return chromedp.Click(t.Query, chromedp.ByQuery)
}

// SelectRadio clicks the option with the given value unless already checked.
func (p *ChromePage) SelectRadio(ctx context.Context, selector, value string) (bool, error) {
	var res lookupResult
	js := fmt.Sprintf(`(() => {
		const el = Array.from(document.querySelectorAll(%s)).find(i => i.value === %s);
		if (!el) return {found: false};
		if (el.checked) return {found: true, changed: false};
		el.click();
		return {found: true, changed: true};
	})()`, jsValue(selector), jsValue(value))
	if err := p.run(ctx, 0, "select "+selector, chromedp.Evaluate(js, &res)); err != nil {
		return false, err
	}
	if !res.Found {
		return false, fmt.Errorf("select %s=%s: %w", selector, value, ErrNotFound)
	}
	return res.Changed, nil
}

// Elements lists every node with the given tag in document order.
func (p *ChromePage) Elements(ctx context.Context, tag string) ([]Element, error) {
	var els []Element
	js := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map((el, i) => ({
		tag: el.tagName.toLowerCase(),
		id: el.id || "",
		className: typeof el.className === "string" ? el.className : "",
		text: el.textContent || "",
		index: i + 1,
	}))`, jsValue(tag))
	if err := p.run(ctx, 0, "elements "+tag, chromedp.Evaluate(js, &els)); err != nil {
		return nil, err
	}
	return els, nil
}

// Screenshot captures the viewport as PNG.
func (p *ChromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, 0, "screenshot", chromedp.CaptureScreenshot(&buf))
	return buf, err
}

// SubmitAndWaitNavigation races the submit click against the load event of
// the page it triggers. The listener is armed before clicking so a fast
// navigation cannot be missed.
func (p *ChromePage) SubmitAndWaitNavigation(ctx context.Context, selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	loaded := make(chan struct{})
	var once sync.Once
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			once.Do(func() { close(loaded) })
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return chromedp.Run(gctx, chromedp.Click(selector, chromedp.ByQuery))
	})
	g.Go(func() error {
		select {
		case <-loaded:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	})

	if err := g.Wait(); err != nil {
		return classify("submit "+selector, err)
	}
	return nil
}

// ClickAndWaitResponse clicks target and waits for a response matching match.
func (p *ChromePage) ClickAndWaitResponse(ctx context.Context, target Target, match ResponseMatch, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	seen := make(chan struct{})
	var once sync.Once
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Response != nil {
			if match.Matches(e.Response.URL, e.Response.Status) {
				once.Do(func() { close(seen) })
			}
		}
	})

	if err := p.click(ctx, target); err != nil {
		return err
	}

	select {
	case <-seen:
		return nil
	case <-ctx.Done():
		return classify("await response "+match.URLContains, ctx.Err())
	}
}
