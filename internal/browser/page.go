package browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

var (
	// ErrTimeout is returned when a bounded wait expires.
	ErrTimeout = errors.New("browser: timed out")

	// ErrNotFound is returned when a selector matches nothing.
	ErrNotFound = errors.New("browser: element not found")
)

// IsTimeout reports whether err came from an exceeded bound.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, chromedp.ErrPollingTimeout)
}

// Snapshot is a point-in-time copy of the visible page state.
type Snapshot struct {
	URL   string
	Title string
	Text  string // document.body.textContent
	HTML  string // outer HTML of the document
}

// Element is one DOM node as seen at discovery time.
type Element struct {
	Tag   string `json:"tag"`
	ID    string `json:"id"`
	Class string `json:"className"`
	Text  string `json:"text"`
	// Index is the 1-based position among elements of the same tag.
	Index int `json:"index"`
}

// Target addresses a node for a click, either by CSS selector or by a
// JavaScript expression that evaluates to the node.
type Target struct {
	Query  string
	JSPath bool
}

// CSS targets the first node matching selector.
func CSS(selector string) Target {
	return Target{Query: selector}
}

// JS targets the node returned by expr.
func JS(expr string) Target {
	return Target{Query: expr, JSPath: true}
}

func (t Target) String() string {
	return t.Query
}

// ResponseMatch selects a network response by URL fragment and status.
type ResponseMatch struct {
	URLContains string
	Status      int64
}

// Matches reports whether a response with the given url and status satisfies m.
func (m ResponseMatch) Matches(url string, status int64) bool {
	if m.Status != 0 && status != m.Status {
		return false
	}
	return strings.Contains(url, m.URLContains)
}

// Page is the capability the pipeline drives. Implementations must bound
// every wait; the chromedp implementation is ChromePage.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Snapshot(ctx context.Context) (Snapshot, error)

	// WaitFor blocks until cond holds or timeout elapses (ErrTimeout).
	WaitFor(ctx context.Context, cond Condition, timeout time.Duration) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	Exists(ctx context.Context, selector string) (bool, error)
	Attribute(ctx context.Context, selector, name string) (string, error)
	Checked(ctx context.Context, selector string) (bool, error)

	Fill(ctx context.Context, selector, value string) error

	// Click clicks target. A target that does not resolve to a clickable
	// node is ErrNotFound, never ErrTimeout.
	Click(ctx context.Context, target Target) error

	// SelectRadio clicks the input matching selector whose value attribute
	// equals value, unless it is already checked.
	SelectRadio(ctx context.Context, selector, value string) (changed bool, err error)

	Elements(ctx context.Context, tag string) ([]Element, error)
	Screenshot(ctx context.Context) ([]byte, error)

	// SubmitAndWaitNavigation clicks selector while concurrently awaiting the
	// resulting page load.
	SubmitAndWaitNavigation(ctx context.Context, selector string, timeout time.Duration) error

	// ClickAndWaitResponse clicks target and waits for a matching network
	// response. A click that never lands is ErrNotFound; ErrTimeout means the
	// click happened but no response matched in time.
	ClickAndWaitResponse(ctx context.Context, target Target, match ResponseMatch, timeout time.Duration) error
}
