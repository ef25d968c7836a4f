// Package browsertest provides a fake browser.Page backed by static HTML
// fixtures. It is not safe for concurrent use.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ibeckermayer/renewbot/internal/browser"
)

// Fill records one Fill call.
type Fill struct {
	Selector string
	Value    string
}

type response struct {
	url    string
	status int64
}

type hook struct {
	selector string
	fn       func(p *Page)
}

// Page is a scripted browser.Page. Register fixtures with SetPage and
// behaviour with OnClick, then hand it to the code under test.
type Page struct {
	pages    map[string][]string
	navErrs  map[string]error
	detached map[string]bool
	hooks    []hook
	onWait   func(p *Page, cond browser.Condition)
	url      string
	doc      *goquery.Document
	loads    int
	received []response

	// Calls is an ordered log of every driver operation.
	Calls       []string
	Fills       []Fill
	Clicks      []string
	Navigations []string
	Screenshots int
}

var _ browser.Page = (*Page)(nil)

const blank = "<html><head><title></title></head><body></body></html>"

// New returns an empty fake page.
func New() *Page {
	p := &Page{
		pages:   map[string][]string{},
		navErrs:  map[string]error{},
		detached: map[string]bool{},
	}
	p.Load("about:blank", blank)
	return p
}

// SetPage registers the documents served for url. Each navigation to url
// consumes the next document; the last one is repeated.
func (p *Page) SetPage(url string, html ...string) *Page {
	p.pages[url] = append([]string(nil), html...)
	return p
}

// FailNavigation makes navigations to url return err after the document
// (if any) has loaded, like a load event that never fires in time.
func (p *Page) FailNavigation(url string, err error) *Page {
	p.navErrs[url] = err
	return p
}

// OnClick runs fn after any click on a node matching selector.
func (p *Page) OnClick(selector string, fn func(p *Page)) *Page {
	p.hooks = append(p.hooks, hook{selector: selector, fn: fn})
	return p
}

// OnWait runs fn before every WaitFor evaluation.
func (p *Page) OnWait(fn func(p *Page, cond browser.Condition)) *Page {
	p.onWait = fn
	return p
}

// Load replaces the current document, as a navigation would.
func (p *Page) Load(url, html string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		panic(fmt.Sprintf("browsertest: bad fixture for %s: %v", url, err))
	}
	p.url = url
	p.doc = doc
	p.loads++
}

// Respond records a network response as if the page had received it.
func (p *Page) Respond(url string, status int64) {
	p.received = append(p.received, response{url: url, status: status})
}

// Detach makes target queries fail to resolve while the node stays in the
// document, like an element removed between discovery and the click. Clicks
// on it return ErrNotFound, as ChromePage does.
func (p *Page) Detach(query string) *Page {
	p.detached[query] = true
	return p
}

// URL returns the current location.
func (p *Page) URL() string { return p.url }

func (p *Page) record(format string, args ...any) {
	p.Calls = append(p.Calls, fmt.Sprintf(format, args...))
}

func timeout(op string) error {
	return fmt.Errorf("%s: %w", op, browser.ErrTimeout)
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, browser.ErrNotFound)
}

func (p *Page) Navigate(ctx context.Context, url string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.record("navigate %s", url)
	p.Navigations = append(p.Navigations, url)

	html := blank
	if docs := p.pages[url]; len(docs) > 0 {
		html = docs[0]
		if len(docs) > 1 {
			p.pages[url] = docs[1:]
		}
	}
	p.Load(url, html)
	return p.navErrs[url]
}

func (p *Page) Snapshot(ctx context.Context) (browser.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return browser.Snapshot{}, err
	}
	html, _ := p.doc.Html()
	return browser.Snapshot{
		URL:   p.url,
		Title: strings.TrimSpace(p.doc.Find("title").First().Text()),
		Text:  p.doc.Find("body").Text(),
		HTML:  html,
	}, nil
}

func (p *Page) WaitFor(ctx context.Context, cond browser.Condition, _ time.Duration) error {
	p.record("wait")
	if p.onWait != nil {
		p.onWait(p, cond)
	}
	s, err := p.Snapshot(ctx)
	if err != nil {
		return err
	}
	if !cond.Match(s) {
		return timeout("wait for condition")
	}
	return nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.record("wait visible %s", selector)
	if p.doc.Find(selector).Length() == 0 {
		return timeout("wait visible " + selector)
	}
	return nil
}

func (p *Page) Exists(_ context.Context, selector string) (bool, error) {
	return p.doc.Find(selector).Length() > 0, nil
}

func (p *Page) Attribute(_ context.Context, selector, name string) (string, error) {
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", notFound("attribute " + selector)
	}
	return sel.AttrOr(name, ""), nil
}

func (p *Page) Checked(_ context.Context, selector string) (bool, error) {
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return false, notFound("checked " + selector)
	}
	_, ok := sel.Attr("checked")
	return ok, nil
}

func (p *Page) Fill(_ context.Context, selector, value string) error {
	p.record("fill %s", selector)
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return notFound("fill " + selector)
	}
	sel.SetAttr("value", sel.AttrOr("value", "")+value)
	p.Fills = append(p.Fills, Fill{Selector: selector, Value: value})
	return nil
}

func (p *Page) Click(_ context.Context, target browser.Target) error {
	p.record("click %s", target.Query)
	return p.click(target)
}

func (p *Page) click(target browser.Target) error {
	sel, err := p.resolve(target)
	if err != nil {
		return err
	}
	p.Clicks = append(p.Clicks, target.Query)

	if goquery.NodeName(sel) == "input" && sel.AttrOr("type", "") == "checkbox" {
		if _, ok := sel.Attr("checked"); ok {
			sel.RemoveAttr("checked")
		} else {
			sel.SetAttr("checked", "checked")
		}
	}

	var matched []func(*Page)
	for _, h := range p.hooks {
		if sel.Is(h.selector) {
			matched = append(matched, h.fn)
		}
	}
	for _, fn := range matched {
		fn(p)
	}
	return nil
}

var (
	byID    = regexp.MustCompile(`^document\.getElementById\((".*")\)$`)
	byQuery = regexp.MustCompile(`^document\.querySelector\((".*")\)$`)
	byIndex = regexp.MustCompile(`^document\.querySelectorAll\((".*")\)\[(\d+)\]$`)
)

// resolve understands CSS targets and the three JS path shapes produced by
// the element locator.
func (p *Page) resolve(target browser.Target) (*goquery.Selection, error) {
	if p.detached[target.Query] {
		return nil, notFound("click " + target.Query)
	}
	var sel *goquery.Selection
	switch {
	case !target.JSPath:
		sel = p.doc.Find(target.Query).First()
	case byID.MatchString(target.Query):
		id := unquote(byID.FindStringSubmatch(target.Query)[1])
		sel = p.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.AttrOr("id", "") == id
		}).First()
	case byQuery.MatchString(target.Query):
		sel = p.doc.Find(unquote(byQuery.FindStringSubmatch(target.Query)[1])).First()
	case byIndex.MatchString(target.Query):
		m := byIndex.FindStringSubmatch(target.Query)
		i, _ := strconv.Atoi(m[2])
		sel = p.doc.Find(unquote(m[1])).Eq(i)
	default:
		return nil, fmt.Errorf("browsertest: unsupported js path %q", target.Query)
	}
	if sel.Length() == 0 {
		return nil, notFound("click " + target.Query)
	}
	return sel, nil
}

func unquote(s string) string {
	var out string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return s
	}
	return out
}

func (p *Page) SelectRadio(_ context.Context, selector, value string) (bool, error) {
	p.record("select %s=%s", selector, value)
	all := p.doc.Find(selector)
	opt := all.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.AttrOr("value", "") == value
	}).First()
	if opt.Length() == 0 {
		return false, notFound("select " + selector)
	}
	if _, ok := opt.Attr("checked"); ok {
		return false, nil
	}
	all.RemoveAttr("checked")
	opt.SetAttr("checked", "checked")
	return true, nil
}

func (p *Page) Elements(_ context.Context, tag string) ([]browser.Element, error) {
	var els []browser.Element
	p.doc.Find(tag).Each(func(i int, s *goquery.Selection) {
		els = append(els, browser.Element{
			Tag:   goquery.NodeName(s),
			ID:    s.AttrOr("id", ""),
			Class: s.AttrOr("class", ""),
			Text:  s.Text(),
			Index: i + 1,
		})
	})
	return els, nil
}

func (p *Page) Screenshot(_ context.Context) ([]byte, error) {
	p.record("screenshot")
	p.Screenshots++
	return []byte("\x89PNG fake"), nil
}

// SubmitAndWaitNavigation clicks selector and reports a timeout unless a
// click hook loaded a new document.
func (p *Page) SubmitAndWaitNavigation(_ context.Context, selector string, _ time.Duration) error {
	p.record("submit %s", selector)
	before := p.loads
	if err := p.click(browser.CSS(selector)); err != nil {
		return err
	}
	if p.loads == before {
		return timeout("submit " + selector)
	}
	return nil
}

// ClickAndWaitResponse clicks target and succeeds once a response recorded
// with Respond matches.
func (p *Page) ClickAndWaitResponse(_ context.Context, target browser.Target, match browser.ResponseMatch, _ time.Duration) error {
	p.record("click %s", target.Query)
	if err := p.click(target); err != nil {
		return err
	}
	for _, r := range p.received {
		if match.Matches(r.url, r.status) {
			return nil
		}
	}
	return timeout("await response " + match.URLContains)
}
