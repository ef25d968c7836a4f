// Package locator finds actionable elements by their visible text and builds
// references that can be resolved back to the live node.
package locator

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ibeckermayer/renewbot/internal/browser"
)

// Strategy is how a Reference addresses its node.
type Strategy string

const (
	ByID       Strategy = "id"
	ByClass    Strategy = "class"
	ByPosition Strategy = "position"
)

// Reference addresses a node found by text. It is only valid for the page
// state it was computed against; re-run discovery after any navigation or
// DOM-changing action.
type Reference struct {
	Strategy Strategy
	Tag      string
	ID       string
	Classes  []string
	// Position is the 1-based index among elements with Tag.
	Position int
	// Text is the visible text of the matched node, for logging.
	Text string
}

// FindByText returns a reference to the first element whose text contains a
// candidate phrase. Matching is phrase-major: phrases are tried in order, so
// an earlier phrase wins over a later one even if the later one matches an
// earlier element. A per-element scan over all phrases would instead pick
// the first such element in document order.
func FindByText(elements []browser.Element, tag string, phrases []string) (Reference, bool) {
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		for _, el := range elements {
			if tag != "" && !strings.EqualFold(el.Tag, tag) {
				continue
			}
			if strings.Contains(el.Text, phrase) {
				return newReference(tag, el, elements), true
			}
		}
	}
	return Reference{}, false
}

func newReference(tag string, el browser.Element, all []browser.Element) Reference {
	if tag == "" {
		tag = strings.ToLower(el.Tag)
	}
	ref := Reference{
		Tag:      tag,
		Position: el.Index,
		Text:     strings.Join(strings.Fields(el.Text), " "),
	}
	switch classes := strings.Fields(el.Class); {
	case el.ID != "":
		ref.Strategy = ByID
		ref.ID = el.ID
	case len(classes) > 0 && uniqueClasses(all, tag, classes):
		ref.Strategy = ByClass
		ref.Classes = classes
	default:
		ref.Strategy = ByPosition
	}
	return ref
}

// uniqueClasses reports whether exactly one element with tag carries every
// class in classes; otherwise the class selector would hit the wrong node.
func uniqueClasses(all []browser.Element, tag string, classes []string) bool {
	n := 0
	for _, el := range all {
		if !strings.EqualFold(el.Tag, tag) {
			continue
		}
		have := strings.Fields(el.Class)
		if containsAll(have, classes) {
			n++
		}
	}
	return n == 1
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Selector renders id and class references as a CSS selector. Positional
// references have no CSS form that counts across the whole document, so
// they render as "" and must be resolved through Target.
func (r Reference) Selector() string {
	switch r.Strategy {
	case ByID:
		return "#" + cssEscape(r.ID)
	case ByClass:
		var b strings.Builder
		b.WriteString(r.Tag)
		for _, c := range r.Classes {
			b.WriteString("." + cssEscape(c))
		}
		return b.String()
	default:
		return ""
	}
}

// Target renders the reference as a JS path resolving to the node. The
// positional form indexes all elements with Tag, matching how Position was
// computed.
func (r Reference) Target() browser.Target {
	switch r.Strategy {
	case ByID:
		return browser.JS(fmt.Sprintf("document.getElementById(%s)", quote(r.ID)))
	case ByClass:
		return browser.JS(fmt.Sprintf("document.querySelector(%s)", quote(r.Selector())))
	default:
		return browser.JS(fmt.Sprintf("document.querySelectorAll(%s)[%d]", quote(r.Tag), r.Position-1))
	}
}

// String names the node the way Target resolves it.
func (r Reference) String() string {
	if sel := r.Selector(); sel != "" {
		return fmt.Sprintf("%s(%s)", r.Strategy, sel)
	}
	return fmt.Sprintf("%s(%s)", r.Strategy, r.Target().Query)
}

// ParseElements lists the elements with tag in html, in document order.
func ParseElements(html, tag string) ([]browser.Element, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	var els []browser.Element
	doc.Find(tag).Each(func(i int, s *goquery.Selection) {
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

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// cssEscape escapes the characters that would break an identifier selector.
func cssEscape(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-', r >= 0x80:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				fmt.Fprintf(&b, `\3%c `, r)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteByte('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}
