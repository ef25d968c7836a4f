package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Condition is a predicate over page state. Script is evaluated in the page
// by the chromedp driver; Match evaluates the same predicate over a Snapshot,
// so conditions can be checked without a browser.
type Condition interface {
	Script() string
	Match(s Snapshot) bool
}

// TextContains holds when the body text contains any of the phrases.
func TextContains(phrases ...string) Condition {
	return anyPhrase{source: "document.body ? document.body.textContent : ''", phrases: phrases, pick: func(s Snapshot) string { return s.Text }}
}

// TitleContains holds when the document title contains any of the phrases.
func TitleContains(phrases ...string) Condition {
	return anyPhrase{source: "document.title || ''", phrases: phrases, pick: func(s Snapshot) string { return s.Title }}
}

// Not negates c.
func Not(c Condition) Condition {
	return not{c}
}

// AllOf holds when every condition holds.
func AllOf(cs ...Condition) Condition {
	return allOf(cs)
}

type anyPhrase struct {
	source  string
	phrases []string
	pick    func(Snapshot) string
}

func (a anyPhrase) Script() string {
	return fmt.Sprintf("(() => { const t = %s; return %s.some(p => t.includes(p)); })()", a.source, jsValue(a.phrases))
}

func (a anyPhrase) Match(s Snapshot) bool {
	return ContainsAny(a.pick(s), a.phrases)
}

type not struct{ c Condition }

func (n not) Script() string        { return "!(" + n.c.Script() + ")" }
func (n not) Match(s Snapshot) bool { return !n.c.Match(s) }

type allOf []Condition

func (a allOf) Script() string {
	if len(a) == 0 {
		return "true"
	}
	parts := make([]string, len(a))
	for i, c := range a {
		parts[i] = "(" + c.Script() + ")"
	}
	return strings.Join(parts, " && ")
}

func (a allOf) Match(s Snapshot) bool {
	for _, c := range a {
		if !c.Match(s) {
			return false
		}
	}
	return true
}

// ContainsAny reports whether text contains any of the phrases.
func ContainsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// jsValue renders v as a JavaScript literal.
func jsValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
