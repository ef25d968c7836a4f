package renewal

import "github.com/ibeckermayer/renewbot/internal/browser"

// Server detail page DOM selectors and text markers.
// Buttons on this page carry no stable ids, so they are found by text.

const (
	ButtonTag = "button"

	// DurationInput is the radio group of renewal periods; DurationOneMonth
	// is the value of the shortest one.
	DurationInput    = `input[name="month"]`
	DurationOneMonth = "1"
)

var (
	RenewPhrases   = []string{"续费", "renew", "Renew"}
	DialogPhrases  = []string{"续费时长", "Renewal Period"}
	ConfirmPhrases = []string{"确认", "确定", "Confirm", "OK"}
	SuccessPhrases = []string{"成功", "success"}

	// RenewResponse marks the renewal request completing.
	RenewResponse = browser.ResponseMatch{URLContains: "/renew", Status: 200}
)
