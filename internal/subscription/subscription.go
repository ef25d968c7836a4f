// Package subscription reads a server's remaining days from the server list.
package subscription

import (
	"regexp"
	"strconv"
)

// DaysMarker follows the remaining-days figure on the server list ("N天后").
const DaysMarker = "天后"

// DefaultThreshold is the days-left value below which a renewal is attempted.
const DefaultThreshold = 3

// FindDaysLeft scans text forward from the first occurrence of machineID for
// the first run of digits followed by DaysMarker. A figure that appears
// before machineID is never returned.
func FindDaysLeft(text, machineID string) (int, bool) {
	if machineID == "" {
		return 0, false
	}
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(machineID) + `[\s\S]*?(\d+)` + regexp.QuoteMeta(DaysMarker))
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	days, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return days, true
}

// NeedsRenewal reports whether daysLeft is strictly below threshold.
func NeedsRenewal(daysLeft, threshold int) bool {
	return daysLeft < threshold
}
