package agent

import (
	"regexp"
	"strings"
)

// Intent is the user's reaction to a pending confirmation.
type Intent int

const (
	IntentNone Intent = iota
	IntentConfirm
	IntentDecline
)

func (i Intent) String() string {
	switch i {
	case IntentConfirm:
		return "confirm"
	case IntentDecline:
		return "decline"
	}
	return "none"
}

var (
	declinePattern = regexp.MustCompile(`(?s)\b(?:decline|cancel)\w*|\bno\b|\b(?:don't|dont|do not)\b.*\bproceed`)
	confirmPattern = regexp.MustCompile(`\b(?:confirm|proceed)\w*|\b(?:yes|go ahead)\b`)
)

// DetectIntent scans text for confirm or decline keywords. "yes" and "no"
// must be whole words; the other keywords also match inflections such as
// "confirmed" or "cancelled". Decline is checked first, so "no, don't
// proceed" is a decline.
func DetectIntent(text string) Intent {
	lower := strings.ToLower(text)
	if declinePattern.MatchString(lower) {
		return IntentDecline
	}
	if confirmPattern.MatchString(lower) {
		return IntentConfirm
	}
	return IntentNone
}
