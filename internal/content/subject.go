package content

import (
	"regexp"
	"strings"
)

// NoSubject is stored when a message arrives without a usable subject.
const NoSubject = "(no subject)"

var replyPrefix = regexp.MustCompile(`(?i)^\s*(re|fw|fwd|aw|wg|antw|sv|vs)(\[\d+\])?\s*:\s*`)

// NormalizeSubject removes any run of reply and forward prefixes.
func NormalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		next := replyPrefix.ReplaceAllString(s, "")
		if next == s {
			return strings.TrimSpace(s)
		}
		s = next
	}
}
