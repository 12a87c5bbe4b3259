package content

import (
	"slices"
	"strings"

	"github.com/fluxdesk/conversation-service/internal/domain"
)

// urgentKeywords match anywhere in the subject, so compounds such as
// "Spoedbestelling" count.
var urgentKeywords = []string{"URGENT", "DRINGEND", "ASAP", "CRITICAL", "EMERGENCY", "SPOED"}

// IsUrgent detects urgency from the provider importance, priority headers and subject keywords.
func IsUrgent(subject, importance string, header func(string) string) bool {
	if strings.EqualFold(strings.TrimSpace(importance), "high") {
		return true
	}
	if header != nil {
		if p := strings.TrimSpace(header("X-Priority")); p != "" && (p[0] == '1' || p[0] == '2') {
			return true
		}
		if strings.EqualFold(strings.TrimSpace(header("Importance")), "high") {
			return true
		}
	}
	upper := strings.ToUpper(subject)
	return slices.ContainsFunc(urgentKeywords, func(kw string) bool {
		return strings.Contains(upper, kw)
	})
}

// SelectUrgentPriority picks the tenant priority for an urgent ticket: slug
// "urgent", then "high", else the one with the lowest sort order.
func SelectUrgentPriority(priorities []domain.Priority) *domain.Priority {
	if len(priorities) == 0 {
		return nil
	}
	for _, slug := range []string{"urgent", "high"} {
		for i := range priorities {
			if strings.EqualFold(priorities[i].Slug, slug) {
				return &priorities[i]
			}
		}
	}
	p := slices.MinFunc(priorities, func(a, b domain.Priority) int { return a.SortOrder - b.SortOrder })
	return &p
}
