package content

import (
	"regexp"
	"strings"
)

var cidReference = regexp.MustCompile(`(?i)(src\s*=\s*["']?)cid:([^"'\s>]+)`)

// NormalizeContentID strips angle brackets and whitespace from a Content-ID.
func NormalizeContentID(id string) string {
	return strings.Trim(strings.TrimSpace(id), "<>")
}

// RewriteCIDs replaces cid: image references with resolved URLs. urls is keyed
// by normalized Content-ID; unknown references are left for the sanitizer to drop.
func RewriteCIDs(raw string, urls map[string]string) string {
	if len(urls) == 0 || !strings.Contains(strings.ToLower(raw), "cid:") {
		return raw
	}
	return cidReference.ReplaceAllStringFunc(raw, func(match string) string {
		parts := cidReference.FindStringSubmatch(match)
		if u, ok := urls[NormalizeContentID(parts[2])]; ok {
			return parts[1] + u
		}
		return match
	})
}
