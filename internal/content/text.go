package content

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	blockTags = map[string]bool{
		"p": true, "div": true, "br": true, "li": true, "tr": true, "table": true, "blockquote": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "hr": true,
		"ul": true, "ol": true, "pre": true, "section": true, "article": true, "header": true, "footer": true,
	}
	skipTags = map[string]bool{"script": true, "style": true, "head": true, "title": true, "noscript": true}

	spaceRun     = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	newlineRun   = regexp.MustCompile(`\n{3,}`)
	trailingWSNL = regexp.MustCompile(`[ \t]+\n`)
)

// HTMLToText derives plain text from HTML: script and style are dropped,
// block boundaries become newlines and entities are decoded.
func HTMLToText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(raw))
	var b strings.Builder
	skipDepth := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way keep what was read.
			return CollapseWhitespace(b.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] && tt == html.StartTagToken {
				skipDepth++
				continue
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
			if tag == "td" || tag == "th" {
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if blockTags[tag] {
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := strings.ReplaceAll(string(z.Text()), "\r", "")
			b.WriteString(strings.ReplaceAll(text, "\n", " "))
		}
	}
}

// CollapseWhitespace collapses horizontal whitespace, trims lines and limits blank lines to one.
func CollapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	s = trailingWSNL.ReplaceAllString(s, "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
