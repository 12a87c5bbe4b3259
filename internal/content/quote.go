package content

import (
	"bytes"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxStripPasses bounds the fixpoint loop of the quote strippers.
const maxStripPasses = 8

// TextMatcher inspects the lines of a plain-text body and returns the index of
// the first line of quoted content, or ok=false when it does not apply.
type TextMatcher struct {
	Name  string
	Match func(lines []string) (cut int, ok bool)
}

var (
	onWroteLine     = regexp.MustCompile(`(?i)^\s*(on|op)\s.+\s(wrote|schreef)(\s.*)?:\s*$`)
	fromHeaderLine  = regexp.MustCompile(`(?i)^\s*\*?(from|van)\s*:\*?\s*\S`)
	headerFieldLine = regexp.MustCompile(`(?i)^\s*\*?(sent|date|to|cc|subject|verzonden|datum|aan|onderwerp)\s*:`)
	onWroteStart    = regexp.MustCompile(`(?i)^\s*(on|op)\s`)
	separatorLine   = regexp.MustCompile(`(?i)^\s*([-_=]{5,}|-{2,}\s*(original message|oorspronkelijk bericht|forwarded message|doorgestuurd bericht)\s*-{2,})\s*$`)
	signatureLine   = regexp.MustCompile(`^--\s?$`)
)

// TextMatchers is the ordered list of plain-text quote heuristics.
var TextMatchers = []TextMatcher{
	{Name: "on_wrote", Match: matchOnWrote},
	{Name: "from_header", Match: matchFromHeader},
	{Name: "separator", Match: matchSeparator},
	{Name: "trailing_quote", Match: matchTrailingQuote},
	{Name: "signature_quote", Match: matchSignatureQuote},
}

func matchOnWrote(lines []string) (int, bool) {
	for i, line := range lines {
		if onWroteLine.MatchString(line) {
			return i, true
		}
		// clients wrap long attribution lines
		if i+1 < len(lines) && onWroteStart.MatchString(line) &&
			onWroteLine.MatchString(line+" "+strings.TrimSpace(lines[i+1])) {
			return i, true
		}
	}
	return 0, false
}

func matchFromHeader(lines []string) (int, bool) {
	for i, line := range lines {
		if !fromHeaderLine.MatchString(line) {
			continue
		}
		for j := i + 1; j < len(lines) && j <= i+4; j++ {
			if headerFieldLine.MatchString(lines[j]) {
				return i, true
			}
		}
	}
	return 0, false
}

func matchSeparator(lines []string) (int, bool) {
	for i, line := range lines {
		if separatorLine.MatchString(line) {
			return i, true
		}
	}
	return 0, false
}

func isQuoted(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), ">")
}

func matchTrailingQuote(lines []string) (int, bool) {
	end := len(lines) - 1
	for end >= 0 && strings.TrimSpace(lines[end]) == "" {
		end--
	}
	if end < 0 || !isQuoted(lines[end]) {
		return 0, false
	}
	start := end
	for start > 0 && (isQuoted(lines[start-1]) || strings.TrimSpace(lines[start-1]) == "") {
		start--
	}
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	return start, true
}

func matchSignatureQuote(lines []string) (int, bool) {
	sig := -1
	for i, line := range lines {
		if signatureLine.MatchString(line) {
			sig = i
			break
		}
	}
	if sig < 0 {
		return 0, false
	}
	for j := sig + 1; j < len(lines); j++ {
		if isQuoted(lines[j]) {
			return j, true
		}
	}
	return 0, false
}

// StripQuotedText removes trailing quoted reply content from a plain-text body.
// Matchers run in order and the first that leaves non-empty content wins; passes
// repeat until nothing changes, so stripping stripped text is a no-op.
func StripQuotedText(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	for pass := 0; pass < maxStripPasses; pass++ {
		next, changed := stripTextOnce(body)
		if !changed {
			return body
		}
		body = next
	}
	return body
}

func stripTextOnce(body string) (string, bool) {
	lines := strings.Split(body, "\n")
	for _, m := range TextMatchers {
		cut, ok := m.Match(lines)
		if !ok {
			continue
		}
		kept := strings.TrimRight(strings.Join(lines[:cut], "\n"), " \t\n")
		if strings.TrimSpace(kept) == "" {
			continue
		}
		if kept == strings.TrimRight(body, " \t\n") {
			continue
		}
		return kept, true
	}
	return body, false
}

// HTMLMatcher locates the node where quoted content starts in a parsed fragment.
// When Trailing is set only the node itself is removed, otherwise the node and
// everything after it in document order.
type HTMLMatcher struct {
	Name     string
	Find     func(nodes []*html.Node) *html.Node
	Trailing bool
}

// HTMLMatchers is the ordered list of HTML quote heuristics.
var HTMLMatchers = []HTMLMatcher{
	{Name: "outlook_desktop", Find: findFirst(func(n *html.Node) bool {
		id := attr(n, "id")
		return id == "divRplyFwdMsg" || id == "appendonsend"
	})},
	{Name: "outlook_mobile", Find: findFirst(func(n *html.Node) bool {
		return attr(n, "id") == "mail-editor-reference-message-container" ||
			hasClass(n, "mail-editor-reference-message-container")
	})},
	{Name: "gmail_quote", Find: findFirst(func(n *html.Node) bool { return hasClass(n, "gmail_quote") })},
	{Name: "yahoo_quoted", Find: findFirst(func(n *html.Node) bool { return hasClass(n, "yahoo_quoted") })},
	{Name: "trailing_blockquote", Find: findTrailing(atom.Blockquote), Trailing: true},
	{Name: "trailing_hr", Find: findLast(atom.Hr)},
}

// StripQuotedHTML removes trailing quoted reply content from an HTML body.
func StripQuotedHTML(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return raw
	}
	for pass := 0; pass < maxStripPasses; pass++ {
		next, changed := stripHTMLOnce(raw)
		if !changed {
			return raw
		}
		raw = next
	}
	return raw
}

func stripHTMLOnce(raw string) (string, bool) {
	for _, m := range HTMLMatchers {
		nodes, err := parseFragment(raw)
		if err != nil {
			return raw, false
		}
		target := m.Find(nodes)
		if target == nil {
			continue
		}
		if m.Trailing {
			if target.Parent != nil {
				target.Parent.RemoveChild(target)
			}
		} else {
			truncateFrom(target)
		}
		out := renderFragment(nodes)
		if HTMLToText(out) == "" && !hasKeptImage(out) {
			continue
		}
		return out, true
	}
	return raw, false
}

var fragmentContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

// parseFragment parses raw as body content and wraps it in a synthetic root
// so that removals at the top level work like any other.
func parseFragment(raw string) ([]*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(raw), fragmentContext)
	if err != nil {
		return nil, err
	}
	root := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return []*html.Node{root}, nil
}

func renderFragment(nodes []*html.Node) string {
	var buf bytes.Buffer
	for _, root := range nodes {
		for c := root.FirstChild; c != nil; c = c.NextSibling {
			_ = html.Render(&buf, c)
		}
	}
	return buf.String()
}

// truncateFrom removes n and every node after it in document order.
func truncateFrom(n *html.Node) {
	for cur := n; cur != nil && cur.Parent != nil; cur = cur.Parent {
		for sib := cur.NextSibling; sib != nil; {
			next := sib.NextSibling
			cur.Parent.RemoveChild(sib)
			sib = next
		}
	}
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func walk(nodes []*html.Node, fn func(n *html.Node) bool) {
	var visit func(n *html.Node) bool
	visit = func(n *html.Node) bool {
		if !fn(n) {
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !visit(c) {
				return false
			}
		}
		return true
	}
	for _, n := range nodes {
		if !visit(n) {
			return
		}
	}
}

func findFirst(pred func(n *html.Node) bool) func(nodes []*html.Node) *html.Node {
	return func(nodes []*html.Node) *html.Node {
		var found *html.Node
		walk(nodes, func(n *html.Node) bool {
			if n.Type == html.ElementNode && pred(n) {
				found = n
				return false
			}
			return true
		})
		return found
	}
}

func findLast(a atom.Atom) func(nodes []*html.Node) *html.Node {
	return func(nodes []*html.Node) *html.Node {
		var found *html.Node
		walk(nodes, func(n *html.Node) bool {
			if n.Type == html.ElementNode && n.DataAtom == a {
				found = n
			}
			return true
		})
		return found
	}
}

// findTrailing returns the last element of type a when nothing but whitespace follows it.
func findTrailing(a atom.Atom) func(nodes []*html.Node) *html.Node {
	last := findLast(a)
	return func(nodes []*html.Node) *html.Node {
		n := last(nodes)
		if n == nil {
			return nil
		}
		for cur := n; cur != nil && cur.Parent != nil; cur = cur.Parent {
			for sib := cur.NextSibling; sib != nil; sib = sib.NextSibling {
				if hasContent(sib) {
					return nil
				}
			}
		}
		return n
	}
}

func hasContent(n *html.Node) bool {
	switch n.Type {
	case html.TextNode:
		return strings.TrimSpace(strings.ReplaceAll(n.Data, " ", " ")) != ""
	case html.ElementNode:
		if n.DataAtom == atom.Img {
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if hasContent(c) {
				return true
			}
		}
	}
	return false
}

func hasKeptImage(raw string) bool {
	return strings.Contains(strings.ToLower(raw), "<img")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
