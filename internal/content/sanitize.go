package content

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// InlineImageClass marks images served from our own storage.
const InlineImageClass = "inline-image"

var (
	breakRun       = regexp.MustCompile(`(?i)(<br\s*/?>\s*){3,}`)
	emptyParagraph = regexp.MustCompile(`(?i)<p[^>]*>(\s|&nbsp;|&#160;|\x{00a0}|<br\s*/?>)*</p>`)
)

// Sanitizer cleans contact-originated HTML before it is stored or rendered.
type Sanitizer struct {
	policy     *bluemonday.Policy
	isInternal func(rawURL string) bool
}

// NewSanitizer builds the allow-list policy. isInternal reports whether an
// image URL points at our attachment storage; nil treats every image as external.
func NewSanitizer(isInternal func(rawURL string) bool) *Sanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("b", "strong", "i", "em", "u", "s", "strike", "del", "sub", "sup", "small", "span", "div", "font")
	p.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")
	p.AllowElements("p", "br", "hr")
	p.AllowElements("ul", "ol", "li", "dl", "dt", "dd")
	p.AllowElements("blockquote", "code", "pre")

	p.AllowElements("table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption")
	p.AllowAttrs("colspan", "rowspan").Matching(bluemonday.Integer).OnElements("td", "th")

	p.AllowElements("img")
	p.AllowAttrs("src", "alt", "title", "width", "height").OnElements("img")

	p.AllowElements("a")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	p.AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements(
		"div", "span", "p", "ul", "ol", "li", "table", "tr", "td", "th",
		"h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "code", "pre", "img",
	)

	if isInternal == nil {
		isInternal = func(string) bool { return false }
	}
	return &Sanitizer{policy: p, isInternal: isInternal}
}

// Sanitize applies the allow-list, neutralizes external images and normalizes whitespace.
func (s *Sanitizer) Sanitize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	clean := s.policy.Sanitize(raw)
	clean = s.rewriteImages(clean)
	return normalizeHTMLWhitespace(clean)
}

func (s *Sanitizer) rewriteImages(clean string) string {
	if !strings.Contains(strings.ToLower(clean), "<img") {
		return clean
	}
	nodes, err := parseFragment(clean)
	if err != nil {
		return clean
	}

	var images []*html.Node
	walk(nodes, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			images = append(images, n)
		}
		return true
	})

	for _, img := range images {
		if s.isInternal(attr(img, "src")) {
			classes := attr(img, "class")
			if !hasClass(img, InlineImageClass) {
				setAttr(img, "class", strings.TrimSpace(classes+" "+InlineImageClass))
			}
			continue
		}
		placeholder := "[Image]"
		if alt := strings.TrimSpace(attr(img, "alt")); alt != "" {
			placeholder = "[Image: " + alt + "]"
		}
		img.Parent.InsertBefore(&html.Node{Type: html.TextNode, Data: placeholder}, img)
		img.Parent.RemoveChild(img)
	}
	return renderFragment(nodes)
}

func normalizeHTMLWhitespace(s string) string {
	s = breakRun.ReplaceAllString(s, "<br><br>")
	s = emptyParagraph.ReplaceAllString(s, "")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
