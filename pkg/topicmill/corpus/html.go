package corpus

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var htmlTagPattern = regexp.MustCompile(`(?i)<(?:!doctype|html|head|body|title|div|p|span|article|section|br|li|ul|h[1-6]|a|table)\b[^>]*>`)

// looksLikeHTML reports whether text carries markup worth stripping rather
// than the odd literal angle bracket.
func looksLikeHTML(text string) bool {
	return len(htmlTagPattern.FindAllStringIndex(text, 3)) >= 2
}

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Section: true, atom.Article: true, atom.Blockquote: true, atom.Pre: true,
}

// stripHTML removes markup and boilerplate containers, returning the visible
// text (block elements become line breaks) and the page title.
func stripHTML(raw string) (text string, title string, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return "", "", err
	}

	title = normalizeSpace(doc.Find("title").First().Text())
	doc.Find("head, script, style, noscript, nav, footer, iframe, svg, form").Remove()

	var b strings.Builder
	for _, n := range doc.Nodes {
		writeText(&b, n)
	}
	return normalizeSpace(b.String()), title, nil
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if blockElements[n.DataAtom] {
			b.WriteByte('\n')
			defer b.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}

// normalizeSpace collapses horizontal whitespace to single spaces and runs
// of blank lines to one line break.
func normalizeSpace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// cleanText prepares a raw record body: markup is stripped from HTML,
// entities are decoded in plain text. The title is empty for plain text.
func cleanText(raw string) (text string, title string) {
	if looksLikeHTML(raw) {
		if t, ttl, err := stripHTML(raw); err == nil {
			return t, ttl
		}
	}
	return normalizeSpace(html.UnescapeString(raw)), ""
}
