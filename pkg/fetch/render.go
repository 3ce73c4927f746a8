package fetch

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var whitespace = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ")

func compileSelector(selector string) error {
	_, err := cascadia.Compile(selector)
	return err
}

// RenderMarkdown renders a selection as line-oriented markdown. Links become
// [text](absolute-url) resolved against base; block elements break lines.
func RenderMarkdown(sel *goquery.Selection, base *url.URL) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		renderNode(&b, n, base)
		b.WriteByte('\n')
	}
	return normalizeLines(b.String())
}

func renderNode(b *strings.Builder, n *html.Node, base *url.URL) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(whitespace.Replace(n.Data))
		return
	case html.ElementNode:
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderNode(b, c, base)
		}
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Head:
		return
	case atom.Br:
		b.WriteByte('\n')
		return
	case atom.A:
		text := strings.Join(strings.Fields(nodeText(n)), " ")
		href := resolveHref(attr(n, "href"), base)
		switch {
		case href == "":
			b.WriteString(text)
		case text == "":
			b.WriteString("<" + href + ">")
		default:
			b.WriteString("[" + text + "](" + href + ")")
		}
		return
	}

	block := isBlock(n.DataAtom)
	if block {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderNode(b, c, base)
	}
	if block {
		b.WriteByte('\n')
	} else if n.DataAtom == atom.Td || n.DataAtom == atom.Th {
		b.WriteByte(' ')
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Tr, atom.Table, atom.Tbody,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Section, atom.Article, atom.Dl, atom.Dt, atom.Dd, atom.Hr:
		return true
	}
	return false
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func resolveHref(href string, base *url.URL) string {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func normalizeLines(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
