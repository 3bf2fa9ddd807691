package normalize

import (
	"strings"

	"golang.org/x/net/html"
)

const indentUnit = " "

var voidElements = map[string]struct{}{
	"area": {}, "base": {}, "br": {}, "col": {}, "embed": {}, "hr": {}, "img": {},
	"input": {}, "link": {}, "meta": {}, "param": {}, "source": {}, "track": {}, "wbr": {},
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;")
)

// prettify renders the tree one tag or text run per line, indented by depth.
// An element whose only child is a single-line text run stays on one line.
func prettify(root *html.Node) string {
	var b strings.Builder
	writeNode(&b, root, 0)
	return b.String()
}

func writeNode(b *strings.Builder, n *html.Node, depth int) {
	switch n.Type {
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeNode(b, c, depth)
		}
	case html.DoctypeNode:
		writeLine(b, depth, "<!DOCTYPE "+n.Data+">")
	case html.CommentNode:
		writeLine(b, depth, "<!--"+n.Data+"-->")
	case html.TextNode:
		writeText(b, depth, n.Data)
	case html.ElementNode:
		writeElement(b, n, depth)
	}
}

func writeElement(b *strings.Builder, n *html.Node, depth int) {
	open := openTag(n)
	if _, void := voidElements[n.Data]; void {
		writeLine(b, depth, open)
		return
	}
	closeTag := "</" + n.Data + ">"
	if n.FirstChild == nil {
		writeLine(b, depth, open+closeTag)
		return
	}
	if text, ok := inlineText(n); ok {
		writeLine(b, depth, open+textEscaper.Replace(text)+closeTag)
		return
	}
	writeLine(b, depth, open)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeNode(b, c, depth+1)
	}
	writeLine(b, depth, closeTag)
}

func inlineText(n *html.Node) (string, bool) {
	c := n.FirstChild
	if c == nil || c.NextSibling != nil || c.Type != html.TextNode {
		return "", false
	}
	text := strings.TrimSpace(c.Data)
	if text == "" || strings.Contains(text, "\n") {
		return "", false
	}
	return text, true
}

func openTag(n *html.Node) string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(n.Data)
	for _, attr := range n.Attr {
		b.WriteByte(' ')
		if attr.Namespace != "" {
			b.WriteString(attr.Namespace)
			b.WriteByte(':')
		}
		b.WriteString(attr.Key)
		b.WriteString(`="`)
		b.WriteString(attrEscaper.Replace(attr.Val))
		b.WriteByte('"')
	}
	b.WriteByte('>')
	return b.String()
}

// writeText puts each non-blank line of a text run on its own line at depth.
func writeText(b *strings.Builder, depth int, text string) {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			writeLine(b, depth, textEscaper.Replace(line))
		}
	}
}

func writeLine(b *strings.Builder, depth int, s string) {
	b.WriteString(strings.Repeat(indentUnit, depth))
	b.WriteString(s)
	b.WriteByte('\n')
}
