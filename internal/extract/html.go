package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blockElements = map[string]struct{}{
	"address": {}, "article": {}, "blockquote": {}, "br": {}, "dd": {}, "div": {},
	"dl": {}, "dt": {}, "figcaption": {}, "footer": {}, "h1": {}, "h2": {},
	"h3": {}, "h4": {}, "h5": {}, "h6": {}, "header": {}, "hr": {}, "li": {},
	"ol": {}, "p": {}, "pre": {}, "section": {}, "table": {}, "td": {}, "th": {},
	"tr": {}, "ul": {},
}

// StripHTML removes markup, decodes entities and collapses whitespace,
// which also turns &nbsp; into a plain space. Script and style contents are dropped.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("script, style, noscript").Remove()

	var b strings.Builder
	writeText(doc.Selection, &b)

	return strings.Join(strings.Fields(b.String()), " ")
}

func writeText(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		name := goquery.NodeName(child)
		if name == "#text" {
			b.WriteString(child.Text())
			return
		}
		_, block := blockElements[name]
		if block {
			b.WriteByte(' ')
		}
		writeText(child, b)
		if block {
			b.WriteByte(' ')
		}
	})
}
