package projection

import (
	"html"
	"io"
	"net/url"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// commentTags are the elements kept in comment text. Everything else is
// dropped, keeping its text.
var commentTags = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Blockquote: true, atom.Br: true,
	atom.Code: true, atom.Del: true, atom.Em: true, atom.I: true, atom.Li: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Q: true, atom.S: true,
	atom.Strike: true, atom.Strong: true, atom.Ul: true,
}

// skipTags lose their contents as well.
var skipTags = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Iframe: true, atom.Object: true,
	atom.Template: true, atom.Noscript: true, atom.Textarea: true,
}

var blockTags = []string{"<p>", "<p ", "<blockquote", "<ul", "<ol", "<pre"}

// commentHTML renders stored comment text as status content: markup outside
// a small inline and block allowlist is removed, text is escaped, and text
// without block elements is wrapped in paragraphs.
func commentHTML(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if text == "" {
		return ""
	}
	clean := sanitizeComment(text)
	for _, tag := range blockTags {
		if strings.Contains(clean, tag) {
			return clean
		}
	}
	return paragraphs(clean)
}

func sanitizeComment(text string) string {
	var b strings.Builder
	z := xhtml.NewTokenizer(strings.NewReader(text))
	skip := 0
	var open []atom.Atom
	closeFrom := func(i int) {
		for j := len(open) - 1; j >= i; j-- {
			b.WriteString("</" + open[j].String() + ">")
		}
		open = open[:i]
	}
	for {
		tt := z.Next()
		switch tt {
		case xhtml.ErrorToken:
			if z.Err() != io.EOF {
				return html.EscapeString(text)
			}
			closeFrom(0)
			return b.String()
		case xhtml.TextToken:
			if skip == 0 {
				b.WriteString(html.EscapeString(string(z.Text())))
			}
		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			tok := z.Token()
			if skipTags[tok.DataAtom] {
				if tt == xhtml.StartTagToken {
					skip++
				}
				continue
			}
			if skip > 0 || !commentTags[tok.DataAtom] {
				continue
			}
			b.WriteString(startTag(tok))
			if tok.DataAtom != atom.Br && tt == xhtml.StartTagToken {
				open = append(open, tok.DataAtom)
			}
		case xhtml.EndTagToken:
			tok := z.Token()
			if skipTags[tok.DataAtom] {
				if skip > 0 {
					skip--
				}
				continue
			}
			if skip > 0 {
				continue
			}
			for i := len(open) - 1; i >= 0; i-- {
				if open[i] == tok.DataAtom {
					closeFrom(i)
					break
				}
			}
		}
	}
}

func startTag(tok xhtml.Token) string {
	switch tok.DataAtom {
	case atom.Br:
		return "<br />"
	case atom.A:
		for _, attr := range tok.Attr {
			if attr.Key == "href" && safeHref(attr.Val) {
				return `<a href="` + html.EscapeString(attr.Val) + `" rel="nofollow noopener noreferrer" target="_blank">`
			}
		}
		return "<a>"
	default:
		return "<" + tok.DataAtom.String() + ">"
	}
}

func safeHref(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "mailto":
		return true
	}
	return false
}

// paragraphs wraps already escaped text in <p> elements, one per blank line
// separated block, turning single newlines into line breaks.
func paragraphs(text string) string {
	var b strings.Builder
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(para, "\n", "<br />"))
		b.WriteString("</p>")
	}
	return b.String()
}
