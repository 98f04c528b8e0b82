package telegram

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
)

// Telegram's HTML parse mode accepts only a small tag whitelist.
// Everything else must be converted to plain text structure or
// stripped, or the API rejects the whole message.
var allowedTags = map[string]bool{
	"b": true, "strong": true,
	"i": true, "em": true,
	"u": true, "ins": true,
	"s": true, "strike": true, "del": true,
	"code": true, "pre": true,
	"a":          true,
	"blockquote": true,
	"tg-spoiler": true,
}

var (
	headingOpenRe  = regexp.MustCompile(`<h[1-6][^>]*>`)
	headingCloseRe = regexp.MustCompile(`</h[1-6]>`)
	tagRe          = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9-]*)(\s[^>]*)?/?>`)
	blankLinesRe   = regexp.MustCompile(`\n{3,}`)
)

var blockReplacer = strings.NewReplacer(
	"<p>", "", "</p>", "\n\n",
	"<br>", "\n", "<br/>", "\n", "<br />", "\n",
	"<ul>", "", "</ul>", "\n",
	"<ol>", "", "</ol>", "\n",
	"<li>", "• ", "</li>", "\n",
	"<hr>", "\n", "<hr/>", "\n", "<hr />", "\n",
)

// RenderHTML converts model-produced markdown into Telegram-safe HTML.
// Headings become bold lines, lists become bullet lines, and any tag
// outside the whitelist is stripped while its text content survives.
func RenderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return html.EscapeString(markdown)
	}

	s := buf.String()
	s = headingOpenRe.ReplaceAllString(s, "<b>")
	s = headingCloseRe.ReplaceAllString(s, "</b>\n")
	s = blockReplacer.Replace(s)
	s = stripDisallowedTags(s)
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func stripDisallowedTags(s string) string {
	return tagRe.ReplaceAllStringFunc(s, func(tag string) string {
		m := tagRe.FindStringSubmatch(tag)
		if allowedTags[strings.ToLower(m[1])] {
			return tag
		}
		return ""
	})
}
