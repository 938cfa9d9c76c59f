package render

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// DefaultSnippetChars bounds a source excerpt in the thread.
const DefaultSnippetChars = 280

// Snippet turns a source excerpt into short markdown. Search providers return
// either plain text or HTML fragments; HTML is converted, anything that fails
// to convert is used as is. The result is collapsed to one line and cut at
// limit runes.
func Snippet(content string, limit int) string {
	text := content
	if strings.Contains(content, "<") {
		if md, err := htmltomarkdown.ConvertString(content); err == nil {
			text = md
		}
	}
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if limit > 0 && len(runes) > limit {
		return strings.TrimSpace(string(runes[:limit])) + "…"
	}
	return text
}
