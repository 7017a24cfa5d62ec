package render

import (
	"strings"

	"github.com/ppiankov/ignblog/internal/cms"
)

const maxDescription = 160

// Description returns the meta description of a post: the first sentence of
// its first non-empty section, or the title when the post has no text.
func Description(doc cms.Document) string {
	for _, s := range doc.Content {
		if d := firstSentence(strings.TrimSpace(s.Body.Text(" ")), maxDescription); d != "" {
			return d
		}
	}
	return doc.Title
}

// firstSentence returns text up to the first sentence boundary, capped at maxLen runes.
func firstSentence(text string, maxLen int) string {
	if text == "" {
		return ""
	}

	end := len(text)
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		end = idx
	}

	// Find the first ". ", "? " or "! "
	for i := 0; i < end-1; i++ {
		if strings.IndexByte(".?!", text[i]) >= 0 && text[i+1] == ' ' {
			end = i + 1
			break
		}
	}

	sentence := strings.TrimSpace(text[:end])
	runes := []rune(sentence)
	if len(runes) <= maxLen {
		return sentence
	}

	cut := string(runes[:maxLen-3])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:") + "..."
}
