package render

import (
	"math"
	"regexp"
	"strings"

	"github.com/ppiankov/ignblog/internal/cms"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// DefaultWordsPerMinute is the reading speed used when none is configured.
const DefaultWordsPerMinute = 200

// ReadingTime estimates minutes to read a post. Headings are split on single
// spaces and bodies on runs of whitespace, so an empty string counts as one word.
func ReadingTime(sections []cms.Section, wordsPerMinute int) int {
	if wordsPerMinute < 1 {
		wordsPerMinute = DefaultWordsPerMinute
	}
	words := 0
	for _, s := range sections {
		words += len(strings.Split(s.Heading, " "))
		body := strings.TrimSpace(s.Body.Text(" "))
		words += len(whitespaceRe.Split(body, -1))
	}
	return int(math.Ceil(float64(words) / float64(wordsPerMinute)))
}
