package render

import (
	"html/template"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^block-img$`)).OnElements("p")
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[\w-]+$`)).OnElements("span")
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a")
	return p
}

// Sanitize strips anything outside the rich text vocabulary and marks the result safe.
func Sanitize(raw string) template.HTML {
	return template.HTML(policy.Sanitize(raw))
}
