package render

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

var supported = []language.Tag{
	language.BrazilianPortuguese, // default
	language.English,
}

var matcher = language.NewMatcher(supported)

// locale holds the strings a page needs in one language.
type locale struct {
	tag      language.Tag
	months   [12]string
	loadMore string
	loading  string
	minutes  string
	notFound string
	failed   string
	backHome string
}

var locales = map[language.Tag]locale{
	language.BrazilianPortuguese: {
		tag:      language.BrazilianPortuguese,
		months:   [12]string{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"},
		loadMore: "Carregar mais posts",
		loading:  "Carregando...",
		minutes:  "min",
		notFound: "Post não encontrado",
		failed:   "Não foi possível carregar mais posts. Tente novamente.",
		backHome: "Voltar para a home",
	},
	language.English: {
		tag:      language.English,
		months:   [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
		loadMore: "Load more posts",
		loading:  "Loading...",
		minutes:  "min",
		notFound: "Post not found",
		failed:   "Could not load more posts. Please try again.",
		backHome: "Back to home",
	},
}

// matchLocale picks the closest supported locale, falling back to pt-BR.
func matchLocale(name string) locale {
	tag, err := language.Parse(name)
	if err != nil {
		return locales[language.BrazilianPortuguese]
	}
	_, idx, _ := matcher.Match(tag)
	return locales[supported[idx]]
}

// formatDate renders t as "dd MMM yyyy" in loc. A nil time renders empty.
func (l locale) formatDate(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return fmt.Sprintf("%02d %s %d", lt.Day(), l.months[lt.Month()-1], lt.Year())
}
