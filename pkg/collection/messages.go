package collection

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys shown to the user.
const (
	MsgLoadFailed = "Failed to load the list. Please try again."
	MsgEmpty      = "No results found."
	MsgSummary    = "Showing %d to %d of %d results"
)

func init() {
	catalog := []struct {
		tag language.Tag
		key string
		msg string
	}{
		{language.English, MsgLoadFailed, MsgLoadFailed},
		{language.English, MsgEmpty, MsgEmpty},
		{language.English, MsgSummary, MsgSummary},
		{language.Arabic, MsgLoadFailed, "تعذر تحميل القائمة. يرجى المحاولة مرة أخرى."},
		{language.Arabic, MsgEmpty, "لا توجد نتائج."},
		{language.Arabic, MsgSummary, "عرض %d إلى %d من أصل %d نتيجة"},
	}
	for _, e := range catalog {
		if err := message.SetString(e.tag, e.key, e.msg); err != nil {
			panic(err)
		}
	}
}

// ParseLanguage resolves a language code such as "en" or "ar".
// Unknown or empty codes fall back to English.
func ParseLanguage(code string) language.Tag {
	if code == "" {
		return language.English
	}
	tag, err := language.Parse(code)
	if err != nil {
		return language.English
	}
	matcher := language.NewMatcher([]language.Tag{language.English, language.Arabic})
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return language.English
	}
	return []language.Tag{language.English, language.Arabic}[idx]
}

// Printer returns a message printer for lang.
func Printer(lang language.Tag) *message.Printer {
	return message.NewPrinter(lang)
}

// Summary renders the "showing x to y of z" line for a page.
func Summary[T any](p *message.Printer, page Page[T]) string {
	if page.Total == 0 {
		return p.Sprintf(MsgEmpty)
	}
	return p.Sprintf(MsgSummary, page.From, page.To, page.Total)
}
