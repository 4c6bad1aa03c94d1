package extract

import (
	"regexp"
	"strings"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	// The five entities observed in SERP ad text. &amp; is decoded last so a
	// single replacer pass does not manufacture new entities.
	entityReplacer = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
		"&amp;", "&",
	)
)

// NormalizeText cleans extracted ad text: decodes common HTML entities,
// strips embedded markup tags, collapses runs of whitespace to a single
// space and trims. The pass repeats until the text stops changing, so the
// function is idempotent even on double-encoded input. Terminates because
// every changing pass shortens the text or settles whitespace.
func NormalizeText(s string) string {
	for {
		next := normalizeOnce(s)
		if next == s {
			return next
		}
		s = next
	}
}

func normalizeOnce(s string) string {
	s = entityReplacer.Replace(s)
	s = tagPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
