package cleaner

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Cleaner sanitizes raw SERP HTML before it is persisted as a rendering
// snapshot, stripping scripts and event handlers while keeping the page
// structure inspectable
type Cleaner struct {
	policy *bluemonday.Policy
}

// NewCleaner creates a cleaner that keeps basic page structure
func NewCleaner() *Cleaner {
	policy := bluemonday.NewPolicy()

	policy.AllowElements("p", "br", "div", "span", "section")
	policy.AllowElements("strong", "b", "em", "i", "u")
	policy.AllowElements("ul", "ol", "li", "table", "tr", "td")
	policy.AllowElements("h1", "h2", "h3", "h4", "h5", "h6")

	policy.AllowAttrs("class", "id").Globally()
	policy.AllowAttrs("href").OnElements("a")
	policy.AllowRelativeURLs(true)
	policy.RequireParseableURLs(true)
	policy.AllowURLSchemes("http", "https")

	return &Cleaner{policy: policy}
}

// NewStrictCleaner creates a cleaner that strips ALL HTML
func NewStrictCleaner() *Cleaner {
	return &Cleaner{policy: bluemonday.StrictPolicy()}
}

// Clean sanitizes SERP HTML content
func (c *Cleaner) Clean(html string) string {
	return c.policy.Sanitize(html)
}

// CleanToText removes all HTML and returns plain text
func (c *Cleaner) CleanToText(html string) string {
	text := bluemonday.StrictPolicy().Sanitize(html)

	text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	return strings.TrimSpace(text)
}
