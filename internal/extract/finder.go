package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// RuleKind tags a container rule variant
type RuleKind string

const (
	// RuleStructural matches known ad-container markup via a CSS selector
	RuleStructural RuleKind = "structural"
	// RuleFallback carves a boundary around a sponsor-label anchor when no
	// structural rule matches; markup structure is not contractually stable
	// and the engine degrades to this rather than reporting zero ads
	RuleFallback RuleKind = "fallback"
)

// ContainerRule is one matcher in a prioritized rule list. New markup
// variants are added as new rules, not as branches in the engine.
type ContainerRule struct {
	Kind     RuleKind
	Name     string
	Selector string         // structural only
	Anchor   *regexp.Regexp // fallback only
}

// ContainerFinder locates ad-container regions in raw markup. The matching
// strategy is swappable without touching the aggregation layer.
type ContainerFinder interface {
	FindContainers(markup string) []string
}

// RuleFinder applies an ordered rule list; the first tier that matches wins
type RuleFinder struct {
	rules []ContainerRule
}

// Window carved around a fallback anchor when no structural rule matches
const fallbackWindow = 1600

var sponsorAnchor = regexp.MustCompile(`(?i)>\s*(?:Sponsored|Sponsored\s+results?|Anzeige)\s*<`)

// NewAdFinder returns the finder for text-ad containers
func NewAdFinder() *RuleFinder {
	return &RuleFinder{rules: []ContainerRule{
		{Kind: RuleStructural, Name: "data-text-ad", Selector: `div[data-text-ad]`},
		{Kind: RuleStructural, Name: "tads-block", Selector: `#tads > div, #bottomads > div`},
		{Kind: RuleStructural, Name: "legacy-ads-ad", Selector: `div.ads-ad, li.ads-ad`},
		{Kind: RuleFallback, Name: "sponsor-label", Anchor: sponsorAnchor},
	}}
}

// NewShoppingFinder returns the finder for shopping/PLA containers
func NewShoppingFinder() *RuleFinder {
	return &RuleFinder{rules: []ContainerRule{
		{Kind: RuleStructural, Name: "pla-unit", Selector: `div.pla-unit, li.pla-unit`},
		{Kind: RuleStructural, Name: "commercial-unit", Selector: `div[class*="commercial-unit"]`},
		{Kind: RuleStructural, Name: "sh-np-card", Selector: `div[class*="sh-np"]`},
	}}
}

// FindContainers returns the raw markup of each matched container in scan
// order. Malformed markup yields whatever the tolerant parser recovers,
// never an error.
func (f *RuleFinder) FindContainers(markup string) []string {
	var doc *goquery.Document
	if d, err := goquery.NewDocumentFromReader(strings.NewReader(markup)); err == nil {
		doc = d
	}

	for _, rule := range f.rules {
		var found []string
		switch rule.Kind {
		case RuleStructural:
			if doc == nil {
				continue
			}
			doc.Find(rule.Selector).Each(func(_ int, s *goquery.Selection) {
				if h, err := goquery.OuterHtml(s); err == nil {
					found = append(found, h)
				}
			})
		case RuleFallback:
			found = anchorWindows(markup, rule.Anchor)
		}
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

// anchorWindows slices a bounded region around each anchor match. The region
// runs from just before the label to the next label or the window cap.
func anchorWindows(markup string, anchor *regexp.Regexp) []string {
	locs := anchor.FindAllStringIndex(markup, -1)
	if len(locs) == 0 {
		return nil
	}

	windows := make([]string, 0, len(locs))
	for i, loc := range locs {
		start := loc[0] - 200
		if start < 0 {
			start = 0
		}
		end := loc[1] + fallbackWindow
		if i+1 < len(locs) && locs[i+1][0] < end {
			end = locs[i+1][0]
		}
		if end > len(markup) {
			end = len(markup)
		}
		windows = append(windows, markup[start:end])
	}
	return windows
}
