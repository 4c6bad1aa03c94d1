package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/adlens/serp-crawler/internal/domain"
	"github.com/adlens/serp-crawler/internal/params"
)

// The first topAdCutoff matched containers are classified "top", the rest
// "bottom". Fixed design constant, not configurable.
const topAdCutoff = 3

// Cheap structural markers checked before any per-ad parsing. If none match
// the markup carries no ads and extraction short-circuits.
var adMarkers = []string{
	"data-text-ad",
	`id="tads"`,
	`id="bottomads"`,
	"ads-ad",
	"pla-unit",
	"commercial-unit",
	"sh-np",
	">Sponsored<",
}

var (
	absoluteURLPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)
	phonePattern       = regexp.MustCompile(`\(?\d{3}\)?[\s.-]?\d{3}[\s.-]\d{4}`)
	sitelinkPattern    = regexp.MustCompile(`(?i)(?:class="[^"]*sitelink[^"]*"|data-sitelinks\b)`)
)

var (
	titleSelectors = []string{
		"h3",
		`[role="heading"]`,
		"h2",
		`span[class*="ad-title"]`,
		`div[class*="ad-title"]`,
	}
	descriptionSelectors = []string{
		`div[class*="ads-creative"]`,
		`div[class*="ad-desc"]`,
		`div[class*="description"]`,
		`span[class*="desc"]`,
	}
	productTitleSelectors = []string{
		`[class*="pla-unit-title"]`,
		"h4",
		`div[class*="product-title"]`,
		`span[class*="title"]`,
	}
)

// Engine turns raw SERP markup into a structured extraction result.
// Pure and synchronous; safe to run in parallel across inputs.
type Engine struct {
	log      *zap.Logger
	ads      ContainerFinder
	shopping ContainerFinder
}

// NewEngine creates an engine with the default rule-based finders
func NewEngine(log *zap.Logger) *Engine {
	return NewEngineWithFinders(log, NewAdFinder(), NewShoppingFinder())
}

// NewEngineWithFinders creates an engine with custom container finders
func NewEngineWithFinders(log *zap.Logger, ads, shopping ContainerFinder) *Engine {
	return &Engine{log: log, ads: ads, shopping: shopping}
}

// Extract parses SERP markup into ad records and aggregate metrics.
// Malformed or empty input produces the empty result, never an error.
func (e *Engine) Extract(markup string) domain.ExtractionResult {
	// Parameter mining is independent of ad-record extraction; tracking
	// parameters can survive in markup that carries no ad containers
	result := domain.ExtractionResult{Params: params.Mine(markup)}

	if strings.TrimSpace(markup) == "" || !hasAdMarkers(markup) {
		result.Metrics = ComputeMetrics(nil, nil, nil)
		return result
	}

	containers := e.ads.FindContainers(markup)
	for i, container := range containers {
		ad := extractAd(container, i+1)
		if ad.Position <= topAdCutoff {
			ad.Group = domain.GroupTop
			result.TopAds = append(result.TopAds, ad)
		} else {
			ad.Group = domain.GroupBottom
			result.BottomAds = append(result.BottomAds, ad)
		}
	}

	for i, container := range e.shopping.FindContainers(markup) {
		result.ShoppingAds = append(result.ShoppingAds, extractShoppingAd(container, i+1))
	}

	result.Metrics = ComputeMetrics(result.TopAds, result.BottomAds, result.ShoppingAds)

	e.log.Debug("extraction complete",
		zap.Int("total_ads", result.Metrics.TotalAds),
		zap.Int("containers", len(containers)),
		zap.Int("shopping", len(result.ShoppingAds)))

	return result
}

func hasAdMarkers(markup string) bool {
	for _, marker := range adMarkers {
		if strings.Contains(markup, marker) {
			return true
		}
	}
	return false
}

// extractAd pulls the fields of one text ad out of its container markup
func extractAd(container string, position int) domain.AdRecord {
	ad := domain.AdRecord{Position: position}

	doc := parseFragment(container)
	if doc != nil {
		ad.Title = NormalizeText(firstMatchText(doc, titleSelectors))
		ad.Description = NormalizeText(firstMatchText(doc, descriptionSelectors))
	}

	if u := absoluteURLPattern.FindString(container); u != "" {
		ad.DestinationURL = u
		ad.AdvertiserDomain = hostOf(u)
	}

	ad.HasSitelinks = sitelinkPattern.MatchString(container)
	ad.HasPhoneNumber = phonePattern.MatchString(container)

	return ad
}

// extractShoppingAd collects every product title and absolute URL in a
// shopping/PLA container. Domain comes from the first URL, or the literal
// "unknown" sentinel when the container carried none.
func extractShoppingAd(container string, position int) domain.AdRecord {
	ad := domain.AdRecord{
		Position:         position,
		Group:            domain.GroupShopping,
		AdvertiserDomain: "unknown",
	}

	for _, u := range absoluteURLPattern.FindAllString(container, -1) {
		ad.ProductURLs = append(ad.ProductURLs, u)
	}
	if len(ad.ProductURLs) > 0 {
		ad.DestinationURL = ad.ProductURLs[0]
		if h := hostOf(ad.ProductURLs[0]); h != "" {
			ad.AdvertiserDomain = h
		}
	}

	if doc := parseFragment(container); doc != nil {
		for _, sel := range productTitleSelectors {
			doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
				if t := NormalizeText(s.Text()); t != "" {
					ad.ProductTitles = append(ad.ProductTitles, t)
				}
			})
			if len(ad.ProductTitles) > 0 {
				break
			}
		}
	}

	return ad
}

func parseFragment(markup string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil
	}
	return doc
}

func firstMatchText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s.Text()
		}
	}
	return ""
}

// hostOf returns the lower-cased host of an absolute URL with any leading
// "www." removed, matching how the record store keys advertiser domains
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
