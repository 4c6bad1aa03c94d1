package domain

// AdGroup identifies where on the results page an ad was placed
type AdGroup string

const (
	GroupTop      AdGroup = "top"
	GroupBottom   AdGroup = "bottom"
	GroupShopping AdGroup = "shopping"
)

// AdRecord represents a single advertisement extracted from SERP markup
type AdRecord struct {
	Position         int     `json:"position"` // 1-based rank within its group
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	DestinationURL   string  `json:"destination_url"`
	AdvertiserDomain string  `json:"advertiser_domain"`
	HasSitelinks     bool    `json:"has_sitelinks"`
	HasPhoneNumber   bool    `json:"has_phone_number"`
	Group            AdGroup `json:"group"`

	// Shopping variant fields; empty for top/bottom ads
	ProductTitles []string `json:"product_titles,omitempty"`
	ProductURLs   []string `json:"product_urls,omitempty"`
}

// AdMetrics summarizes an extraction pass over a single SERP
type AdMetrics struct {
	TotalAds             int      `json:"total_ads"`
	HasAds               bool     `json:"has_ads"`
	AdPositions          []int    `json:"ad_positions"`
	AdDomains            []string `json:"ad_domains"` // unique, order irrelevant
	HasSitelinks         bool     `json:"has_sitelinks"`
	HasPhoneNumber       bool     `json:"has_phone_number"`
	AvgTitleLength       int      `json:"avg_title_length"`
	AvgDescriptionLength int      `json:"avg_description_length"`
}

// ExtractionResult is the full structured output of one extraction pass
type ExtractionResult struct {
	TopAds      []AdRecord          `json:"top_ads"`
	BottomAds   []AdRecord          `json:"bottom_ads"`
	ShoppingAds []AdRecord          `json:"shopping_ads"`
	Params      map[string][]string `json:"params"`
	Metrics     AdMetrics           `json:"metrics"`
}

// AllAds returns every extracted record in group order (top, bottom, shopping)
func (r *ExtractionResult) AllAds() []AdRecord {
	ads := make([]AdRecord, 0, len(r.TopAds)+len(r.BottomAds)+len(r.ShoppingAds))
	ads = append(ads, r.TopAds...)
	ads = append(ads, r.BottomAds...)
	ads = append(ads, r.ShoppingAds...)
	return ads
}
