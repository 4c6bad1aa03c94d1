package extract

import (
	"math"

	"github.com/adlens/serp-crawler/internal/domain"
)

// ComputeMetrics summarizes already-extracted ad records. It never re-parses
// markup; recomputing over the same records yields identical values.
func ComputeMetrics(top, bottom, shopping []domain.AdRecord) domain.AdMetrics {
	all := make([]domain.AdRecord, 0, len(top)+len(bottom)+len(shopping))
	all = append(all, top...)
	all = append(all, bottom...)
	all = append(all, shopping...)

	m := domain.AdMetrics{
		TotalAds: len(all),
		HasAds:   len(all) > 0,
	}

	seen := make(map[string]bool)
	var titleLen, titleCount, descLen, descCount int

	for _, ad := range all {
		m.AdPositions = append(m.AdPositions, ad.Position)

		if ad.AdvertiserDomain != "" && !seen[ad.AdvertiserDomain] {
			seen[ad.AdvertiserDomain] = true
			m.AdDomains = append(m.AdDomains, ad.AdvertiserDomain)
		}

		m.HasSitelinks = m.HasSitelinks || ad.HasSitelinks
		m.HasPhoneNumber = m.HasPhoneNumber || ad.HasPhoneNumber

		if ad.Title != "" {
			titleLen += len([]rune(ad.Title))
			titleCount++
		}
		if ad.Description != "" {
			descLen += len([]rune(ad.Description))
			descCount++
		}
	}

	// Averages run over non-empty samples only; 0 when there are none
	if titleCount > 0 {
		m.AvgTitleLength = int(math.Round(float64(titleLen) / float64(titleCount)))
	}
	if descCount > 0 {
		m.AvgDescriptionLength = int(math.Round(float64(descLen) / float64(descCount)))
	}

	return m
}
