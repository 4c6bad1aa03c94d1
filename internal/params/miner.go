// Package params mines click-tracking query parameters embedded in SERP
// markup, independently of ad-record extraction.
package params

import (
	"net/url"
	"regexp"
)

// paramRule binds one canonical output key to the key spellings matched in
// markup. Historical spellings of the same parameter merge into one key.
type paramRule struct {
	key     string
	pattern *regexp.Regexp
	decode  bool // percent-decode matched values
}

const valueChars = `([^&"'<>\s]+)`

var rules = []paramRule{
	{key: "gclid", pattern: regexp.MustCompile(`[?&]gclid=` + valueChars)},
	{key: "gclsrc", pattern: regexp.MustCompile(`[?&]gclsrc=` + valueChars)},
	{key: "campaignId", pattern: regexp.MustCompile(`[?&](?:campaignid|campaign_id)=` + valueChars)},
	{key: "adGroupId", pattern: regexp.MustCompile(`[?&](?:adgroupid|adgroup_id)=` + valueChars)},
	{key: "creativeId", pattern: regexp.MustCompile(`[?&]creative=` + valueChars)},
	{key: "keyword", pattern: regexp.MustCompile(`[?&]keyword=` + valueChars), decode: true},
	{key: "matchType", pattern: regexp.MustCompile(`[?&]matchtype=` + valueChars)},
	{key: "network", pattern: regexp.MustCompile(`[?&]network=` + valueChars)},
	{key: "device", pattern: regexp.MustCompile(`[?&]device=` + valueChars)},
	{key: "adPosition", pattern: regexp.MustCompile(`[?&]adposition=` + valueChars)},
}

// Mine scans markup for known tracking parameters. Values are returned in
// document order and are not deduplicated; repeated parameters reflect
// repeated ad instances. Keys with no occurrences are absent from the map.
func Mine(markup string) map[string][]string {
	found := make(map[string][]string)

	for _, rule := range rules {
		matches := rule.pattern.FindAllStringSubmatch(markup, -1)
		if len(matches) == 0 {
			continue
		}
		values := make([]string, 0, len(matches))
		for _, m := range matches {
			v := m[1]
			if rule.decode {
				if decoded, err := url.QueryUnescape(v); err == nil {
					v = decoded
				}
			}
			values = append(values, v)
		}
		found[rule.key] = values
	}

	return found
}
