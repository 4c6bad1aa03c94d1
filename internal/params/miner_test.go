package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMineSynonymKeysMerged(t *testing.T) {
	markup := `<a href="https://t.example.com/click?gclid=Cj0abc&campaignid=123&keyword=best%20plumber">a</a>
		<a href="https://t.example.com/click?campaign_id=456&adgroupid=77&matchtype=e">b</a>`

	got := Mine(markup)

	// Both historical spellings merge into one key, document order preserved
	assert.Equal(t, []string{"123", "456"}, got["campaignId"])
	assert.Equal(t, []string{"77"}, got["adGroupId"])
	assert.Equal(t, []string{"Cj0abc"}, got["gclid"])
	assert.Equal(t, []string{"e"}, got["matchType"])
}

func TestMineKeywordPercentDecoded(t *testing.T) {
	got := Mine(`href="?keyword=emergency%20plumber%20boston"`)
	assert.Equal(t, []string{"emergency plumber boston"}, got["keyword"])
}

func TestMineDuplicatesPreserved(t *testing.T) {
	markup := `?gclid=first&x=1 ?gclid=second&y=2 ?gclid=first&z=3`
	got := Mine(markup)
	assert.Equal(t, []string{"first", "second", "first"}, got["gclid"])
}

func TestMineAbsentKeysOmitted(t *testing.T) {
	got := Mine(`<a href="https://t.example.com/?gclid=abc">x</a>`)

	assert.Contains(t, got, "gclid")
	assert.NotContains(t, got, "device")
	assert.NotContains(t, got, "campaignId")
}

func TestMineEmptyMarkup(t *testing.T) {
	assert.Empty(t, Mine(""))
	assert.Empty(t, Mine("<html><body>no tracking here</body></html>"))
}
