// Package classify maps free text to known service categories by
// keyword matching.
package classify

import (
	"regexp"
	"sort"
	"strings"
)

// Match is one (service, category) pair found in a block of text. The
// service name is alias-normalized and lowercase.
type Match struct {
	Service  string
	Category string
}

// categoryPatterns maps each category to an alternation of service
// keywords. Every pattern is tried against the full text, so one text
// may contribute matches to several categories.
var categoryPatterns = []struct {
	category string
	pattern  *regexp.Regexp
}{
	{"Social Media", regexp.MustCompile(`(?i)(facebook|twitter|instagram|linkedin|tiktok|reddit|snapchat|pinterest)`)},
	{"Shopping", regexp.MustCompile(`(?i)(amazon|ebay|etsy|shopify|walmart|target|bestbuy|aliexpress)`)},
	{"Finance", regexp.MustCompile(`(?i)(paypal|stripe|bank|credit|venmo|cashapp|wise|coinbase|crypto)`)},
	{"Cloud Services", regexp.MustCompile(`(?i)(google|gmail|dropbox|icloud|onedrive|outlook|box|mega|protonmail)`)},
	{"Subscription Services", regexp.MustCompile(`(?i)(netflix|spotify|hulu|disney|prime|youtube|paramount|peacock|apple)`)},
	{"Gaming", regexp.MustCompile(`(?i)(steam|epic|origin|uplay|psn|xbox|nintendo|battlenet)`)},
	{"Professional", regexp.MustCompile(`(?i)(slack|zoom|teams|asana|jira|trello|github|gitlab)`)},
	{"Travel", regexp.MustCompile(`(?i)(airbnb|booking|expedia|uber|lyft|airlines|hotel)`)},
}

// serviceAliases folds provider-specific keywords onto the service that
// actually owns the account. Unmapped keywords normalize to themselves.
var serviceAliases = map[string]string{
	"gmail":      "google",
	"googlemail": "google",
	"youtube":    "google",
	"outlook":    "microsoft",
	"hotmail":    "microsoft",
	"onedrive":   "microsoft",
	"teams":      "microsoft",
	"icloud":     "apple",
	"prime":      "amazon",
}

// Normalize maps a matched keyword to its canonical lowercase service name.
func Normalize(keyword string) string {
	k := strings.ToLower(keyword)
	if alias, ok := serviceAliases[k]; ok {
		return alias
	}
	return k
}

// Classify returns the set of (service, category) pairs found in text.
// Matching is exhaustive and case-insensitive; duplicates collapse.
// The result is sorted for determinism.
func Classify(text string) []Match {
	found := make(map[Match]struct{})
	for _, cp := range categoryPatterns {
		for _, m := range cp.pattern.FindAllString(text, -1) {
			found[Match{Service: Normalize(m), Category: cp.category}] = struct{}{}
		}
	}

	out := make([]Match, 0, len(found))
	for m := range found {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Service < out[j].Service
	})
	return out
}
