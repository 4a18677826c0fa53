package queryplanner

import (
	"math"
	"regexp"
	"strings"
)

var htmlTagPattern = regexp.MustCompile(`<[^<>]+>`)

// cleanQueryText strips HTML tags and emoji from turn text before it is
// embedded, so markup and pictographs never skew the query vector.
func cleanQueryText(text string) string {
	text = htmlTagPattern.ReplaceAllString(text, "")
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isEmoji(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// isEmoji reports whether r falls in the pictograph/emoji ranges stripped
// from query text.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, symbols
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r == 0xFE0F || r == 0x200D: // variation selector, ZWJ
		return true
	case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators
		return true
	}
	return false
}

// uniqueTokenCount counts distinct whitespace-delimited tokens, with CJK
// text falling back to distinct runes since it carries no spaces.
func uniqueTokenCount(text string) int {
	fields := strings.Fields(text)
	if len(fields) > 1 {
		seen := make(map[string]struct{}, len(fields))
		for _, f := range fields {
			seen[f] = struct{}{}
		}
		return len(seen)
	}
	seen := make(map[rune]struct{})
	for _, r := range text {
		if r > ' ' {
			seen[r] = struct{}{}
		}
	}
	return len(seen)
}

// Dynamic-k tiers: short turns retrieve a tight window, long turns a wide
// one, and the final k averages the two signals before the placeholder's
// multiplier applies.
const (
	shortTierK = 3
	longTierK  = 7

	userLengthTierBoundary = 60 // runes of cleaned user text
	aiTokenTierBoundary    = 40 // unique tokens of cleaned AI text
)

// dynamicK computes the retrieval depth from the user text length and the
// AI turn's unique-token count (two tiers each, averaged), scaled by the
// placeholder's k multiplier, minimum 1.
func dynamicK(userText, aiText string, multiplier float64) int {
	userK := shortTierK
	if len([]rune(userText)) > userLengthTierBoundary {
		userK = longTierK
	}
	aiK := shortTierK
	if uniqueTokenCount(aiText) > aiTokenTierBoundary {
		aiK = longTierK
	}

	k := float64(userK+aiK) / 2
	if multiplier > 0 {
		k *= multiplier
	}
	n := int(math.Round(k))
	if n < 1 {
		n = 1
	}
	return n
}
