package answer

import (
	"math"
	"regexp"
	"strings"
)

// numericTokenRe matches dollar amounts, plain numbers, and percentages,
// e.g. "$750,000", "95%", "1.25".
var numericTokenRe = regexp.MustCompile(`\$?\d[\d,]*(?:\.\d+)?%?`)

// Confidence combines answer-to-context relevance with length and
// specificity heuristics:
//
//	0.6*relevance + 0.2*min(words/50, 1) + 0.2*(numericTokens/10)
//
// The specificity term is deliberately not clamped before the sum; the total
// is capped at 1.0 and rounded to 3 decimal places.
func Confidence(relevance float64, ans string) float64 {
	words := float64(len(strings.Fields(ans)))
	length := math.Min(words/50.0, 1.0)
	specificity := float64(len(numericTokenRe.FindAllString(ans, -1))) / 10.0

	score := 0.6*relevance + 0.2*length + 0.2*specificity
	if score > 1.0 {
		score = 1.0
	}
	return math.Round(score*1000) / 1000
}
