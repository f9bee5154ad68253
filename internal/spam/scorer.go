// Package spam implements the heuristic comment risk score. The model is a
// fixed additive sum over explainable signals, clamped to [0,1], so every
// contribution can be pointed at when an admin asks why a comment was held.
package spam

import (
	"regexp"
	"strings"
	"unicode"
)

// Signal weights. These are tuning constants, not contracts; the admin-facing
// auto-reject threshold lives in config.
const (
	keywordWeight    = 0.3
	linkWeight       = 0.2
	capsWeight       = 0.2
	repeatWeight     = 0.15
	shortLinkWeight  = 0.25
	capsRatioTrigger = 0.5
	shortBodyLetters = 20
	repeatRunLength  = 5
)

var linkPattern = regexp.MustCompile(`(?i)(https?|www\.)`)

// Scorer computes spam likelihood for submitted comments. It is pure and
// deterministic: no I/O, no clock, safe for concurrent use.
type Scorer struct {
	keywords []string
	maxLinks int
}

// NewScorer builds a scorer from the configured keyword list and link
// threshold. Keywords are matched case-insensitively as substrings.
func NewScorer(keywords []string, maxLinks int) *Scorer {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &Scorer{keywords: lowered, maxLinks: maxLinks}
}

// Score returns a risk score in [0, 1] for the submitted text. The email and
// name are part of the contract for future signals but carry no weight today.
func (s *Scorer) Score(text, email, name string) float64 {
	_ = email
	_ = name

	score := 0.0
	lower := strings.ToLower(text)

	// Each matched keyword contributes once, cumulatively across keywords
	for _, kw := range s.keywords {
		if strings.Contains(lower, kw) {
			score += keywordWeight
		}
	}

	linkCount := len(linkPattern.FindAllStringIndex(text, -1))
	if linkCount > s.maxLinks {
		score += linkWeight * float64(linkCount-s.maxLinks)
	}

	letters, uppers := letterCounts(text)
	if letters > 0 && float64(uppers)/float64(letters) > capsRatioTrigger {
		score += capsWeight
	}

	if hasRepeatedRun(text, repeatRunLength) {
		score += repeatWeight
	}

	if letters < shortBodyLetters && linkCount > 0 {
		score += shortLinkWeight
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

// letterCounts returns the number of letters and uppercase letters in s
func letterCounts(s string) (letters, uppers int) {
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
	}
	return letters, uppers
}

// hasRepeatedRun reports whether s contains n or more identical consecutive
// characters. Go's regexp has no backreferences, so this is a plain scan.
func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run >= n {
			return true
		}
	}
	return false
}
