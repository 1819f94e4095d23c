// Package spamcheck scores outgoing email content for spam likelihood and
// gates sending on the configured ceiling. The score is advisory; a blocked
// draft stays approved so it can be revised and retried.
package spamcheck

import (
	"strings"
	"unicode"

	"github.com/ignite/outreach-engine/internal/domain"
)

// MaxScore is the ceiling the additive score is capped at.
const MaxScore = 10.0

var triggerWords = []string{
	"free", "buy now", "urgent", "limited time", "act now",
	"click here", "guarantee", "winner", "prize", "cash",
}

// Score rates subject and body from 0 (clean) to 10 (spammy). The score is
// additive over independent factors and capped at MaxScore.
func Score(subject, body string) float64 {
	score := 0.0

	if body != "" {
		if capsRatio(body) > 0.3 {
			score += 3.0
		}
		if strings.Contains(body, "!!!") || strings.Contains(body, "???") {
			score += 2.0
		}
		if ContainsTriggers(body) {
			score += 1.0
		}
	}

	if subject != "" {
		if isAllUpper(subject) {
			score += 2.0
		}
		if ContainsTriggers(subject) {
			score += 1.5
		}
	}

	if score > MaxScore {
		score = MaxScore
	}
	return score
}

// ContainsTriggers reports whether text contains a known spam trigger phrase.
func ContainsTriggers(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range triggerWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// Checker gates drafts against a configured maximum score.
type Checker struct {
	maxScore float64
}

// NewChecker creates a checker with the given ceiling, typically
// config.Workflow.MaxSpamScore.
func NewChecker(maxScore float64) *Checker {
	return &Checker{maxScore: maxScore}
}

// Check scores a draft and returns SpamScoreExceededError when the score is
// strictly above the ceiling. A score equal to the ceiling passes.
func (c *Checker) Check(subject, body string) (float64, error) {
	score := Score(subject, body)
	if score > c.maxScore {
		return score, &domain.SpamScoreExceededError{Score: score, Limit: c.maxScore}
	}
	return score, nil
}

// Analysis lists the factors that contributed to a draft's score together
// with revision suggestions.
type Analysis struct {
	Score           float64  `json:"score"`
	Warnings        []string `json:"warnings"`
	Suggestions     []string `json:"suggestions"`
	ImprovedSubject string   `json:"improved_subject,omitempty"`
}

// Analyze explains a draft's spam score and suggests revisions. The
// improved subject is only set when it differs from the original.
func Analyze(subject, body string) Analysis {
	a := Analysis{Score: Score(subject, body)}

	if capsRatio(body) > 0.3 {
		a.Warnings = append(a.Warnings, "body is more than 30% uppercase")
		a.Suggestions = append(a.Suggestions, "Reduce caps - use sentence case")
	}
	if strings.Contains(body, "!!!") || strings.Contains(body, "???") {
		a.Warnings = append(a.Warnings, "excessive punctuation in body")
		a.Suggestions = append(a.Suggestions, "Reduce excessive punctuation")
	}
	if ContainsTriggers(body) {
		a.Warnings = append(a.Warnings, "spam trigger phrases in body")
		a.Suggestions = append(a.Suggestions, "Rephrase promotional language in the body")
	}
	if subject != "" && isAllUpper(subject) {
		a.Warnings = append(a.Warnings, "subject is all caps")
		a.Suggestions = append(a.Suggestions, "Use sentence case in the subject")
	}
	if ContainsTriggers(subject) {
		a.Warnings = append(a.Warnings, "spam trigger phrases in subject")
		a.Suggestions = append(a.Suggestions, "Remove trigger words from the subject")
	}

	if strings.Contains(strings.ToUpper(subject), "URGENT") {
		improved := strings.TrimSpace(strings.NewReplacer("URGENT!!!", "", "URGENT", "").Replace(subject))
		if improved != subject {
			a.ImprovedSubject = improved
		}
	}

	return a
}

// capsRatio returns the share of uppercase characters over the whole text.
func capsRatio(text string) float64 {
	if len(text) == 0 {
		return 0
	}
	upper := 0
	for _, r := range text {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper) / float64(len(text))
}

// isAllUpper reports whether text contains at least one letter and no
// lowercase letters.
func isAllUpper(text string) bool {
	hasLetter := false
	for _, r := range text {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}
