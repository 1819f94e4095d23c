package spamcheck

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/outreach-engine/internal/domain"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		body    string
		want    float64
	}{
		{
			name:    "clean email",
			subject: "Quick question about your data pipeline",
			body:    "Hi Jane, noticed your team is scaling ingestion. Would love to compare notes.",
			want:    0,
		},
		{
			name:    "excessive punctuation",
			subject: "Following up",
			body:    "did you see my last note??? happy to resend.",
			want:    2,
		},
		{
			name:    "trigger words in body",
			subject: "Following up",
			body:    "click here to book a slot with me.",
			want:    1,
		},
		{
			name:    "all caps subject",
			subject: "MEETING REQUEST",
			body:    "short and polite body text.",
			want:    2,
		},
		{
			name:    "trigger words in subject",
			subject: "Limited time offer for your team",
			body:    "short and polite body text.",
			want:    1.5,
		},
		{
			name:    "caps heavy body",
			subject: "Hello",
			body:    "THIS IS MOSTLY UPPERCASE TEXT ok",
			want:    3,
		},
		{
			name:    "every factor at once",
			subject: "FREE URGENT WINNER PRIZE",
			body:    "ACT NOW!!! CLICK HERE FOR FREE CASH!!! GUARANTEED WINNER!!!",
			want:    9.5,
		},
		{
			name:    "empty draft",
			subject: "",
			body:    "",
			want:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.subject, tt.body), 1e-9)
		})
	}
}

func TestCheckerGate(t *testing.T) {
	checker := NewChecker(5.0)

	score, err := checker.Check("Quick question", "Hi Jane, short note.")
	assert.NoError(t, err)
	assert.Equal(t, 0.0, score)

	score, err = checker.Check("FREE CASH NOW", "ACT NOW!!! CLICK HERE!!!")
	assert.Error(t, err)
	assert.Greater(t, score, 5.0)

	var spamErr *domain.SpamScoreExceededError
	assert.ErrorAs(t, err, &spamErr)
	assert.Equal(t, 5.0, spamErr.Limit)
	assert.Equal(t, score, spamErr.Score)
}

func TestCheckerScoreAtLimitPasses(t *testing.T) {
	// caps body (+3) + punctuation (+2) = exactly 5.0.
	checker := NewChecker(5.0)
	score, err := checker.Check("Hello", "MOSTLY UPPERCASE BODY TEXT!!! ok")
	assert.NoError(t, err)
	assert.InDelta(t, 5.0, score, 1e-9)
}

func TestAnalyze(t *testing.T) {
	a := Analyze("URGENT!!! Meeting", "click here NOW!!!")
	assert.NotEmpty(t, a.Warnings)
	assert.Contains(t, a.Suggestions, "Reduce excessive punctuation")
	assert.Equal(t, "Meeting", a.ImprovedSubject)

	clean := Analyze("Quick question", "Hi Jane, short note.")
	assert.Empty(t, clean.Warnings)
	assert.Empty(t, clean.Suggestions)
	assert.Empty(t, clean.ImprovedSubject)
}

func TestContainsTriggers(t *testing.T) {
	assert.True(t, ContainsTriggers("Totally FREE consultation"))
	assert.True(t, ContainsTriggers("you are a winner"))
	assert.False(t, ContainsTriggers("quarterly planning sync"))
}
