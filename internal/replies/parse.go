package replies

import (
	"regexp"
	"strings"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// StripHTML flattens HTML to plain text: script and style blocks are
// dropped, tags become spaces, whitespace collapses.
func StripHTML(html string) string {
	text := scriptRe.ReplaceAllString(html, "")
	text = styleRe.ReplaceAllString(text, "")
	text = tagRe.ReplaceAllString(text, " ")
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var availabilityKeywords = []string{
	"available", "free", "time", "tuesday", "wednesday", "thursday",
	"friday", "monday", "morning", "afternoon", "evening", "schedule",
}

// ExtractAvailability pulls meeting availability phrasing out of a reply:
// the first two sentences mentioning a scheduling keyword. Returns "" when
// nothing looks like availability.
func ExtractAvailability(body string) string {
	lower := strings.ToLower(body)
	found := false
	for _, kw := range availabilityKeywords {
		if strings.Contains(lower, kw) {
			found = true
			break
		}
	}
	if !found {
		return ""
	}

	var picked []string
	for _, sentence := range strings.Split(body, ".") {
		s := strings.TrimSpace(sentence)
		if s == "" {
			continue
		}
		sLower := strings.ToLower(s)
		for _, kw := range availabilityKeywords {
			if strings.Contains(sLower, kw) {
				picked = append(picked, s)
				break
			}
		}
		if len(picked) == 2 {
			break
		}
	}
	return strings.Join(picked, ". ")
}
