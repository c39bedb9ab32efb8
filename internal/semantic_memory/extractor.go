package semantic_memory

import (
	"regexp"
	"strings"
)

// Extractor distills memory-worthy content out of a raw message, returning
// an empty string when the message isn't worth remembering.
type Extractor interface {
	Extract(content string) string
}

// fillers are messages with no memorable content on their own.
var fillers = map[string]struct{}{
	"ok": {}, "okay": {}, "thanks": {}, "thank you": {}, "yes": {},
	"no": {}, "sure": {}, "got it": {}, "sounds good": {}, "hello": {},
	"hi": {}, "hey": {}, "cool": {}, "great": {}, "nice": {},
}

// extractionPatterns capture the self-descriptive statements worth keeping.
var extractionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is [^.!?\n]+`),
	regexp.MustCompile(`(?i)\bcall me [^.!?\n]+`),
	regexp.MustCompile(`(?i)\bi(?:'m| am) [^.!?\n]+`),
	regexp.MustCompile(`(?i)\bi (?:like|love|prefer|hate|dislike|enjoy) [^.!?\n]+`),
	regexp.MustCompile(`(?i)\bi (?:work|live) [^.!?\n]+`),
	regexp.MustCompile(`(?i)\bi have [^.!?\n]+`),
	regexp.MustCompile(`(?i)\bremember (?:that )?[^.!?\n]+`),
	regexp.MustCompile(`(?i)\bit(?:'s| is) important (?:that |to )?[^.!?\n]+`),
	regexp.MustCompile(`(?i)\bnote that [^.!?\n]+`),
}

var certaintyWords = []string{"always", "definitely", "never", "absolutely", "i am certain"}

var hedgeWords = []string{"maybe", "i think", "perhaps", "possibly", "not sure", "might"}

// RegexExtractor extracts memorable statements with first-person patterns.
type RegexExtractor struct{}

// NewRegexExtractor creates an extractor with the default patterns.
func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{}
}

// Extract returns the memorable portion of content, or "" to skip it.
func (e *RegexExtractor) Extract(content string) string {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < 10 {
		return ""
	}
	if _, ok := fillers[strings.ToLower(strings.TrimRight(trimmed, ".!?"))]; ok {
		return ""
	}

	var matches []string
	seen := make(map[string]struct{})
	for _, pattern := range extractionPatterns {
		for _, m := range pattern.FindAllString(trimmed, -1) {
			m = strings.TrimSpace(m)
			key := strings.ToLower(m)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			matches = append(matches, m)
		}
	}
	if len(matches) > 0 {
		return strings.Join(matches, ". ")
	}

	// Nothing matched a pattern; longer statements are kept verbatim rather
	// than dropped, shorter ones are noise.
	if len(trimmed) > 50 {
		return trimmed
	}
	return ""
}

// scoreConfidence estimates how much to trust an extracted statement.
// The user stating something about themselves outranks the assistant
// inferring it, certainty markers raise it, hedges lower it.
func scoreConfidence(content, role string) float64 {
	confidence := 0.5
	if role == "user" {
		confidence += 0.2
	}

	lower := strings.ToLower(content)
	for _, w := range certaintyWords {
		if strings.Contains(lower, w) {
			confidence += 0.1
			break
		}
	}
	for _, w := range hedgeWords {
		if strings.Contains(lower, w) {
			confidence -= 0.2
			break
		}
	}

	if confidence > 1.0 {
		confidence = 1.0
	}
	if confidence < 0.1 {
		confidence = 0.1
	}
	return confidence
}
