package semantic_memory

import (
	"sort"
	"strings"
	"unicode"
)

// stopWords are common words excluded from keyword indexes. Conversational
// fillers like "like" and "just" carry no retrieval signal.
var stopWords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "been": {}, "before": {},
	"being": {}, "best": {}, "both": {}, "cannot": {}, "could": {},
	"does": {}, "doing": {}, "down": {}, "each": {}, "even": {},
	"ever": {}, "every": {}, "from": {}, "have": {}, "having": {},
	"here": {}, "into": {}, "just": {}, "know": {}, "like": {},
	"made": {}, "make": {}, "many": {}, "more": {}, "most": {},
	"much": {}, "need": {}, "only": {}, "other": {}, "over": {},
	"real": {}, "really": {}, "same": {}, "should": {}, "some": {},
	"such": {}, "sure": {}, "take": {}, "than": {}, "that": {},
	"them": {}, "then": {}, "there": {}, "these": {}, "they": {},
	"thing": {}, "things": {}, "think": {}, "this": {}, "those": {},
	"very": {}, "want": {}, "well": {}, "were": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "while": {}, "will": {},
	"with": {}, "would": {}, "your": {},
}

// extractKeywords pulls indexable keywords out of text: lowercased words
// longer than three characters, minus stop words, deduplicated and sorted.
func extractKeywords(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]struct{})
	for _, word := range words {
		word = strings.ToLower(word)
		if len(word) <= 3 {
			continue
		}
		if _, ok := stopWords[word]; ok {
			continue
		}
		seen[word] = struct{}{}
	}

	result := make([]string, 0, len(seen))
	for word := range seen {
		result = append(result, word)
	}
	sort.Strings(result)
	return result
}

// keywordsIntersect checks whether two keyword sets share any word.
func keywordsIntersect(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	set := make(map[string]struct{}, len(b))
	for _, w := range b {
		set[w] = struct{}{}
	}
	for _, w := range a {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}
