package semantic_memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegexExtractor(t *testing.T) {
	e := NewRegexExtractor()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "too short", content: "hi there", want: ""},
		{name: "filler", content: "sounds good", want: ""},
		{name: "filler with punctuation", content: "thank you!", want: ""},
		{
			name:    "identity statement",
			content: "My name is Alex, nice to meet you",
			want:    "My name is Alex, nice to meet you",
		},
		{
			name:    "preference statement",
			content: "by the way, I love hiking on weekends",
			want:    "I love hiking on weekends",
		},
		{
			name:    "explicit remember marker",
			content: "please remember that my meetings start at 9am",
			want:    "remember that my meetings start at 9am",
		},
		{
			name:    "unmatched short content discarded",
			content: "the weather could change soon",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Extract(tt.content))
		})
	}
}

func TestRegexExtractorJoinsMultipleMatches(t *testing.T) {
	e := NewRegexExtractor()

	got := e.Extract("My name is Alex. I like blue")
	assert.Contains(t, got, "My name is Alex")
	assert.Contains(t, got, "I like blue")
	assert.Contains(t, got, ". ")
}

func TestRegexExtractorFallsBackToLongRawContent(t *testing.T) {
	e := NewRegexExtractor()

	content := "the quarterly report numbers came in well above what anyone projected"
	assert.Greater(t, len(content), 50)
	assert.Equal(t, content, e.Extract(content))
}

func TestScoreConfidence(t *testing.T) {
	tests := []struct {
		name    string
		content string
		role    string
		want    float64
	}{
		{name: "assistant base", content: "enjoys puzzles", role: "assistant", want: 0.5},
		{name: "user sourced", content: "I enjoy puzzles", role: "user", want: 0.7},
		{name: "user with certainty", content: "I always drink tea", role: "user", want: 0.8},
		{name: "user with hedge", content: "maybe I should try tea", role: "user", want: 0.5},
		{name: "assistant hedge", content: "I think they enjoy tea", role: "assistant", want: 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, scoreConfidence(tt.content, tt.role), 1e-9)
		})
	}
}

func TestCategorize(t *testing.T) {
	c := NewRuleCategorizer()

	tests := []struct {
		content string
		want    string
	}{
		{"I prefer tabs over spaces", CategoryPreference},
		{"I am able to read French fluently", CategorySkill},
		{"I want to run a marathon next year", CategoryGoal},
		{"my deploy keeps failing with an error", CategoryProblem},
		{"help me write a poem about autumn", CategoryCreative},
		{"the api server needs a database index", CategoryTechnical},
		{"I live in Berlin with my family", CategoryPersonal},
		{"the library was built in 1905", CategoryFact},
		// A declarative statement is a fact even when a later rule (skill
		// here) also matches; only the preference rule outranks it.
		{"My dog is friendly and I know how to train him", CategoryFact},
		{"I like blue but my dog is scared of it", CategoryPreference},
		{"hmm interesting", CategoryGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.content[:12], func(t *testing.T) {
			assert.Equal(t, tt.want, c.Categorize(tt.content))
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	keywords := extractKeywords("My name is Alex and I like blue")

	assert.Contains(t, keywords, "name")
	assert.Contains(t, keywords, "alex")
	assert.Contains(t, keywords, "blue")
	assert.NotContains(t, keywords, "like") // stopword
	assert.NotContains(t, keywords, "and")  // too short
	assert.NotContains(t, keywords, "my")   // too short
}

func TestKeywordsIntersect(t *testing.T) {
	assert.True(t, keywordsIntersect([]string{"blue", "alex"}, []string{"green", "blue"}))
	assert.False(t, keywordsIntersect([]string{"blue"}, []string{"green"}))
	assert.False(t, keywordsIntersect(nil, []string{"green"}))
}

func TestStopWordsAreLowercase(t *testing.T) {
	for w := range stopWords {
		assert.Equal(t, strings.ToLower(w), w)
	}
}
