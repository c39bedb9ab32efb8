package semantic_memory

import (
	"regexp"
	"strings"
)

// Categorizer assigns a category to memory content.
type Categorizer interface {
	Categorize(content string) string
}

// categoryRule pairs a category with the pattern that detects it. Rules are
// checked in order; the first match wins.
type categoryRule struct {
	category string
	pattern  *regexp.Regexp
}

// Declarative statements are facts unless an earlier, more specific rule
// claims them, so the fact rule sits second and stays broad.
var defaultRules = []categoryRule{
	{CategoryPreference, regexp.MustCompile(`\b(prefer|prefers|favorite|favourite|like|likes|love|loves|hate|hates|enjoy|enjoys|dislike|dislikes|rather)\b`)},
	{CategoryFact, regexp.MustCompile(`\b(is|are|was|were|has|have)\b`)},
	{CategorySkill, regexp.MustCompile(`\b(can|able to|good at|skilled|experienced in|know how|proficient|fluent)\b`)},
	{CategoryGoal, regexp.MustCompile(`\b(want to|wants to|goal|plan to|plans to|aim to|hope to|trying to|working toward|working towards)\b`)},
	{CategoryProblem, regexp.MustCompile(`\b(problem|issue|bug|error|broken|failing|struggle|struggling|stuck|blocked)\b`)},
	{CategoryCreative, regexp.MustCompile(`\b(write|story|poem|design|draw|compose|creative|novel|song|paint)\b`)},
	{CategoryTechnical, regexp.MustCompile(`\b(code|coding|program|programming|software|database|server|api|deploy|kubernetes|docker|golang|python|javascript)\b`)},
	{CategoryPersonal, regexp.MustCompile(`\b(my name|i am|i'm|i live|my family|my wife|my husband|my partner|my kids|my job|my birthday|years old)\b`)},
}

// RuleCategorizer categorizes content with ordered keyword patterns.
type RuleCategorizer struct {
	rules []categoryRule
}

// NewRuleCategorizer creates a categorizer with the default rule set.
func NewRuleCategorizer() *RuleCategorizer {
	return &RuleCategorizer{rules: defaultRules}
}

// Categorize returns the first matching category, or CategoryGeneral.
func (c *RuleCategorizer) Categorize(content string) string {
	lower := strings.ToLower(content)
	for _, rule := range c.rules {
		if rule.pattern.MatchString(lower) {
			return rule.category
		}
	}
	return CategoryGeneral
}
