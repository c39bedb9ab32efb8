// Package context_assembler builds the token-bounded prompt prefix injected
// before each model call, drawing from the memory tiers in fixed priority
// order: recent turns first, then retrieved facts, then old summaries.
package context_assembler //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"strings"
	"time"

	"github.com/ameliahart/conversational_memory/internal/episodic_memory"
	"github.com/ameliahart/conversational_memory/internal/memory_settings"
	"github.com/ameliahart/conversational_memory/internal/semantic_memory"
	"github.com/ameliahart/conversational_memory/internal/short_term_memory"
	"github.com/ameliahart/conversational_memory/pkg/logger"
	"github.com/ameliahart/conversational_memory/pkg/metrics"
	"github.com/ameliahart/conversational_memory/pkg/tokencount"
)

// Preamble opens every assembled context.
const Preamble = "You are a helpful assistant with long-term memory of this user."

const (
	// DefaultMaxTokens bounds the context when the caller doesn't.
	DefaultMaxTokens = 2000

	shortTermEntries   = 10
	semanticCandidates = 10
	episodicSummaries  = 3

	// Budget thresholds below which a tier isn't even attempted.
	semanticMinBudget = 500
	episodicMinBudget = 300

	// Each tier's share of the budget remaining when its turn comes.
	shortTermShare = 0.5
	semanticShare  = 0.3
	episodicShare  = 0.2
)

// ComponentsUsed records which memory tiers contributed to the context.
type ComponentsUsed struct {
	ShortTerm bool `json:"shortTerm"`
	Semantic  bool `json:"semantic"`
	Episodic  bool `json:"episodic"`
}

// Result is an assembled context plus its budget accounting.
type Result struct {
	Context         string         `json:"context"`
	TokenCount      int            `json:"tokenCount"`
	RemainingTokens int            `json:"remainingTokens"`
	ComponentsUsed  ComponentsUsed `json:"componentsUsed"`
}

// Config holds the dependencies for the assembler.
type Config struct {
	ShortTerm *short_term_memory.Store
	Semantic  *semantic_memory.Store
	Episodic  *episodic_memory.Store
	Settings  *memory_settings.Service
	Estimator tokencount.Estimator // defaults to tokencount.Heuristic
	Logger    logger.Logger
	Metrics   *metrics.Metrics // optional
}

// Assembler builds contexts. A failing tier is skipped, never fatal: the
// assembled context just gets shorter.
type Assembler struct {
	shortTerm *short_term_memory.Store
	semantic  *semantic_memory.Store
	episodic  *episodic_memory.Store
	settings  *memory_settings.Service
	estimator tokencount.Estimator
	log       logger.Logger
	metrics   *metrics.Metrics
}

// New creates an assembler. Panics if required dependencies are missing.
func New(cfg Config) *Assembler {
	if cfg.ShortTerm == nil {
		panic("context_assembler: short-term store is required")
	}
	if cfg.Semantic == nil {
		panic("context_assembler: semantic store is required")
	}
	if cfg.Episodic == nil {
		panic("context_assembler: episodic store is required")
	}
	if cfg.Settings == nil {
		panic("context_assembler: settings service is required")
	}
	if cfg.Logger == nil {
		panic("context_assembler: logger is required")
	}
	if cfg.Estimator == nil {
		cfg.Estimator = tokencount.Heuristic{}
	}

	return &Assembler{
		shortTerm: cfg.ShortTerm,
		semantic:  cfg.Semantic,
		episodic:  cfg.Episodic,
		settings:  cfg.Settings,
		estimator: cfg.Estimator,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Build assembles the context for one model call. The preamble and the
// current prompt are always included; memory blocks are added greedily in
// priority order while each fits its share of the remaining budget.
func (a *Assembler) Build(ctx context.Context, userID, conversationID, prompt string, maxTokens int) (Result, error) {
	start := time.Now()
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	settings, err := a.settings.Get(ctx, userID)
	if err != nil {
		a.degraded("settings", err)
		settings = memory_settings.Defaults(userID)
	}

	blocks := []string{Preamble}
	remaining := maxTokens - a.estimator.Estimate(Preamble)
	var used ComponentsUsed

	if settings.MemoryEnabled && settings.ShortTermMemoryEnabled && remaining > 0 {
		if block := a.shortTermBlock(ctx, conversationID, userID, remaining); block != "" {
			blocks = append(blocks, block)
			remaining -= a.estimator.Estimate(block)
			used.ShortTerm = true
		}
	}

	if settings.MemoryEnabled && settings.SemanticMemoryEnabled && remaining > semanticMinBudget {
		if block := a.semanticBlock(ctx, userID, conversationID, prompt, remaining, settings); block != "" {
			blocks = append(blocks, block)
			remaining -= a.estimator.Estimate(block)
			used.Semantic = true
		}
	}

	if settings.MemoryEnabled && settings.EpisodicMemoryEnabled && remaining > episodicMinBudget {
		if block := a.episodicBlock(ctx, userID, remaining); block != "" {
			blocks = append(blocks, block)
			remaining -= a.estimator.Estimate(block)
			used.Episodic = true
		}
	}

	// The current prompt always ships, even if it blows the budget; the
	// budget only gates the optional memory blocks.
	blocks = append(blocks, prompt)

	assembled := strings.Join(blocks, "\n\n")
	tokenCount := a.estimator.Estimate(assembled)
	remainingTokens := maxTokens - tokenCount
	if remainingTokens < 0 {
		remainingTokens = 0
	}

	if a.metrics != nil {
		a.metrics.ContextBuildsCounter.Inc()
		a.metrics.ContextBuildHistogram.Observe(time.Since(start).Seconds())
	}
	a.log.Debug("context assembled",
		logger.StringField("user_id", userID),
		logger.IntField("token_count", tokenCount),
		logger.BoolField("short_term", used.ShortTerm),
		logger.BoolField("semantic", used.Semantic),
		logger.BoolField("episodic", used.Episodic))

	return Result{
		Context:         assembled,
		TokenCount:      tokenCount,
		RemainingTokens: remainingTokens,
		ComponentsUsed:  used,
	}, nil
}

// shortTermBlock renders the recent turns, included only when the whole
// block fits half the remaining budget.
func (a *Assembler) shortTermBlock(ctx context.Context, conversationID, userID string, remaining int) string {
	entries, err := a.shortTerm.Get(ctx, conversationID, userID, shortTermEntries)
	if err != nil {
		a.degraded("short_term", err)
		return ""
	}
	if len(entries) == 0 {
		return ""
	}

	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, "Recent conversation:")
	for _, e := range entries {
		lines = append(lines, strings.ToUpper(e.Role)+": "+e.Content)
	}
	block := strings.Join(lines, "\n")

	if float64(a.estimator.Estimate(block)) > float64(remaining)*shortTermShare {
		return ""
	}
	return block
}

// semanticBlock renders the known-facts block from the most important
// memories that textually relate to the prompt, accumulating lines while
// the subtotal fits the semantic share of the remaining budget.
func (a *Assembler) semanticBlock(ctx context.Context, userID, conversationID, prompt string, remaining int, settings memory_settings.Settings) string {
	candidates, err := a.semantic.TopByImportance(ctx, userID, semanticCandidates)
	if err != nil {
		a.degraded("semantic", err)
		return ""
	}

	header := "Known facts about the user:"
	allotment := float64(remaining) * semanticShare
	subtotal := float64(a.estimator.Estimate(header))

	var lines []string
	for _, m := range candidates {
		if !settings.AllowCrossConversationMemory && m.ConversationID != conversationID {
			continue
		}
		if !relatedToPrompt(m, prompt) {
			continue
		}
		line := "- " + m.Content
		cost := float64(a.estimator.Estimate(line))
		if subtotal+cost > allotment {
			continue
		}
		subtotal += cost
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	return header + "\n" + strings.Join(lines, "\n")
}

// episodicBlock renders recent conversation summaries within the episodic
// share of the remaining budget.
func (a *Assembler) episodicBlock(ctx context.Context, userID string, remaining int) string {
	episodes, err := a.episodic.GetRecent(ctx, userID, episodicSummaries)
	if err != nil {
		a.degraded("episodic", err)
		return ""
	}

	header := "Previous conversation summaries:"
	allotment := float64(remaining) * episodicShare
	subtotal := float64(a.estimator.Estimate(header))

	var lines []string
	for _, e := range episodes {
		line := "- " + e.Summary
		cost := float64(a.estimator.Estimate(line))
		if subtotal+cost > allotment {
			continue
		}
		subtotal += cost
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return ""
	}
	return header + "\n" + strings.Join(lines, "\n")
}

func (a *Assembler) degraded(tier string, err error) {
	if a.metrics != nil {
		a.metrics.TierDegradedCounter.WithLabelValues(tier).Inc()
	}
	a.log.Warn("memory tier degraded, continuing without it",
		logger.StringField("tier", tier),
		logger.ErrorField(err))
}

// relatedToPrompt reports whether a memory textually relates to the prompt:
// one of its keywords appears in the prompt, or a prompt word longer than
// three characters appears in its content.
func relatedToPrompt(m semantic_memory.Memory, prompt string) bool {
	lowerPrompt := strings.ToLower(prompt)
	for _, kw := range m.Keywords {
		if strings.Contains(lowerPrompt, kw) {
			return true
		}
	}
	lowerContent := strings.ToLower(m.Content)
	for _, word := range strings.Fields(lowerPrompt) {
		word = strings.Trim(word, ".,!?;:\"'")
		if len(word) > 3 && strings.Contains(lowerContent, word) {
			return true
		}
	}
	return false
}
