package context_assembler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameliahart/conversational_memory/internal/document_store"
	"github.com/ameliahart/conversational_memory/internal/embedding"
	"github.com/ameliahart/conversational_memory/internal/episodic_memory"
	"github.com/ameliahart/conversational_memory/internal/memory_settings"
	"github.com/ameliahart/conversational_memory/internal/semantic_memory"
	"github.com/ameliahart/conversational_memory/internal/short_term_memory"
	"github.com/ameliahart/conversational_memory/pkg/logger"
)

type fixture struct {
	assembler *Assembler
	shortTerm *short_term_memory.Store
	semantic  *semantic_memory.Store
	episodic  *episodic_memory.Store
	settings  *memory_settings.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := document_store.NewMemoryStore()
	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Service: "test"})

	shortTerm := short_term_memory.New(short_term_memory.Config{Store: store, Logger: log})
	semantic := semantic_memory.New(semantic_memory.Config{
		Store:    store,
		Embedder: embedding.NewStaticClient(),
		Logger:   log,
	})
	episodic := episodic_memory.New(episodic_memory.Config{Store: store, Logger: log})
	settings := memory_settings.New(memory_settings.Config{Store: store, Logger: log})

	assembler := New(Config{
		ShortTerm: shortTerm,
		Semantic:  semantic,
		Episodic:  episodic,
		Settings:  settings,
		Logger:    log,
	})
	return &fixture{
		assembler: assembler,
		shortTerm: shortTerm,
		semantic:  semantic,
		episodic:  episodic,
		settings:  settings,
	}
}

func (f *fixture) seedSemantic(t *testing.T, content string) {
	t.Helper()
	mem, err := f.semantic.Create(context.Background(), semantic_memory.Message{
		UserID:         "user-1",
		ConversationID: "conv-1",
		Role:           "user",
		Content:        content,
	}, semantic_memory.CreateParams{Importance: 0.8}, memory_settings.Defaults("user-1"))
	require.NoError(t, err)
	require.NotNil(t, mem)
}

func TestBuildIncludesAllTiersWithAmpleBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.shortTerm.Append(ctx, "conv-1", "user-1",
		short_term_memory.Entry{Role: "user", Content: "let's plan the trip"}))
	require.NoError(t, f.shortTerm.Append(ctx, "conv-1", "user-1",
		short_term_memory.Entry{Role: "assistant", Content: "where would you like to go?"}))

	f.seedSemantic(t, "I like blue and my favorite city is Lisbon")

	_, err := f.episodic.Save(ctx, episodic_memory.Episode{
		UserID:  "user-1",
		Summary: "Talked about museum opening hours",
	}, 0)
	require.NoError(t, err)

	result, err := f.assembler.Build(ctx, "user-1", "conv-1", "should we visit Lisbon in blue autumn?", 4000)
	require.NoError(t, err)

	assert.True(t, result.ComponentsUsed.ShortTerm)
	assert.True(t, result.ComponentsUsed.Semantic)
	assert.True(t, result.ComponentsUsed.Episodic)

	// fixed order: preamble, short-term, facts, episodes, prompt
	idxPreamble := strings.Index(result.Context, Preamble)
	idxShortTerm := strings.Index(result.Context, "Recent conversation:")
	idxFacts := strings.Index(result.Context, "Known facts about the user:")
	idxEpisodes := strings.Index(result.Context, "Previous conversation summaries:")
	idxPrompt := strings.Index(result.Context, "should we visit Lisbon")

	require.NotEqual(t, -1, idxPreamble)
	require.NotEqual(t, -1, idxShortTerm)
	require.NotEqual(t, -1, idxFacts)
	require.NotEqual(t, -1, idxEpisodes)
	require.NotEqual(t, -1, idxPrompt)
	assert.Less(t, idxPreamble, idxShortTerm)
	assert.Less(t, idxShortTerm, idxFacts)
	assert.Less(t, idxFacts, idxEpisodes)
	assert.Less(t, idxEpisodes, idxPrompt)

	assert.Contains(t, result.Context, "USER: let's plan the trip")
	assert.Greater(t, result.TokenCount, 0)
	assert.Equal(t, 4000-result.TokenCount, result.RemainingTokens)
}

func TestBuildPromptAlwaysPresentUnderTinyBudget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.shortTerm.Append(ctx, "conv-1", "user-1",
		short_term_memory.Entry{Role: "user", Content: "hello there"}))

	result, err := f.assembler.Build(ctx, "user-1", "conv-1", "what did I just say?", 1)
	require.NoError(t, err)

	assert.Contains(t, result.Context, Preamble)
	assert.Contains(t, result.Context, "what did I just say?")
	assert.False(t, result.ComponentsUsed.ShortTerm)
	assert.False(t, result.ComponentsUsed.Semantic)
	assert.False(t, result.ComponentsUsed.Episodic)
	assert.Equal(t, 0, result.RemainingTokens)
}

func TestBuildRejectsOversizedShortTermBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	long := strings.Repeat("a very chatty message ", 50)
	require.NoError(t, f.shortTerm.Append(ctx, "conv-1", "user-1",
		short_term_memory.Entry{Role: "user", Content: long}))

	// Preamble costs 16 tokens; the long entry far exceeds half of what's left.
	result, err := f.assembler.Build(ctx, "user-1", "conv-1", "hi", 40)
	require.NoError(t, err)

	assert.False(t, result.ComponentsUsed.ShortTerm)
	assert.NotContains(t, result.Context, "Recent conversation:")
	assert.Contains(t, result.Context, "hi")
}

func TestBuildDisabledSemanticTierProducesNoFactsBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.seedSemantic(t, "I like blue and collect vintage maps")

	disabled := false
	_, err := f.settings.Update(ctx, "user-1", memory_settings.Patch{
		SemanticMemoryEnabled: &disabled,
	})
	require.NoError(t, err)

	result, err := f.assembler.Build(ctx, "user-1", "conv-1", "what blue vintage maps do I like?", 4000)
	require.NoError(t, err)

	assert.False(t, result.ComponentsUsed.Semantic)
	assert.NotContains(t, result.Context, "Known facts about the user:")
}

func TestBuildMemoryMasterSwitchDisablesEverything(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.shortTerm.Append(ctx, "conv-1", "user-1",
		short_term_memory.Entry{Role: "user", Content: "remember this"}))
	f.seedSemantic(t, "I like blue and collect vintage maps")

	disabled := false
	_, err := f.settings.Update(ctx, "user-1", memory_settings.Patch{
		MemoryEnabled: &disabled,
	})
	require.NoError(t, err)

	result, err := f.assembler.Build(ctx, "user-1", "conv-1", "what do you know about blue maps?", 4000)
	require.NoError(t, err)

	assert.Equal(t, ComponentsUsed{}, result.ComponentsUsed)
	assert.Contains(t, result.Context, Preamble)
	assert.Contains(t, result.Context, "what do you know about blue maps?")
}

func TestBuildRestrictsToConversationWhenCrossConversationDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.seedSemantic(t, "I like blue and collect vintage maps") // conv-1

	disabled := false
	_, err := f.settings.Update(ctx, "user-1", memory_settings.Patch{
		AllowCrossConversationMemory: &disabled,
	})
	require.NoError(t, err)

	// Same user, different conversation: the fact must not leak in.
	result, err := f.assembler.Build(ctx, "user-1", "conv-2", "what blue vintage maps do I like?", 4000)
	require.NoError(t, err)
	assert.False(t, result.ComponentsUsed.Semantic)

	// In its own conversation it is still available.
	result, err = f.assembler.Build(ctx, "user-1", "conv-1", "what blue vintage maps do I like?", 4000)
	require.NoError(t, err)
	assert.True(t, result.ComponentsUsed.Semantic)
}

func TestBuildSkipsUnrelatedFacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.seedSemantic(t, "I like blue and collect vintage maps")

	result, err := f.assembler.Build(ctx, "user-1", "conv-1", "draft an email to the finance team", 4000)
	require.NoError(t, err)

	assert.False(t, result.ComponentsUsed.Semantic)
	assert.NotContains(t, result.Context, "Known facts about the user:")
}

func TestRelatedToPrompt(t *testing.T) {
	mem := semantic_memory.Memory{
		Content:  "I like blue and collect vintage maps",
		Keywords: []string{"blue", "collect", "maps", "vintage"},
	}

	assert.True(t, relatedToPrompt(mem, "show me something BLUE"))
	assert.True(t, relatedToPrompt(mem, "anything about vintage stuff?"))
	assert.False(t, relatedToPrompt(mem, "summarize the meeting notes"))
}
