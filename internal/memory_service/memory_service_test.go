package memory_service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameliahart/conversational_memory/internal/context_assembler"
	"github.com/ameliahart/conversational_memory/internal/document_store"
	"github.com/ameliahart/conversational_memory/internal/embedding"
	"github.com/ameliahart/conversational_memory/internal/episodic_memory"
	"github.com/ameliahart/conversational_memory/internal/memory_settings"
	"github.com/ameliahart/conversational_memory/internal/memory_writeback"
	"github.com/ameliahart/conversational_memory/internal/semantic_memory"
	"github.com/ameliahart/conversational_memory/internal/short_term_memory"
	"github.com/ameliahart/conversational_memory/pkg/logger"
)

func newTestService(t *testing.T) *Service {
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
	assembler := context_assembler.New(context_assembler.Config{
		ShortTerm: shortTerm,
		Semantic:  semantic,
		Episodic:  episodic,
		Settings:  settings,
		Logger:    log,
	})
	recorder := memory_writeback.New(memory_writeback.Config{
		ShortTerm: shortTerm,
		Semantic:  semantic,
		Settings:  settings,
		Logger:    log,
		Workers:   1,
	})

	svc := New(Config{
		ShortTerm: shortTerm,
		Semantic:  semantic,
		Episodic:  episodic,
		Settings:  settings,
		Assembler: assembler,
		Recorder:  recorder,
		Logger:    log,
	})
	t.Cleanup(svc.Close)
	return svc
}

func TestRecordThenAssembleRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.True(t, svc.RecordTurn("user-1", "conv-1",
		"My name is Alex and I like blue", "nice to meet you, Alex"))
	svc.Close() // drain writeback before reading

	result, err := svc.AssembleContext(ctx, "user-1", "conv-1",
		"what is my favorite color, blue maybe?", 4000)
	require.NoError(t, err)

	assert.True(t, result.ComponentsUsed.ShortTerm)
	assert.True(t, result.ComponentsUsed.Semantic)
	assert.Contains(t, result.Context, "blue")
}

func TestSearchMemories(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.True(t, svc.RecordTurn("user-1", "conv-1",
		"remember that I prefer the window seat on long flights", "noted"))
	svc.Close()

	results, err := svc.SearchMemories(ctx, "user-1",
		"remember that I prefer the window seat on long flights",
		semantic_memory.SearchFilters{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Memory.Content, "window seat")
}

func TestClearAllMemoriesRequiresExactToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.True(t, svc.RecordTurn("user-1", "conv-1", "I like blue skies", "noted"))
	svc.Close()

	for _, token := range []string{"", "delete all my memories", "DELETE MY MEMORIES", "yes"} {
		result, err := svc.ClearAllMemories(ctx, "user-1", token)
		assert.ErrorIs(t, err, ErrInvalidConfirmation)
		assert.Equal(t, 0, result.ClearedCount)
	}

	// Nothing was deleted by the failed attempts.
	export, err := svc.ExportAllMemories(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, export.ShortTerm)
	assert.NotEmpty(t, export.Semantic)
}

func TestClearAllMemoriesWipesEveryTier(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.True(t, svc.RecordTurn("user-1", "conv-1", "I like blue skies", "noted"))
	svc.Close()

	result, err := svc.ClearAllMemories(ctx, "user-1", ConfirmationToken)
	require.NoError(t, err)
	assert.Greater(t, result.ClearedCount, 0)

	export, err := svc.ExportAllMemories(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, export.ShortTerm)
	assert.Empty(t, export.Semantic)
	assert.Empty(t, export.Episodic)
}

func TestExportAllMemoriesSnapshotShape(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.True(t, svc.RecordTurn("user-1", "conv-1", "I like blue skies", "noted"))
	svc.Close()

	export, err := svc.ExportAllMemories(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", export.Settings.UserID)
	assert.Len(t, export.ShortTerm, 1)
	assert.Len(t, export.Semantic, 1)
	assert.False(t, export.ExportedAt.IsZero())
}

func TestStatsAndSettingsPassThrough(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	stats, err := svc.GetMemoryStats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalMemories)

	disabled := false
	updated, err := svc.UpdateSettings(ctx, "user-1", memory_settings.Patch{
		SemanticMemoryEnabled: &disabled,
	})
	require.NoError(t, err)
	assert.False(t, updated.SemanticMemoryEnabled)

	got, err := svc.GetSettings(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, got.SemanticMemoryEnabled)
}
