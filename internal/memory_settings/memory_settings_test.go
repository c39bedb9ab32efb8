package memory_settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameliahart/conversational_memory/internal/document_store"
	"github.com/ameliahart/conversational_memory/pkg/logger"
)

func newTestService(t *testing.T) (*Service, document_store.Store) {
	t.Helper()
	store := document_store.NewMemoryStore()
	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Service: "test"})
	return New(Config{Store: store, Logger: log}), store
}

func boolPtr(b bool) *bool        { return &b }
func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func TestGetMaterializesDefaults(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	set, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", set.UserID)
	assert.True(t, set.MemoryEnabled)
	assert.True(t, set.ShortTermMemoryEnabled)
	assert.True(t, set.SemanticMemoryEnabled)
	assert.True(t, set.EpisodicMemoryEnabled)
	assert.True(t, set.AutoExtractMemories)
	assert.True(t, set.AllowCrossConversationMemory)
	assert.Equal(t, 1000, set.MaxSemanticMemories)
	assert.Equal(t, 100, set.MaxEpisodicMemories)
	assert.Equal(t, 365, set.DataRetentionDays)
	assert.InDelta(t, 0.3, set.MemoryImportanceThreshold, 1e-9)
	assert.False(t, set.UpdatedAt.IsZero())

	// First read persists the defaults so subsequent readers see one record.
	doc, err := store.Get(ctx, Collection, "user-1")
	require.NoError(t, err)
	var persisted Settings
	require.NoError(t, document_store.Decode(doc, &persisted))
	assert.Equal(t, set.MaxSemanticMemories, persisted.MaxSemanticMemories)
}

func TestUpdateAppliesOnlyPatchedFields(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	updated, err := svc.Update(ctx, "user-1", Patch{
		SemanticMemoryEnabled: boolPtr(false),
		MaxSemanticMemories:   intPtr(50),
	})
	require.NoError(t, err)

	assert.False(t, updated.SemanticMemoryEnabled)
	assert.Equal(t, 50, updated.MaxSemanticMemories)
	// untouched fields keep defaults
	assert.True(t, updated.MemoryEnabled)
	assert.Equal(t, 100, updated.MaxEpisodicMemories)

	// A later read (cache invalidated on update) sees the new values.
	again, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, again.SemanticMemoryEnabled)
	assert.Equal(t, 50, again.MaxSemanticMemories)
}

func TestUpdateRejectsInvalidValues(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	tests := []struct {
		name  string
		patch Patch
	}{
		{name: "zero max semantic", patch: Patch{MaxSemanticMemories: intPtr(0)}},
		{name: "negative retention", patch: Patch{DataRetentionDays: intPtr(-1)}},
		{name: "threshold above one", patch: Patch{MemoryImportanceThreshold: floatPtr(1.5)}},
		{name: "threshold below zero", patch: Patch{MemoryImportanceThreshold: floatPtr(-0.1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, "user-1", tt.patch)
			assert.ErrorIs(t, err, ErrInvalidPatch)
		})
	}
}

func TestDeleteRevertsToDefaults(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Update(ctx, "user-1", Patch{MemoryEnabled: boolPtr(false)})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "user-1"))

	set, err := svc.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, set.MemoryEnabled)
}

func TestNewPanicsOnMissingDependencies(t *testing.T) {
	log := logger.NewLogger(logger.Config{Level: logger.ErrorLevel, Service: "test"})

	assert.Panics(t, func() { New(Config{Logger: log}) })
	assert.Panics(t, func() { New(Config{Store: document_store.NewMemoryStore()}) })
}
