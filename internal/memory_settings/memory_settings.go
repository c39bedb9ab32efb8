// Package memory_settings manages per-user memory behavior controls.
package memory_settings //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/ameliahart/conversational_memory/internal/document_store"
	"github.com/ameliahart/conversational_memory/pkg/logger"
)

// Collection is the document collection holding per-user settings.
const Collection = "memory_settings"

const cacheTTL = 5 * time.Minute

// Settings controls how the memory tiers behave for a single user.
type Settings struct {
	UserID                       string    `json:"userId"`
	MemoryEnabled                bool      `json:"memoryEnabled"`
	ShortTermMemoryEnabled       bool      `json:"shortTermMemoryEnabled"`
	SemanticMemoryEnabled        bool      `json:"semanticMemoryEnabled"`
	EpisodicMemoryEnabled        bool      `json:"episodicMemoryEnabled"`
	AutoExtractMemories          bool      `json:"autoExtractMemories"`
	AllowCrossConversationMemory bool      `json:"allowCrossConversationMemory"`
	MaxSemanticMemories          int       `json:"maxSemanticMemories"`
	MaxEpisodicMemories          int       `json:"maxEpisodicMemories"`
	DataRetentionDays            int       `json:"dataRetentionDays"`
	MemoryImportanceThreshold    float64   `json:"memoryImportanceThreshold"`
	UpdatedAt                    time.Time `json:"updatedAt"`
}

// Patch is a partial settings update; nil fields are left unchanged.
type Patch struct {
	MemoryEnabled                *bool    `json:"memoryEnabled,omitempty"`
	ShortTermMemoryEnabled       *bool    `json:"shortTermMemoryEnabled,omitempty"`
	SemanticMemoryEnabled        *bool    `json:"semanticMemoryEnabled,omitempty"`
	EpisodicMemoryEnabled        *bool    `json:"episodicMemoryEnabled,omitempty"`
	AutoExtractMemories          *bool    `json:"autoExtractMemories,omitempty"`
	AllowCrossConversationMemory *bool    `json:"allowCrossConversationMemory,omitempty"`
	MaxSemanticMemories          *int     `json:"maxSemanticMemories,omitempty"`
	MaxEpisodicMemories          *int     `json:"maxEpisodicMemories,omitempty"`
	DataRetentionDays            *int     `json:"dataRetentionDays,omitempty"`
	MemoryImportanceThreshold    *float64 `json:"memoryImportanceThreshold,omitempty"`
}

// ErrInvalidPatch is returned when a patch carries out-of-range values.
var ErrInvalidPatch = errors.New("invalid settings patch")

// Defaults returns the settings a user has before ever configuring anything.
func Defaults(userID string) Settings {
	return Settings{
		UserID:                       userID,
		MemoryEnabled:                true,
		ShortTermMemoryEnabled:       true,
		SemanticMemoryEnabled:        true,
		EpisodicMemoryEnabled:        true,
		AutoExtractMemories:          true,
		AllowCrossConversationMemory: true,
		MaxSemanticMemories:          1000,
		MaxEpisodicMemories:          100,
		DataRetentionDays:            365,
		MemoryImportanceThreshold:    0.3,
	}
}

// Config holds the dependencies for the settings service.
type Config struct {
	Store  document_store.Store
	Logger logger.Logger
}

// Service reads and updates per-user settings, caching reads since every
// turn consults them.
type Service struct {
	store document_store.Store
	log   logger.Logger
	cache *ristretto.Cache
}

// New creates a settings service. Panics if required dependencies are missing.
func New(cfg Config) *Service {
	if cfg.Store == nil {
		panic("memory_settings: store is required")
	}
	if cfg.Logger == nil {
		panic("memory_settings: logger is required")
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10000,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		panic(fmt.Sprintf("memory_settings: cache init: %v", err))
	}

	return &Service{
		store: cfg.Store,
		log:   cfg.Logger,
		cache: cache,
	}
}

// Get returns the user's settings, materializing and persisting defaults on
// first access so later reads observe the same record.
func (s *Service) Get(ctx context.Context, userID string) (Settings, error) {
	if cached, ok := s.cache.Get(userID); ok {
		if set, ok := cached.(Settings); ok {
			return set, nil
		}
	}

	doc, err := s.store.Get(ctx, Collection, userID)
	if errors.Is(err, document_store.ErrNotFound) {
		set := Defaults(userID)
		set.UpdatedAt = time.Now().UTC()
		if err := s.store.Set(ctx, Collection, userID, set, false); err != nil {
			return Settings{}, fmt.Errorf("persisting default settings: %w", err)
		}
		s.cache.SetWithTTL(userID, set, 1, cacheTTL)
		s.log.Debug("materialized default memory settings",
			logger.StringField("user_id", userID))
		return set, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("loading settings: %w", err)
	}

	var set Settings
	if err := document_store.Decode(doc, &set); err != nil {
		return Settings{}, err
	}
	s.cache.SetWithTTL(userID, set, 1, cacheTTL)
	return set, nil
}

// Update applies a partial patch to the user's settings and returns the
// updated record.
func (s *Service) Update(ctx context.Context, userID string, patch Patch) (Settings, error) {
	if err := validatePatch(patch); err != nil {
		return Settings{}, err
	}

	current, err := s.Get(ctx, userID)
	if err != nil {
		return Settings{}, err
	}

	applyPatch(&current, patch)
	current.UpdatedAt = time.Now().UTC()

	if err := s.store.Set(ctx, Collection, userID, current, true); err != nil {
		return Settings{}, fmt.Errorf("saving settings: %w", err)
	}
	// Del goes through the same write buffer as earlier Sets; Wait flushes it
	// so no stale entry can land after the invalidation.
	s.cache.Del(userID)
	s.cache.Wait()

	s.log.Info("memory settings updated",
		logger.StringField("user_id", userID))
	return current, nil
}

// Delete removes the user's settings record, reverting them to defaults.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.store.Delete(ctx, Collection, userID); err != nil {
		return fmt.Errorf("deleting settings: %w", err)
	}
	s.cache.Del(userID)
	s.cache.Wait()
	return nil
}

func validatePatch(patch Patch) error {
	if patch.MaxSemanticMemories != nil && *patch.MaxSemanticMemories < 1 {
		return fmt.Errorf("%w: maxSemanticMemories must be positive", ErrInvalidPatch)
	}
	if patch.MaxEpisodicMemories != nil && *patch.MaxEpisodicMemories < 1 {
		return fmt.Errorf("%w: maxEpisodicMemories must be positive", ErrInvalidPatch)
	}
	if patch.DataRetentionDays != nil && *patch.DataRetentionDays < 1 {
		return fmt.Errorf("%w: dataRetentionDays must be positive", ErrInvalidPatch)
	}
	if patch.MemoryImportanceThreshold != nil &&
		(*patch.MemoryImportanceThreshold < 0 || *patch.MemoryImportanceThreshold > 1) {
		return fmt.Errorf("%w: memoryImportanceThreshold must be in [0,1]", ErrInvalidPatch)
	}
	return nil
}

func applyPatch(set *Settings, patch Patch) {
	if patch.MemoryEnabled != nil {
		set.MemoryEnabled = *patch.MemoryEnabled
	}
	if patch.ShortTermMemoryEnabled != nil {
		set.ShortTermMemoryEnabled = *patch.ShortTermMemoryEnabled
	}
	if patch.SemanticMemoryEnabled != nil {
		set.SemanticMemoryEnabled = *patch.SemanticMemoryEnabled
	}
	if patch.EpisodicMemoryEnabled != nil {
		set.EpisodicMemoryEnabled = *patch.EpisodicMemoryEnabled
	}
	if patch.AutoExtractMemories != nil {
		set.AutoExtractMemories = *patch.AutoExtractMemories
	}
	if patch.AllowCrossConversationMemory != nil {
		set.AllowCrossConversationMemory = *patch.AllowCrossConversationMemory
	}
	if patch.MaxSemanticMemories != nil {
		set.MaxSemanticMemories = *patch.MaxSemanticMemories
	}
	if patch.MaxEpisodicMemories != nil {
		set.MaxEpisodicMemories = *patch.MaxEpisodicMemories
	}
	if patch.DataRetentionDays != nil {
		set.DataRetentionDays = *patch.DataRetentionDays
	}
	if patch.MemoryImportanceThreshold != nil {
		set.MemoryImportanceThreshold = *patch.MemoryImportanceThreshold
	}
}
