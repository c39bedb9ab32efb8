// Package memory_service is the facade the transport layer talks to: it
// composes the memory tiers, the assembler, and the writeback recorder
// behind one API keyed by verified user IDs.
package memory_service //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ameliahart/conversational_memory/internal/context_assembler"
	"github.com/ameliahart/conversational_memory/internal/episodic_memory"
	"github.com/ameliahart/conversational_memory/internal/memory_settings"
	"github.com/ameliahart/conversational_memory/internal/memory_writeback"
	"github.com/ameliahart/conversational_memory/internal/semantic_memory"
	"github.com/ameliahart/conversational_memory/internal/short_term_memory"
	"github.com/ameliahart/conversational_memory/pkg/logger"
)

// ConfirmationToken must accompany a clear-all request, exactly.
const ConfirmationToken = "DELETE ALL MY MEMORIES"

// ErrInvalidConfirmation rejects a clear-all with a missing or wrong token.
// No deletion happens in that case.
var ErrInvalidConfirmation = errors.New("invalid confirmation token")

// Export is a full snapshot of one user's stored memory.
type Export struct {
	Settings   memory_settings.Settings   `json:"settings"`
	ShortTerm  []short_term_memory.Window `json:"shortTerm"`
	Semantic   []semantic_memory.Memory   `json:"semantic"`
	Episodic   []episodic_memory.Episode  `json:"episodic"`
	ExportedAt time.Time                  `json:"exportedAt"`
}

// ClearResult reports how much a clear-all removed.
type ClearResult struct {
	ClearedCount int `json:"clearedCount"`
}

// Config holds the dependencies for the service.
type Config struct {
	ShortTerm *short_term_memory.Store
	Semantic  *semantic_memory.Store
	Episodic  *episodic_memory.Store
	Settings  *memory_settings.Service
	Assembler *context_assembler.Assembler
	Recorder  *memory_writeback.Recorder
	Logger    logger.Logger
}

// Service is the exposed memory API.
type Service struct {
	shortTerm *short_term_memory.Store
	semantic  *semantic_memory.Store
	episodic  *episodic_memory.Store
	settings  *memory_settings.Service
	assembler *context_assembler.Assembler
	recorder  *memory_writeback.Recorder
	log       logger.Logger
}

// New creates a memory service. Panics if required dependencies are missing.
func New(cfg Config) *Service {
	if cfg.ShortTerm == nil {
		panic("memory_service: short-term store is required")
	}
	if cfg.Semantic == nil {
		panic("memory_service: semantic store is required")
	}
	if cfg.Episodic == nil {
		panic("memory_service: episodic store is required")
	}
	if cfg.Settings == nil {
		panic("memory_service: settings service is required")
	}
	if cfg.Assembler == nil {
		panic("memory_service: assembler is required")
	}
	if cfg.Recorder == nil {
		panic("memory_service: recorder is required")
	}
	if cfg.Logger == nil {
		panic("memory_service: logger is required")
	}

	return &Service{
		shortTerm: cfg.ShortTerm,
		semantic:  cfg.Semantic,
		episodic:  cfg.Episodic,
		settings:  cfg.Settings,
		assembler: cfg.Assembler,
		recorder:  cfg.Recorder,
		log:       cfg.Logger,
	}
}

// AssembleContext builds the prompt prefix for one model call.
func (s *Service) AssembleContext(ctx context.Context, userID, conversationID, prompt string, maxTokens int) (context_assembler.Result, error) {
	return s.assembler.Build(ctx, userID, conversationID, prompt, maxTokens)
}

// RecordTurn queues a completed turn for asynchronous persistence. Returns
// whether the turn was accepted (false means the queue shed it).
func (s *Service) RecordTurn(userID, conversationID, userPrompt, assistantResponse string) bool {
	return s.recorder.Record(userID, conversationID, userPrompt, assistantResponse)
}

// SearchMemories runs an explicit similarity search over the user's
// semantic memories.
func (s *Service) SearchMemories(ctx context.Context, userID, query string, filters semantic_memory.SearchFilters, limit int) ([]semantic_memory.SearchResult, error) {
	return s.semantic.Search(ctx, userID, query, filters, limit, semantic_memory.DefaultSearchThreshold)
}

// GetMemoryStats summarizes the user's semantic memories.
func (s *Service) GetMemoryStats(ctx context.Context, userID string) (semantic_memory.Stats, error) {
	return s.semantic.Stats(ctx, userID)
}

// DeleteMemory removes one memory if it belongs to the user.
func (s *Service) DeleteMemory(ctx context.Context, memoryID, userID string) (bool, error) {
	return s.semantic.Delete(ctx, memoryID, userID)
}

// BoostMemoryImportance applies a manual importance boost to one memory.
func (s *Service) BoostMemoryImportance(ctx context.Context, memoryID, userID, pattern string) error {
	return s.semantic.UpdateImportance(ctx, memoryID, userID, pattern)
}

// GetSettings returns the user's memory settings.
func (s *Service) GetSettings(ctx context.Context, userID string) (memory_settings.Settings, error) {
	return s.settings.Get(ctx, userID)
}

// UpdateSettings applies a partial settings update.
func (s *Service) UpdateSettings(ctx context.Context, userID string, patch memory_settings.Patch) (memory_settings.Settings, error) {
	return s.settings.Update(ctx, userID, patch)
}

// ExportAllMemories returns a full snapshot of the user's stored memory.
func (s *Service) ExportAllMemories(ctx context.Context, userID string) (Export, error) {
	settings, err := s.settings.Get(ctx, userID)
	if err != nil {
		return Export{}, err
	}
	windows, err := s.shortTerm.ExportAll(ctx, userID)
	if err != nil {
		return Export{}, err
	}
	memories, err := s.semantic.ExportAll(ctx, userID)
	if err != nil {
		return Export{}, err
	}
	episodes, err := s.episodic.ExportAll(ctx, userID)
	if err != nil {
		return Export{}, err
	}

	return Export{
		Settings:   settings,
		ShortTerm:  windows,
		Semantic:   memories,
		Episodic:   episodes,
		ExportedAt: time.Now().UTC(),
	}, nil
}

// ClearAllMemories wipes every tier for the user. The confirmation token
// must match exactly; otherwise nothing is deleted. Partial failures still
// clear the other tiers and are aggregated into one error.
func (s *Service) ClearAllMemories(ctx context.Context, userID, confirmationToken string) (ClearResult, error) {
	if confirmationToken != ConfirmationToken {
		return ClearResult{}, ErrInvalidConfirmation
	}

	var result ClearResult
	var errs *multierror.Error

	n, err := s.shortTerm.DeleteAllForUser(ctx, userID)
	result.ClearedCount += n
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	n, err = s.semantic.DeleteAllForUser(ctx, userID)
	result.ClearedCount += n
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	n, err = s.episodic.DeleteAllForUser(ctx, userID)
	result.ClearedCount += n
	if err != nil {
		errs = multierror.Append(errs, err)
	}

	s.log.Info("cleared all memories",
		logger.StringField("user_id", userID),
		logger.IntField("cleared_count", result.ClearedCount))
	return result, errs.ErrorOrNil()
}

// Close drains the writeback queue. Call during shutdown.
func (s *Service) Close() {
	s.recorder.Close()
}
