package semantic_memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ameliahart/conversational_memory/internal/document_store"
	"github.com/ameliahart/conversational_memory/internal/embedding"
	"github.com/ameliahart/conversational_memory/internal/memory_settings"
	"github.com/ameliahart/conversational_memory/pkg/logger"
	"github.com/ameliahart/conversational_memory/pkg/metrics"
	"github.com/ameliahart/conversational_memory/pkg/prefixed_uuid"
)

const (
	// DefaultSearchThreshold filters explicit user searches.
	DefaultSearchThreshold = 0.7

	// RelevanceThreshold is the looser cutoff used for prompt assembly.
	RelevanceThreshold = 0.6

	// DedupThreshold merges a new memory into an existing one instead of
	// inserting a duplicate record.
	DedupThreshold = 0.9

	// DefaultSearchLimit caps results when the caller doesn't.
	DefaultSearchLimit = 10
)

// Importance boost patterns for UpdateImportance.
const (
	BoostFrequent = "frequent"
	BoostRecent   = "recent"
	BoostRelevant = "relevant"
)

// Config holds the dependencies for the semantic store.
type Config struct {
	Store       document_store.Store
	Embedder    embedding.Client
	Extractor   Extractor   // defaults to NewRegexExtractor()
	Categorizer Categorizer // defaults to NewRuleCategorizer()
	Logger      logger.Logger
	Metrics     *metrics.Metrics // optional
}

// Store creates, searches, and prunes semantic memories. All similarity work
// is a linear scan over the user's memories, which the per-user cap keeps
// bounded.
type Store struct {
	store       document_store.Store
	embedder    embedding.Client
	extractor   Extractor
	categorizer Categorizer
	log         logger.Logger
	metrics     *metrics.Metrics

	// Creates read-then-write during dedup and eviction; serialize per user.
	userLocks map[string]*sync.Mutex
	lockMux   sync.Mutex
}

// New creates a semantic store. Panics if required dependencies are missing.
func New(cfg Config) *Store {
	if cfg.Store == nil {
		panic("semantic_memory: store is required")
	}
	if cfg.Embedder == nil {
		panic("semantic_memory: embedder is required")
	}
	if cfg.Logger == nil {
		panic("semantic_memory: logger is required")
	}
	if cfg.Extractor == nil {
		cfg.Extractor = NewRegexExtractor()
	}
	if cfg.Categorizer == nil {
		cfg.Categorizer = NewRuleCategorizer()
	}

	return &Store{
		store:       cfg.Store,
		embedder:    cfg.Embedder,
		extractor:   cfg.Extractor,
		categorizer: cfg.Categorizer,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		userLocks:   make(map[string]*sync.Mutex),
	}
}

// Create extracts, deduplicates, and persists a memory from a message.
// Returns (nil, nil) when the message yields nothing worth remembering:
// tier disabled, content filtered out, or embeddings unavailable.
func (s *Store) Create(ctx context.Context, msg Message, params CreateParams, settings memory_settings.Settings) (*Memory, error) {
	if !settings.MemoryEnabled || !settings.SemanticMemoryEnabled {
		return nil, nil
	}

	content := s.extractor.Extract(msg.Content)
	if content == "" {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		if s.metrics != nil {
			s.metrics.EmbeddingFailuresCounter.Inc()
		}
		s.log.Warn("skipping memory creation, embedding unavailable",
			logger.StringField("user_id", msg.UserID),
			logger.ErrorField(err))
		return nil, nil
	}

	lock := s.getUserLock(msg.UserID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.loadAll(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}

	// Dedup: a near-identical existing memory absorbs the new content.
	for i := range existing {
		if embedding.Cosine(existing[i].Embedding, vec) >= DedupThreshold {
			merged, err := s.merge(ctx, &existing[i], content, msg, params)
			if err != nil {
				return nil, err
			}
			if s.metrics != nil {
				s.metrics.MemoriesMergedCounter.Inc()
			}
			return merged, nil
		}
	}

	if err := s.enforceMemoryLimits(ctx, existing, settings.MaxSemanticMemories); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	memory := Memory{
		ID:             prefixed_uuid.New(IDPrefix).String(),
		UserID:         msg.UserID,
		ConversationID: msg.ConversationID,
		Content:        content,
		Category:       params.Category,
		Keywords:       extractKeywords(content),
		Embedding:      vec,
		Importance:     params.Importance,
		Confidence:     params.Confidence,
		CreatedAt:      now,
		LastAccessedAt: now,
		PrivacyLevel:   PrivacyFull,
	}
	if memory.Category == "" {
		memory.Category = s.categorizer.Categorize(content)
	}
	if memory.Importance == 0 {
		memory.Importance = 0.5
	}
	if memory.Confidence == 0 {
		memory.Confidence = scoreConfidence(content, msg.Role)
	}
	if msg.MessageID != "" {
		memory.SourceMessageIDs = []string{msg.MessageID}
	}

	if err := s.store.Set(ctx, Collection, memory.ID, memory, false); err != nil {
		return nil, fmt.Errorf("saving memory: %w", err)
	}
	if s.metrics != nil {
		s.metrics.MemoriesCreatedCounter.Inc()
	}
	s.log.Debug("semantic memory created",
		logger.StringField("memory_id", memory.ID),
		logger.StringField("user_id", msg.UserID),
		logger.StringField("category", memory.Category))
	return &memory, nil
}

// Search embeds the query and ranks the user's memories by cosine similarity,
// keeping those at or above threshold. Returned memories get their access
// count and timestamp bumped.
func (s *Store) Search(ctx context.Context, userID, query string, filters SearchFilters, limit int, threshold float64) ([]SearchResult, error) {
	if threshold <= 0 {
		threshold = DefaultSearchThreshold
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if s.metrics != nil {
			s.metrics.EmbeddingFailuresCounter.Inc()
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	candidates, err := s.loadFiltered(ctx, userID, filters)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, m := range candidates {
		sim := embedding.Cosine(queryVec, m.Embedding)
		if sim >= threshold {
			results = append(results, SearchResult{Memory: m, Similarity: sim})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}

	s.touchAll(ctx, results)
	return results, nil
}

// GetRelevant is Search with the looser prompt-assembly threshold.
func (s *Store) GetRelevant(ctx context.Context, userID, contextText string, maxCount int) ([]SearchResult, error) {
	return s.Search(ctx, userID, contextText, SearchFilters{}, maxCount, RelevanceThreshold)
}

// TopByImportance returns up to limit memories ordered by importance desc,
// without embedding the query. Used by context assembly's candidate fetch.
func (s *Store) TopByImportance(ctx context.Context, userID string, limit int) ([]Memory, error) {
	docs, err := s.store.Query(ctx, Collection, document_store.QuerySpec{
		Filters: []document_store.Filter{
			{Field: "userId", Op: document_store.OpEqual, Value: userID},
		},
		OrderBy: &document_store.OrderBy{Field: "importance", Descending: true},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	return decodeAll(docs)
}

// UpdateImportance applies a manual additive boost, clamped to 1.0.
func (s *Store) UpdateImportance(ctx context.Context, memoryID, userID, pattern string) error {
	var boost float64
	switch pattern {
	case BoostFrequent:
		boost = 0.10
	case BoostRecent:
		boost = 0.05
	case BoostRelevant:
		boost = 0.15
	default:
		return fmt.Errorf("unknown boost pattern %q", pattern)
	}

	memory, err := s.getOwned(ctx, memoryID, userID)
	if err != nil {
		return err
	}

	memory.Importance += boost
	if memory.Importance > 1.0 {
		memory.Importance = 1.0
	}
	if err := s.store.Set(ctx, Collection, memoryID, map[string]any{
		"importance": memory.Importance,
	}, true); err != nil {
		return fmt.Errorf("updating importance: %w", err)
	}
	return nil
}

// Delete removes a memory if it belongs to the user. Returns false without
// error for missing IDs or wrong owners, both expected outcomes.
func (s *Store) Delete(ctx context.Context, memoryID, userID string) (bool, error) {
	if _, err := s.getOwned(ctx, memoryID, userID); err != nil {
		if errors.Is(err, document_store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.store.Delete(ctx, Collection, memoryID); err != nil {
		return false, fmt.Errorf("deleting memory: %w", err)
	}
	return true, nil
}

// DeleteAllForUser removes every memory belonging to the user and returns
// how many were deleted.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	memories, err := s.loadAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, m := range memories {
		if err := s.store.Delete(ctx, Collection, m.ID); err != nil {
			return deleted, fmt.Errorf("deleting memory %s: %w", m.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// ExportAll returns every memory belonging to the user.
func (s *Store) ExportAll(ctx context.Context, userID string) ([]Memory, error) {
	return s.loadAll(ctx, userID)
}

// Stats summarizes the user's memories.
func (s *Store) Stats(ctx context.Context, userID string) (Stats, error) {
	memories, err := s.loadAll(ctx, userID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalMemories:  len(memories),
		CategoryCounts: make(map[string]int),
	}
	if len(memories) == 0 {
		return stats, nil
	}

	var importanceSum float64
	for _, m := range memories {
		stats.CategoryCounts[m.Category]++
		importanceSum += m.Importance
		if stats.OldestCreatedAt.IsZero() || m.CreatedAt.Before(stats.OldestCreatedAt) {
			stats.OldestCreatedAt = m.CreatedAt
		}
		if m.CreatedAt.After(stats.NewestCreatedAt) {
			stats.NewestCreatedAt = m.CreatedAt
		}
	}
	stats.AverageImportance = importanceSum / float64(len(memories))

	sort.SliceStable(memories, func(i, j int) bool {
		return memories[i].AccessCount > memories[j].AccessCount
	})
	top := 5
	if len(memories) < top {
		top = len(memories)
	}
	stats.MostAccessed = memories[:top]
	return stats, nil
}

// merge folds new content into an existing near-duplicate memory.
func (s *Store) merge(ctx context.Context, existing *Memory, content string, msg Message, params CreateParams) (*Memory, error) {
	if !strings.Contains(existing.Content, content) {
		existing.Content = existing.Content + "\n\n" + content
	}
	existing.Keywords = unionKeywords(existing.Keywords, extractKeywords(content))

	importance := params.Importance
	if importance == 0 {
		importance = 0.5
	}
	if importance > existing.Importance {
		existing.Importance = importance
	}
	confidence := params.Confidence
	if confidence == 0 {
		confidence = scoreConfidence(content, msg.Role)
	}
	existing.Confidence = (existing.Confidence + confidence) / 2
	existing.AccessCount++
	existing.LastAccessedAt = time.Now().UTC()
	if msg.MessageID != "" {
		existing.SourceMessageIDs = append(existing.SourceMessageIDs, msg.MessageID)
	}

	if err := s.store.Set(ctx, Collection, existing.ID, existing, false); err != nil {
		return nil, fmt.Errorf("merging memory: %w", err)
	}
	s.log.Debug("semantic memory merged",
		logger.StringField("memory_id", existing.ID),
		logger.StringField("user_id", msg.UserID))
	return existing, nil
}

// enforceMemoryLimits deletes the lowest-ranked memories so the upcoming
// insert keeps the user at or under the cap. Rank is ascending by
// (importance, lastAccessedAt).
func (s *Store) enforceMemoryLimits(ctx context.Context, memories []Memory, maxMemories int) error {
	if maxMemories <= 0 || len(memories) < maxMemories {
		return nil
	}

	ranked := make([]Memory, len(memories))
	copy(ranked, memories)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Importance != ranked[j].Importance {
			return ranked[i].Importance < ranked[j].Importance
		}
		return ranked[i].LastAccessedAt.Before(ranked[j].LastAccessedAt)
	})

	toEvict := len(memories) - maxMemories + 1
	for i := 0; i < toEvict; i++ {
		if err := s.store.Delete(ctx, Collection, ranked[i].ID); err != nil {
			return fmt.Errorf("evicting memory %s: %w", ranked[i].ID, err)
		}
		if s.metrics != nil {
			s.metrics.MemoriesEvictedCounter.Inc()
		}
		s.log.Debug("semantic memory evicted",
			logger.StringField("memory_id", ranked[i].ID),
			logger.Float64Field("importance", ranked[i].Importance))
	}
	return nil
}

// touchAll bumps access tracking for returned search results. Failures only
// affect ranking freshness, so they are logged and swallowed.
func (s *Store) touchAll(ctx context.Context, results []SearchResult) {
	now := time.Now().UTC()
	for i := range results {
		results[i].Memory.AccessCount++
		results[i].Memory.LastAccessedAt = now
		err := s.store.Set(ctx, Collection, results[i].Memory.ID, map[string]any{
			"accessCount":    results[i].Memory.AccessCount,
			"lastAccessedAt": now,
		}, true)
		if err != nil {
			s.log.Warn("failed to bump memory access tracking",
				logger.StringField("memory_id", results[i].Memory.ID),
				logger.ErrorField(err))
		}
	}
}

func (s *Store) getOwned(ctx context.Context, memoryID, userID string) (Memory, error) {
	doc, err := s.store.Get(ctx, Collection, memoryID)
	if err != nil {
		return Memory{}, err
	}
	var memory Memory
	if err := document_store.Decode(doc, &memory); err != nil {
		return Memory{}, err
	}
	if memory.UserID != userID {
		return Memory{}, document_store.ErrNotFound
	}
	return memory, nil
}

func (s *Store) loadAll(ctx context.Context, userID string) ([]Memory, error) {
	return s.loadFiltered(ctx, userID, SearchFilters{})
}

func (s *Store) loadFiltered(ctx context.Context, userID string, filters SearchFilters) ([]Memory, error) {
	dsFilters := []document_store.Filter{
		{Field: "userId", Op: document_store.OpEqual, Value: userID},
	}
	if filters.Category != "" {
		dsFilters = append(dsFilters, document_store.Filter{
			Field: "category", Op: document_store.OpEqual, Value: filters.Category,
		})
	}
	if filters.ConversationID != "" {
		dsFilters = append(dsFilters, document_store.Filter{
			Field: "conversationId", Op: document_store.OpEqual, Value: filters.ConversationID,
		})
	}
	if filters.MinImportance > 0 {
		dsFilters = append(dsFilters, document_store.Filter{
			Field: "importance", Op: document_store.OpGte, Value: filters.MinImportance,
		})
	}

	docs, err := s.store.Query(ctx, Collection, document_store.QuerySpec{Filters: dsFilters})
	if err != nil {
		return nil, fmt.Errorf("querying memories: %w", err)
	}
	return decodeAll(docs)
}

func decodeAll(docs []document_store.Document) ([]Memory, error) {
	memories := make([]Memory, 0, len(docs))
	for _, doc := range docs {
		var m Memory
		if err := document_store.Decode(doc, &m); err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, nil
}

func unionKeywords(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, w := range a {
		seen[w] = struct{}{}
	}
	for _, w := range b {
		seen[w] = struct{}{}
	}
	result := make([]string, 0, len(seen))
	for w := range seen {
		result = append(result, w)
	}
	sort.Strings(result)
	return result
}

// getUserLock returns a user-specific lock, creating it if necessary.
func (s *Store) getUserLock(userID string) *sync.Mutex {
	s.lockMux.Lock()
	defer s.lockMux.Unlock()

	if lock, exists := s.userLocks[userID]; exists {
		return lock
	}
	lock := &sync.Mutex{}
	s.userLocks[userID] = lock
	return lock
}
