// Package episodic_memory stores durable summaries of past conversations.
package episodic_memory //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"fmt"
	"time"

	"github.com/ameliahart/conversational_memory/internal/document_store"
	"github.com/ameliahart/conversational_memory/pkg/logger"
	"github.com/ameliahart/conversational_memory/pkg/prefixed_uuid"
)

// Collection is the document collection holding episodic summaries.
const Collection = "episodic_memories"

// IDPrefix prefixes every episode ID.
const IDPrefix = "epi"

// DefaultRecentLimit caps GetRecent when the caller doesn't.
const DefaultRecentLimit = 3

// Episode is a summary of one past conversation.
type Episode struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	ConversationID string    `json:"conversationId"`
	Summary        string    `json:"summary"`
	KeyTopics      []string  `json:"keyTopics,omitempty"`
	TurnCount      int       `json:"turnCount,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Config holds the dependencies for the episodic store.
type Config struct {
	Store  document_store.Store
	Logger logger.Logger
}

// Store saves and reads episodic summaries. Summarization itself happens
// upstream; this store only persists the results.
type Store struct {
	store document_store.Store
	log   logger.Logger
}

// New creates an episodic store. Panics if required dependencies are missing.
func New(cfg Config) *Store {
	if cfg.Store == nil {
		panic("episodic_memory: store is required")
	}
	if cfg.Logger == nil {
		panic("episodic_memory: logger is required")
	}
	return &Store{store: cfg.Store, log: cfg.Logger}
}

// Save persists an episode, evicting the oldest episodes beyond maxEpisodes.
func (s *Store) Save(ctx context.Context, episode Episode, maxEpisodes int) (*Episode, error) {
	if episode.Summary == "" {
		return nil, fmt.Errorf("episode summary is required")
	}
	if episode.ID == "" {
		episode.ID = prefixed_uuid.New(IDPrefix).String()
	}
	if episode.CreatedAt.IsZero() {
		episode.CreatedAt = time.Now().UTC()
	}
	episode.UpdatedAt = time.Now().UTC()

	if maxEpisodes > 0 {
		existing, err := s.loadAllAscending(ctx, episode.UserID)
		if err != nil {
			return nil, err
		}
		if len(existing) >= maxEpisodes {
			toEvict := len(existing) - maxEpisodes + 1
			for i := 0; i < toEvict; i++ {
				if err := s.store.Delete(ctx, Collection, existing[i].ID); err != nil {
					return nil, fmt.Errorf("evicting episode %s: %w", existing[i].ID, err)
				}
			}
		}
	}

	if err := s.store.Set(ctx, Collection, episode.ID, episode, false); err != nil {
		return nil, fmt.Errorf("saving episode: %w", err)
	}
	s.log.Debug("episode saved",
		logger.StringField("episode_id", episode.ID),
		logger.StringField("user_id", episode.UserID))
	return &episode, nil
}

// GetRecent returns up to limit episodes ordered by creation time descending.
func (s *Store) GetRecent(ctx context.Context, userID string, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	docs, err := s.store.Query(ctx, Collection, document_store.QuerySpec{
		Filters: []document_store.Filter{
			{Field: "userId", Op: document_store.OpEqual, Value: userID},
		},
		OrderBy: &document_store.OrderBy{Field: "createdAt", Descending: true},
		Limit:   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("querying episodes: %w", err)
	}
	return decodeAll(docs)
}

// DeleteAllForUser removes every episode belonging to the user and returns
// how many were deleted.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	episodes, err := s.loadAllAscending(ctx, userID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, e := range episodes {
		if err := s.store.Delete(ctx, Collection, e.ID); err != nil {
			return deleted, fmt.Errorf("deleting episode %s: %w", e.ID, err)
		}
		deleted++
	}
	return deleted, nil
}

// ExportAll returns every episode belonging to the user, newest first.
func (s *Store) ExportAll(ctx context.Context, userID string) ([]Episode, error) {
	episodes, err := s.loadAllAscending(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(episodes)-1; i < j; i, j = i+1, j-1 {
		episodes[i], episodes[j] = episodes[j], episodes[i]
	}
	return episodes, nil
}

func (s *Store) loadAllAscending(ctx context.Context, userID string) ([]Episode, error) {
	docs, err := s.store.Query(ctx, Collection, document_store.QuerySpec{
		Filters: []document_store.Filter{
			{Field: "userId", Op: document_store.OpEqual, Value: userID},
		},
		OrderBy: &document_store.OrderBy{Field: "createdAt"},
	})
	if err != nil {
		return nil, fmt.Errorf("querying episodes: %w", err)
	}
	return decodeAll(docs)
}

func decodeAll(docs []document_store.Document) ([]Episode, error) {
	episodes := make([]Episode, 0, len(docs))
	for _, doc := range docs {
		var e Episode
		if err := document_store.Decode(doc, &e); err != nil {
			return nil, err
		}
		episodes = append(episodes, e)
	}
	return episodes, nil
}
