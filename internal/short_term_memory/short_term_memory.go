// Package short_term_memory keeps a bounded sliding window of recent
// conversation turns per (conversation, user) pair.
package short_term_memory //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ameliahart/conversational_memory/internal/document_store"
	"github.com/ameliahart/conversational_memory/pkg/logger"
)

// Collection is the document collection holding short-term windows.
const Collection = "short_term_windows"

const (
	// DefaultWindowSize is the number of turns retained per window.
	DefaultWindowSize = 12

	// DefaultContextEntries is how many recent turns context assembly reads.
	DefaultContextEntries = 10

	// DefaultPromptEntries is how many recent turns are formatted into prompts.
	DefaultPromptEntries = 6
)

// Entry is a single conversation turn. Importance is carried for downstream
// consumers; this tier itself evicts purely by recency.
type Entry struct {
	Role       string    `json:"role"` // "user" or "assistant"
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Importance float64   `json:"importance,omitempty"`
	MessageID  string    `json:"messageId,omitempty"`
}

// Window is the persisted sliding window for one (conversation, user) pair.
type Window struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	Entries        []Entry   `json:"entries"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Config holds the dependencies for the short-term store.
type Config struct {
	Store      document_store.Store
	Logger     logger.Logger
	WindowSize int // defaults to DefaultWindowSize
}

// Store appends and reads short-term windows. Appends to the same window are
// serialized with a per-window lock so concurrent turns don't lose entries.
type Store struct {
	store      document_store.Store
	log        logger.Logger
	windowSize int

	windowLocks map[string]*sync.Mutex
	lockMux     sync.Mutex
}

// New creates a short-term store. Panics if required dependencies are missing.
func New(cfg Config) *Store {
	if cfg.Store == nil {
		panic("short_term_memory: store is required")
	}
	if cfg.Logger == nil {
		panic("short_term_memory: logger is required")
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}

	return &Store{
		store:       cfg.Store,
		log:         cfg.Logger,
		windowSize:  cfg.WindowSize,
		windowLocks: make(map[string]*sync.Mutex),
	}
}

// Append adds a turn to the window, evicting the oldest entries beyond the
// window size.
func (s *Store) Append(ctx context.Context, conversationID, userID string, entry Entry) error {
	if entry.Role != "user" && entry.Role != "assistant" {
		return fmt.Errorf("invalid role %q", entry.Role)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	lock := s.getWindowLock(conversationID, userID)
	lock.Lock()
	defer lock.Unlock()

	window, err := s.load(ctx, conversationID, userID)
	if err != nil {
		return err
	}

	window.Entries = append(window.Entries, entry)
	if len(window.Entries) > s.windowSize {
		window.Entries = window.Entries[len(window.Entries)-s.windowSize:]
	}
	if window.CreatedAt.IsZero() {
		window.CreatedAt = entry.Timestamp
	}
	window.UpdatedAt = time.Now().UTC()

	if err := s.store.Set(ctx, Collection, windowKey(conversationID, userID), window, false); err != nil {
		return fmt.Errorf("saving window: %w", err)
	}
	return nil
}

// Get returns up to limit most recent turns, oldest first. A limit of 0 means
// the whole window.
func (s *Store) Get(ctx context.Context, conversationID, userID string, limit int) ([]Entry, error) {
	window, err := s.load(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	entries := window.Entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// FormatForPrompt renders the most recent turns as "role: content" lines for
// inclusion in an assembled context.
func (s *Store) FormatForPrompt(ctx context.Context, conversationID, userID string, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultPromptEntries
	}
	entries, err := s.Get(ctx, conversationID, userID, limit)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Role+": "+e.Content)
	}
	return strings.Join(lines, "\n"), nil
}

// Clear removes the window for one conversation.
func (s *Store) Clear(ctx context.Context, conversationID, userID string) error {
	lock := s.getWindowLock(conversationID, userID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.Delete(ctx, Collection, windowKey(conversationID, userID)); err != nil {
		return fmt.Errorf("clearing window: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every window belonging to the user and returns how
// many were deleted.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	windows, err := s.queryUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, w := range windows {
		if err := s.store.Delete(ctx, Collection, windowKey(w.ConversationID, w.UserID)); err != nil {
			return deleted, fmt.Errorf("deleting window %s: %w", w.ConversationID, err)
		}
		deleted++
	}
	if deleted > 0 {
		s.log.Info("deleted short-term windows",
			logger.StringField("user_id", userID),
			logger.IntField("count", deleted))
	}
	return deleted, nil
}

// ExportAll returns every window belonging to the user.
func (s *Store) ExportAll(ctx context.Context, userID string) ([]Window, error) {
	return s.queryUser(ctx, userID)
}

func (s *Store) load(ctx context.Context, conversationID, userID string) (Window, error) {
	doc, err := s.store.Get(ctx, Collection, windowKey(conversationID, userID))
	if errors.Is(err, document_store.ErrNotFound) {
		return Window{ConversationID: conversationID, UserID: userID}, nil
	}
	if err != nil {
		return Window{}, fmt.Errorf("loading window: %w", err)
	}

	var window Window
	if err := document_store.Decode(doc, &window); err != nil {
		return Window{}, err
	}
	return window, nil
}

func (s *Store) queryUser(ctx context.Context, userID string) ([]Window, error) {
	docs, err := s.store.Query(ctx, Collection, document_store.QuerySpec{
		Filters: []document_store.Filter{
			{Field: "userId", Op: document_store.OpEqual, Value: userID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying windows: %w", err)
	}

	windows := make([]Window, 0, len(docs))
	for _, doc := range docs {
		var w Window
		if err := document_store.Decode(doc, &w); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// getWindowLock returns the lock for one window, creating it if necessary.
func (s *Store) getWindowLock(conversationID, userID string) *sync.Mutex {
	key := windowKey(conversationID, userID)

	s.lockMux.Lock()
	defer s.lockMux.Unlock()

	if lock, exists := s.windowLocks[key]; exists {
		return lock
	}
	lock := &sync.Mutex{}
	s.windowLocks[key] = lock
	return lock
}

func windowKey(conversationID, userID string) string {
	return conversationID + "__" + userID
}
