// Package semantic_memory stores long-lived user facts with embeddings for
// similarity search.
package semantic_memory //nolint:revive // var-naming: using underscores for domain clarity

import (
	"time"
)

// Collection is the document collection holding semantic memories.
const Collection = "semantic_memories"

// IDPrefix prefixes every semantic memory ID.
const IDPrefix = "mem"

// Memory categories.
const (
	CategoryPreference = "preference"
	CategoryFact       = "fact"
	CategorySkill      = "skill"
	CategoryGoal       = "goal"
	CategoryProblem    = "problem"
	CategoryCreative   = "creative"
	CategoryTechnical  = "technical"
	CategoryPersonal   = "personal"
	CategoryGeneral    = "general"
)

// Privacy levels.
const (
	PrivacyFull    = "full"
	PrivacyLimited = "limited"
)

// Memory is one long-lived fact about a user.
type Memory struct {
	ID               string    `json:"id"`
	UserID           string    `json:"userId"`
	ConversationID   string    `json:"conversationId,omitempty"`
	Content          string    `json:"content"`
	Category         string    `json:"category"`
	Keywords         []string  `json:"keywords,omitempty"`
	Embedding        []float32 `json:"embedding,omitempty"`
	Importance       float64   `json:"importance"`
	Confidence       float64   `json:"confidence"`
	AccessCount      int       `json:"accessCount"`
	CreatedAt        time.Time `json:"createdAt"`
	LastAccessedAt   time.Time `json:"lastAccessedAt"`
	RelatedMemoryIDs []string  `json:"relatedMemoryIds,omitempty"`
	SourceMessageIDs []string  `json:"sourceMessageIds,omitempty"`
	PrivacyLevel     string    `json:"privacyLevel"`
}

// Message is a conversation turn offered for memory extraction.
type Message struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	MessageID      string `json:"messageId,omitempty"`
}

// CreateParams overrides derived attributes when creating a memory.
// Zero values mean "derive automatically".
type CreateParams struct {
	Category   string
	Importance float64
	Confidence float64
}

// SearchFilters narrows a similarity search.
type SearchFilters struct {
	Category       string
	ConversationID string
	MinImportance  float64
}

// SearchResult pairs a memory with its similarity to the query.
type SearchResult struct {
	Memory     Memory  `json:"memory"`
	Similarity float64 `json:"similarity"`
}

// Stats summarizes a user's semantic memories.
type Stats struct {
	TotalMemories     int            `json:"totalMemories"`
	CategoryCounts    map[string]int `json:"categoryCounts"`
	AverageImportance float64        `json:"averageImportance"`
	MostAccessed      []Memory       `json:"mostAccessed,omitempty"` // top 5 by access count
	OldestCreatedAt   time.Time      `json:"oldestCreatedAt,omitempty"`
	NewestCreatedAt   time.Time      `json:"newestCreatedAt,omitempty"`
}
