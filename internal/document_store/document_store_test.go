package document_store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fact struct {
	UserID     string    `json:"userId"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	CreatedAt  time.Time `json:"createdAt"`
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := fact{
		UserID:     "user-1",
		Content:    "prefers dark mode",
		Importance: 0.8,
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	fields, err := Encode(original)
	require.NoError(t, err)
	assert.Equal(t, "user-1", fields["userId"])

	var decoded fact
	require.NoError(t, Decode(Document{ID: "f1", Fields: fields}, &decoded))
	assert.Equal(t, original, decoded)
}

func TestDecodeShapeMismatchFailsFast(t *testing.T) {
	doc := Document{ID: "bad", Fields: map[string]any{"importance": "not-a-number"}}
	var decoded fact
	err := Decode(doc, &decoded)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
}

func storeUnderTest(t *testing.T, name string) Store {
	t.Helper()
	switch name {
	case "memory":
		return NewMemoryStore()
	case "file":
		return NewFileStore(NewLocalBlobProvider(t.TempDir()))
	default:
		t.Fatalf("unknown store %q", name)
		return nil
	}
}

func TestStoreBackends(t *testing.T) {
	for _, backend := range []string{"memory", "file"} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			s := storeUnderTest(t, backend)

			t.Run("get missing returns ErrNotFound", func(t *testing.T) {
				_, err := s.Get(ctx, "facts", "nope")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("set then get", func(t *testing.T) {
				f := fact{UserID: "u1", Content: "likes go", Importance: 0.5,
					CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
				require.NoError(t, s.Set(ctx, "facts", "f1", f, false))

				doc, err := s.Get(ctx, "facts", "f1")
				require.NoError(t, err)

				var got fact
				require.NoError(t, Decode(doc, &got))
				assert.Equal(t, f, got)
			})

			t.Run("merge folds top-level fields", func(t *testing.T) {
				require.NoError(t, s.Set(ctx, "facts", "f1",
					map[string]any{"importance": 0.9}, true))

				doc, err := s.Get(ctx, "facts", "f1")
				require.NoError(t, err)
				assert.Equal(t, 0.9, doc.Fields["importance"])
				assert.Equal(t, "likes go", doc.Fields["content"]) // untouched
			})

			t.Run("query filters and orders", func(t *testing.T) {
				base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
				for i, f := range []fact{
					{UserID: "u2", Content: "a", Importance: 0.2, CreatedAt: base},
					{UserID: "u2", Content: "b", Importance: 0.9, CreatedAt: base.Add(time.Hour)},
					{UserID: "u3", Content: "c", Importance: 0.5, CreatedAt: base.Add(2 * time.Hour)},
				} {
					require.NoError(t, s.Set(ctx, "facts", []string{"q1", "q2", "q3"}[i], f, false))
				}

				docs, err := s.Query(ctx, "facts", QuerySpec{
					Filters: []Filter{
						{Field: "userId", Op: OpEqual, Value: "u2"},
						{Field: "importance", Op: OpGte, Value: 0.5},
					},
				})
				require.NoError(t, err)
				require.Len(t, docs, 1)
				assert.Equal(t, "q2", docs[0].ID)

				docs, err = s.Query(ctx, "facts", QuerySpec{
					Filters: []Filter{{Field: "userId", Op: OpEqual, Value: "u2"}},
					OrderBy: &OrderBy{Field: "createdAt", Descending: true},
				})
				require.NoError(t, err)
				require.Len(t, docs, 2)
				assert.Equal(t, "q2", docs[0].ID)

				docs, err = s.Query(ctx, "facts", QuerySpec{
					OrderBy: &OrderBy{Field: "importance"},
					Limit:   2,
				})
				require.NoError(t, err)
				require.Len(t, docs, 2)
				assert.Equal(t, "q1", docs[0].ID)
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				require.NoError(t, s.Delete(ctx, "facts", "f1"))
				require.NoError(t, s.Delete(ctx, "facts", "f1"))
				_, err := s.Get(ctx, "facts", "f1")
				assert.ErrorIs(t, err, ErrNotFound)
			})
		})
	}
}

func TestCompareValuesTimestamps(t *testing.T) {
	// RFC3339 strings with differing fractional precision must order
	// chronologically, not lexically.
	a := "2026-01-02T15:04:05.9Z"  // 0.9s, lexically larger
	b := "2026-01-02T15:04:05.10Z" // 0.1s, lexically smaller

	cmp, ok := compareValues(a, b)
	require.True(t, ok)
	assert.Equal(t, 1, cmp)

	cmp, ok = compareValues("2026-01-01T00:00:00Z", "2026-01-02T00:00:00Z")
	require.True(t, ok)
	assert.Equal(t, -1, cmp)
}

func TestMemoryStoreIsolatesReturnedDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "c", "id", map[string]any{"k": "v"}, false))

	doc, err := s.Get(ctx, "c", "id")
	require.NoError(t, err)
	doc.Fields["k"] = "mutated"

	doc2, err := s.Get(ctx, "c", "id")
	require.NoError(t, err)
	assert.Equal(t, "v", doc2.Fields["k"])
}

func TestBuildQuerySQLLimitPlacement(t *testing.T) {
	// Ordered queries must not push LIMIT into SQL: the textual ORDER BY
	// over fields->> mis-sorts timestamps with varying fractional precision,
	// so the page is chosen in Go after the re-sort.
	sql, args := buildQuerySQL("episodic_memories", QuerySpec{
		Filters: []Filter{{Field: "userId", Op: OpEqual, Value: "user-1"}},
		OrderBy: &OrderBy{Field: "createdAt", Descending: true},
		Limit:   3,
	})
	assert.Contains(t, sql, "ORDER BY")
	assert.NotContains(t, sql, "LIMIT")
	assert.Len(t, args, 4) // collection, field, value, order field

	sql, args = buildQuerySQL("episodic_memories", QuerySpec{Limit: 3})
	assert.Contains(t, sql, "LIMIT")
	assert.Len(t, args, 2) // collection, limit
}
