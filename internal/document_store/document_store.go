// Package document_store provides keyed document persistence with filtered
// and ordered queries. Backends share the same semantics: single-document
// atomic upserts, no joins, no multi-document transactions.
package document_store //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("document store unavailable")

// ErrDecode is returned when a stored document does not match the expected shape.
var ErrDecode = errors.New("document decode failed")

// Op is a filter comparison operator.
type Op string

const (
	OpEqual Op = "=="
	OpGte   Op = ">="
	OpLte   Op = "<="
)

// Filter restricts a query to documents whose field compares against Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// OrderBy orders query results by a single field.
type OrderBy struct {
	Field      string
	Descending bool
}

// QuerySpec describes a filtered, optionally ordered and limited query.
type QuerySpec struct {
	Filters []Filter
	OrderBy *OrderBy
	Limit   int
}

// Document is a stored record: an ID plus its JSON-shaped fields.
type Document struct {
	ID     string
	Fields map[string]any
}

// Store is the keyed-document persistence interface consumed by the memory tiers.
type Store interface {
	// Get returns the document with the given ID, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Query returns documents matching the spec. An empty result is not an error.
	Query(ctx context.Context, collection string, spec QuerySpec) ([]Document, error)

	// Set upserts a document atomically. With merge, top-level fields of value
	// are folded into the existing document; otherwise the document is replaced.
	Set(ctx context.Context, collection, id string, value any, merge bool) error

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
}

// Encode converts a typed value into document fields via its JSON form.
func Encode(value any) (map[string]any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return fields, nil
}

// Decode converts document fields into a typed value, failing fast on shape
// mismatches instead of propagating partial data into business logic.
func Decode(doc Document, dest any) error {
	data, err := json.Marshal(doc.Fields)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, doc.ID, err)
	}
	return nil
}

// matchesFilters reports whether the fields satisfy every filter.
func matchesFilters(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		got, ok := fields[f.Field]
		if !ok {
			return false
		}
		cmp, ok := compareValues(got, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if cmp != 0 {
				return false
			}
		case OpGte:
			if cmp < 0 {
				return false
			}
		case OpLte:
			if cmp > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// sortDocuments orders docs in place by the given field.
func sortDocuments(docs []Document, orderBy *OrderBy) {
	if orderBy == nil {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		cmp, ok := compareValues(docs[i].Fields[orderBy.Field], docs[j].Fields[orderBy.Field])
		if !ok {
			return false
		}
		if orderBy.Descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

// compareValues compares two JSON-shaped values. Numeric values compare
// numerically, RFC3339 strings chronologically, other strings lexically.
func compareValues(a, b any) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}

	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		if at, err := time.Parse(time.RFC3339Nano, as); err == nil {
			if bt, err := time.Parse(time.RFC3339Nano, bs); err == nil {
				switch {
				case at.Before(bt):
					return -1, true
				case at.After(bt):
					return 1, true
				default:
					return 0, true
				}
			}
		}
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}

	ab, aok := a.(bool)
	bb, bok := b.(bool)
	if aok && bok {
		switch {
		case ab == bb:
			return 0, true
		case !ab:
			return -1, true
		default:
			return 1, true
		}
	}

	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// mergeFields folds src's top-level fields into dst, returning dst.
func mergeFields(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
