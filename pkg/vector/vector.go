// Package vector persists the typed memory collections (rules, facts,
// experiences, lessons, strategies, errors) and answers similarity
// queries against them.
//
// Records are authoritative in per-collection JSON files under the
// data directory. When an embedding endpoint is configured, documents
// are additionally indexed in an embedded chromem database and queries
// are semantic; without one, queries fall back to in-process token
// overlap. The contract is identical either way.
package vector

import "context"

// Record is one stored document. Metadata values must be scalars
// (string, number, bool); "ts" is always present and holds the unix
// timestamp of the write.
type Record struct {
	ID       string         `json:"id"`
	Document string         `json:"document"`
	Metadata map[string]any `json:"metadata"`
}

// Result is a query hit. Distance is smaller for more similar
// documents and lies in [0, 1] for both backends.
type Result struct {
	Record
	Distance float32
}

// Store is the collection-segregated persistence contract.
type Store interface {
	Upsert(ctx context.Context, collection, id, document string, metadata map[string]any) error
	Query(ctx context.Context, collection, text string, n int) ([]Result, error)
	Delete(ctx context.Context, collection string, ids ...string) error
	DeleteByFilter(ctx context.Context, collection string, pred func(Record) bool) (int, error)
	Count(ctx context.Context, collection string) (int, error)
	Collections(ctx context.Context) ([]string, error)
	CleanupOld(ctx context.Context, collection string, maxAgeDays int, keepSuccessful bool) (int, error)
	LimitSize(ctx context.Context, collection string, maxCount int) (int, error)
	Close() error
}
