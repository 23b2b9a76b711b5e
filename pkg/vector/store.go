package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Index is the optional semantic backend. FileStore mirrors documents
// into it and prefers it for queries.
type Index interface {
	Add(ctx context.Context, collection, id, document string, metadata map[string]string) error
	Query(ctx context.Context, collection, text string, n int) ([]Result, error)
	Remove(ctx context.Context, collection string, ids ...string) error
	Close() error
}

// FileStore implements Store with per-collection JSON persistence.
// Mutations are serialized per store; readers see their own prior
// writes.
type FileStore struct {
	mu      sync.RWMutex
	dir     string
	index   Index
	records map[string]map[string]Record
	now     func() time.Time
}

// NewFileStore opens or creates a store rooted at dir. index may be
// nil, in which case queries use the token-overlap fallback.
func NewFileStore(dir string, index Index) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	s := &FileStore{
		dir:     dir,
		index:   index,
		records: make(map[string]map[string]Record),
		now:     time.Now,
	}
	if err := s.loadAll(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) loadAll() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read data directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := s.recordsPath(name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			slog.Warn("skipping unreadable collection", "collection", name, "error", err)
			continue
		}

		var recs []Record
		if err := json.Unmarshal(data, &recs); err != nil {
			slog.Warn("skipping corrupt collection file, starting empty",
				"collection", name, "error", err)
			continue
		}

		coll := make(map[string]Record, len(recs))
		for _, r := range recs {
			coll[r.ID] = r
		}
		s.records[name] = coll
	}
	return nil
}

func (s *FileStore) recordsPath(collection string) string {
	return filepath.Join(s.dir, collection, "records.json")
}

// persist writes a collection atomically (temp file then rename).
// Caller holds the write lock.
func (s *FileStore) persist(collection string) error {
	dir := filepath.Join(s.dir, collection)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create collection directory: %w", err)
	}

	recs := make([]Record, 0, len(s.records[collection]))
	for _, r := range s.records[collection] {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode collection %q: %w", collection, err)
	}

	tmp := s.recordsPath(collection) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write collection %q: %w", collection, err)
	}
	return os.Rename(tmp, s.recordsPath(collection))
}

func (s *FileStore) Upsert(ctx context.Context, collection, id, document string, metadata map[string]any) error {
	if id == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if metadata == nil {
		metadata = make(map[string]any)
	}
	if _, ok := metadata["ts"]; !ok {
		metadata["ts"] = s.now().Unix()
	}

	if s.records[collection] == nil {
		s.records[collection] = make(map[string]Record)
	}
	s.records[collection][id] = Record{ID: id, Document: document, Metadata: metadata}

	if err := s.persist(collection); err != nil {
		return err
	}

	if s.index != nil {
		strMeta := make(map[string]string, len(metadata))
		for k, v := range metadata {
			strMeta[k] = fmt.Sprint(v)
		}
		if err := s.index.Add(ctx, collection, id, document, strMeta); err != nil {
			slog.Warn("semantic index update failed", "collection", collection, "error", err)
		}
	}
	return nil
}

func (s *FileStore) Query(ctx context.Context, collection, text string, n int) ([]Result, error) {
	if n < 1 {
		return nil, nil
	}

	if s.index != nil {
		results, err := s.index.Query(ctx, collection, text, n)
		if err == nil {
			return results, nil
		}
		slog.Warn("semantic query failed, using text fallback",
			"collection", collection, "error", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.textQuery(collection, text, n), nil
}

// textQuery scores by case-insensitive token overlap against the
// query and converts overlap to a pseudo-distance 1-overlap.
func (s *FileStore) textQuery(collection, text string, n int) []Result {
	queryTokens := tokenize(text)
	if len(queryTokens) == 0 {
		return nil
	}

	var results []Result
	for _, r := range s.records[collection] {
		overlap := tokenOverlap(queryTokens, recordTokens(r))
		if overlap == 0 {
			continue
		}
		results = append(results, Result{Record: r, Distance: 1 - overlap})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > n {
		results = results[:n]
	}
	return results
}

// recordTokens merges document tokens with metadata string values, so
// fallback matching sees both the rendered document and the source
// text it came from.
func recordTokens(r Record) map[string]bool {
	tokens := tokenize(r.Document)
	for _, v := range r.Metadata {
		if s, ok := v.(string); ok {
			for token := range tokenize(s) {
				tokens[token] = true
			}
		}
	}
	return tokens
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		field = strings.Trim(field, ".,!?;:\"'()[]{}")
		if len(field) > 1 {
			tokens[field] = true
		}
	}
	return tokens
}

func tokenOverlap(query, doc map[string]bool) float32 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for token := range query {
		if doc[token] {
			matched++
		}
	}
	return float32(matched) / float32(len(query))
}

func (s *FileStore) Delete(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.records[collection], id)
	}
	if err := s.persist(collection); err != nil {
		return err
	}

	if s.index != nil {
		if err := s.index.Remove(ctx, collection, ids...); err != nil {
			slog.Warn("semantic index delete failed", "collection", collection, "error", err)
		}
	}
	return nil
}

func (s *FileStore) DeleteByFilter(ctx context.Context, collection string, pred func(Record) bool) (int, error) {
	s.mu.Lock()
	var matched []string
	for id, r := range s.records[collection] {
		if pred(r) {
			matched = append(matched, id)
		}
	}
	s.mu.Unlock()

	if len(matched) == 0 {
		return 0, nil
	}
	return len(matched), s.Delete(ctx, collection, matched...)
}

func (s *FileStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[collection]), nil
}

func (s *FileStore) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CleanupOld deletes records older than maxAgeDays. With
// keepSuccessful, records whose metadata marks success survive
// regardless of age.
func (s *FileStore) CleanupOld(ctx context.Context, collection string, maxAgeDays int, keepSuccessful bool) (int, error) {
	cutoff := s.now().AddDate(0, 0, -maxAgeDays).Unix()
	return s.DeleteByFilter(ctx, collection, func(r Record) bool {
		if recordTS(r) >= cutoff {
			return false
		}
		if keepSuccessful && recordSuccess(r) {
			return false
		}
		return true
	})
}

// LimitSize prunes the oldest records (by ts) until the collection
// holds at most maxCount.
func (s *FileStore) LimitSize(ctx context.Context, collection string, maxCount int) (int, error) {
	s.mu.Lock()
	coll := s.records[collection]
	if len(coll) <= maxCount {
		s.mu.Unlock()
		return 0, nil
	}

	recs := make([]Record, 0, len(coll))
	for _, r := range coll {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool {
		ti, tj := recordTS(recs[i]), recordTS(recs[j])
		if ti != tj {
			return ti < tj
		}
		return recs[i].ID < recs[j].ID
	})

	excess := len(recs) - maxCount
	ids := make([]string, 0, excess)
	for _, r := range recs[:excess] {
		ids = append(ids, r.ID)
	}
	s.mu.Unlock()

	return excess, s.Delete(ctx, collection, ids...)
}

func (s *FileStore) Close() error {
	if s.index != nil {
		return s.index.Close()
	}
	return nil
}

func recordTS(r Record) int64 {
	switch v := r.Metadata["ts"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func recordSuccess(r Record) bool {
	switch v := r.Metadata["success"].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

var _ Store = (*FileStore)(nil)
