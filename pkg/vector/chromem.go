package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemIndex backs semantic queries with an embedded chromem
// database. Embeddings are computed through an OpenAI-compatible
// endpoint; the database persists itself under its directory.
type ChromemIndex struct {
	db    *chromem.DB
	embed chromem.EmbeddingFunc

	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// NewChromemIndex opens a persistent chromem database at dir and wires
// the embedding endpoint.
func NewChromemIndex(dir, baseURL, apiKey, model string) (*ChromemIndex, error) {
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem database: %w", err)
	}

	return &ChromemIndex{
		db:          db,
		embed:       chromem.NewEmbeddingFuncOpenAICompat(baseURL, apiKey, model, nil),
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func (x *ChromemIndex) collection(name string) (*chromem.Collection, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if col, ok := x.collections[name]; ok {
		return col, nil
	}
	col, err := x.db.GetOrCreateCollection(name, nil, x.embed)
	if err != nil {
		return nil, fmt.Errorf("get collection %q: %w", name, err)
	}
	x.collections[name] = col
	return col, nil
}

func (x *ChromemIndex) Add(ctx context.Context, collection, id, document string, metadata map[string]string) error {
	col, err := x.collection(collection)
	if err != nil {
		return err
	}

	doc := chromem.Document{ID: id, Content: document, Metadata: metadata}
	if err := col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return fmt.Errorf("index document: %w", err)
	}
	return nil
}

func (x *ChromemIndex) Query(ctx context.Context, collection, text string, n int) ([]Result, error) {
	col, err := x.collection(collection)
	if err != nil {
		return nil, err
	}

	// chromem rejects queries asking for more results than stored.
	if count := col.Count(); n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	hits, err := col.Query(ctx, text, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic query: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		metadata := make(map[string]any, len(h.Metadata))
		for k, v := range h.Metadata {
			metadata[k] = v
		}
		results = append(results, Result{
			Record:   Record{ID: h.ID, Document: h.Content, Metadata: metadata},
			Distance: 1 - h.Similarity,
		})
	}
	return results, nil
}

func (x *ChromemIndex) Remove(ctx context.Context, collection string, ids ...string) error {
	col, err := x.collection(collection)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("remove from index: %w", err)
	}
	return nil
}

func (x *ChromemIndex) Close() error {
	return nil
}

var _ Index = (*ChromemIndex)(nil)
