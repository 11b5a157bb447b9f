package rag

import (
	"context"
	"sync"

	"github.com/hupe1980/agentlab/core"
)

// InMemoryIndex is a process-local Retriever. Safe for concurrent use.
type InMemoryIndex struct {
	mu   sync.RWMutex
	docs map[string]map[string]core.Document // namespace -> id -> doc
}

// NewInMemoryIndex creates an empty index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{docs: make(map[string]map[string]core.Document)}
}

// Add stores docs under namespace, replacing documents with the same ID.
func (x *InMemoryIndex) Add(_ context.Context, namespace string, docs ...core.Document) error {
	for _, d := range docs {
		if d.ID == "" {
			return core.NewValidationError("id", d.ID, "document id must not be empty")
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	ns, ok := x.docs[namespace]
	if !ok {
		ns = make(map[string]core.Document)
		x.docs[namespace] = ns
	}
	for _, d := range docs {
		ns[d.ID] = withNamespace(d, namespace)
	}
	return nil
}

// Delete removes a document. Unknown IDs are ignored.
func (x *InMemoryIndex) Delete(_ context.Context, namespace, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.docs[namespace], id)
	return nil
}

// Retrieve implements Retriever.
func (x *InMemoryIndex) Retrieve(ctx context.Context, query string, topK int, namespace string) ([]core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	r := newRanker(query)
	for _, d := range x.docs[namespace] {
		r.offer(withNamespace(d, namespace))
	}
	return r.top(topK), nil
}
