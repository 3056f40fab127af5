package state

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// MemoryBackend is an in-process Backend for tests and offline runs.
// It assigns ids the way the store would and returns the same NotFound
// error class as the real backend.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string]map[string]interface{}
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		docs: make(map[string]map[string]interface{}),
	}
}

// AddModel stores a new document under a generated id
func (m *MemoryBackend) AddModel(_ context.Context, doc map[string]interface{}) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.docs[id] = cloneDoc(doc)

	return id, nil
}

// UpdateModel overwrites top-level fields of an existing document
func (m *MemoryBackend) UpdateModel(_ context.Context, id string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return status.Errorf(codes.NotFound, "no document to update: %s", id)
	}

	for k, v := range cloneDoc(fields) {
		doc[k] = v
	}

	return nil
}

// GetModel returns a copy of one document's fields
func (m *MemoryBackend) GetModel(_ context.Context, id string) (map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "document not found: %s", id)
	}

	return cloneDoc(doc), nil
}

// ListModels returns copies of all documents, ordered by id
func (m *MemoryBackend) ListModels(_ context.Context) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, Document{ID: id, Data: cloneDoc(m.docs[id])})
	}

	return docs, nil
}

// Len returns the number of stored documents
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// cloneDoc copies a document so callers cannot mutate stored state.
// Values other than nested string-keyed maps are copied by value, which
// covers the types this layer writes (maps, time.Time, scalars).
func cloneDoc(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = cloneDoc(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// compile-time interface checks
var (
	_ Backend = (*MemoryBackend)(nil)
	_ Backend = (*FirebaseBackend)(nil)
)
