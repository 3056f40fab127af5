// Package state owns the connection to the remote document store and is
// the only path by which the rest of the system touches persisted model
// records.
//
// Error handling is two-tiered: setup problems surface as *SetupError
// (the process can start without a reachable store), persistence
// problems as *PersistenceError (callers must always observe them).
package state

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Backend abstracts the document store. FirebaseBackend is the
// production implementation; MemoryBackend serves tests and offline
// runs. Implementations must be safe for concurrent use.
type Backend interface {
	// AddModel persists a new document and returns its store-assigned id.
	AddModel(ctx context.Context, doc map[string]interface{}) (string, error)
	// UpdateModel overwrites the given top-level fields of an existing
	// document. It fails with a not-found error if the id is unknown.
	UpdateModel(ctx context.Context, id string, fields map[string]interface{}) error
	// GetModel returns the raw fields of one document.
	GetModel(ctx context.Context, id string) (map[string]interface{}, error)
	// ListModels returns every document in the models collection.
	ListModels(ctx context.Context) ([]Document, error)
}

// Mirror receives best-effort local copies of model documents. Mirror
// failures are logged and never fail a store operation.
type Mirror interface {
	UpsertModel(id string, doc map[string]interface{}) error
	ApplyUpdate(id string, fields map[string]interface{}) error
}

// Client exposes model record operations over a Backend.
// A Ready client is shared by all goroutines in the process; the
// underlying store client is assumed thread-safe, and no record-level
// locking happens here.
type Client struct {
	backend Backend
	mirror  Mirror
	now     func() time.Time
	log     zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithMirror attaches a local document mirror
func WithMirror(m Mirror) Option {
	return func(c *Client) { c.mirror = m }
}

// WithClock overrides the timestamp source (used by tests)
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a state store client over the given backend
func New(backend Backend, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		backend: backend,
		now:     time.Now,
		log:     log.With().Str("component", "state_store").Logger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateModel persists a new trading model record with the given
// definition and returns the store-assigned id. created_at and
// updated_at are both set to the current time and are equal at
// creation. The definition content is not validated at this layer.
func (c *Client) CreateModel(ctx context.Context, definition map[string]interface{}) (string, error) {
	now := c.now().UTC()
	doc := map[string]interface{}{
		fieldDefinition: definition,
		fieldCreatedAt:  now,
		fieldUpdatedAt:  now,
	}

	id, err := c.backend.AddModel(ctx, doc)
	if err != nil {
		c.log.Error().Err(err).Str("op", "create_model").Msg("Failed to save model")
		return "", &PersistenceError{Op: "create_model", Err: err}
	}

	c.log.Info().Str("model_id", id).Msg("Model saved")
	c.mirrorUpsert(id, doc)

	return id, nil
}

// UpdatePerformance overwrites the record's performance field wholesale
// (never merged key-by-key) and stamps updated_at and last_evaluated.
// An unknown id fails with a not-found persistence error and writes
// nothing.
func (c *Client) UpdatePerformance(ctx context.Context, id string, performance map[string]interface{}) error {
	now := c.now().UTC()
	fields := map[string]interface{}{
		fieldPerformance:   performance,
		fieldUpdatedAt:     now,
		fieldLastEvaluated: now,
	}

	if err := c.backend.UpdateModel(ctx, id, fields); err != nil {
		c.log.Error().Err(err).Str("model_id", id).Str("op", "update_performance").Msg("Failed to update model performance")
		return &PersistenceError{Op: "update_performance", ModelID: id, Err: err}
	}

	c.log.Info().Str("model_id", id).Msg("Model performance updated")
	c.mirrorApply(id, fields)

	return nil
}

// GetModel fetches one model record by id
func (c *Client) GetModel(ctx context.Context, id string) (*ModelRecord, error) {
	doc, err := c.backend.GetModel(ctx, id)
	if err != nil {
		c.log.Error().Err(err).Str("model_id", id).Str("op", "get_model").Msg("Failed to fetch model")
		return nil, &PersistenceError{Op: "get_model", ModelID: id, Err: err}
	}

	c.mirrorUpsert(id, doc)

	return recordFromDoc(id, doc), nil
}

// ListModels fetches every model record in the collection
func (c *Client) ListModels(ctx context.Context) ([]*ModelRecord, error) {
	docs, err := c.backend.ListModels(ctx)
	if err != nil {
		c.log.Error().Err(err).Str("op", "list_models").Msg("Failed to list models")
		return nil, &PersistenceError{Op: "list_models", Err: err}
	}

	records := make([]*ModelRecord, 0, len(docs))
	for _, doc := range docs {
		c.mirrorUpsert(doc.ID, doc.Data)
		records = append(records, recordFromDoc(doc.ID, doc.Data))
	}

	return records, nil
}

func (c *Client) mirrorUpsert(id string, doc map[string]interface{}) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.UpsertModel(id, doc); err != nil {
		c.log.Warn().Err(err).Str("model_id", id).Msg("Failed to mirror model document")
	}
}

func (c *Client) mirrorApply(id string, fields map[string]interface{}) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.ApplyUpdate(id, fields); err != nil {
		c.log.Warn().Err(err).Str("model_id", id).Msg("Failed to apply update to model mirror")
	}
}
