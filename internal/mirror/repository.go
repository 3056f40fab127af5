// Package mirror keeps a local sqlite copy of model documents written
// through the state store client. The mirror is a cache: reads fall
// back to it when the store is unreachable, and entries expire so stale
// local state does not outlive its usefulness.
package mirror

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/amse-project/amse/internal/state"
)

// Schema for the mirror database
const Schema = `
CREATE TABLE IF NOT EXISTS models (
	id TEXT PRIMARY KEY,
	doc BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_models_expires ON models(expires_at);
`

// Repository provides cache operations for mirrored model documents.
// Documents are stored as msgpack blobs with expiration timestamps.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new mirror repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Store saves a document with expiration = now + ttl.
// Uses INSERT OR REPLACE to upsert.
func (r *Repository) Store(id string, doc map[string]interface{}, ttl time.Duration) error {
	blob, err := msgpack.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	expiresAt := time.Now().Add(ttl).Unix()

	_, err = r.db.Exec(
		"INSERT OR REPLACE INTO models (id, doc, expires_at) VALUES (?, ?, ?)",
		id, blob, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store mirrored document: %w", err)
	}

	return nil
}

// UpsertModel stores a document with the default TTL
func (r *Repository) UpsertModel(id string, doc map[string]interface{}) error {
	return r.Store(id, doc, TTLModelDocument)
}

// ApplyUpdate merges top-level fields into an already-mirrored document
// and refreshes its TTL. Unknown ids are a no-op: the mirror only
// shadows documents it has seen in full.
func (r *Repository) ApplyUpdate(id string, fields map[string]interface{}) error {
	doc, err := r.Get(id)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	for k, v := range fields {
		doc[k] = v
	}

	return r.Store(id, doc, TTLModelDocument)
}

// GetIfFresh returns a document only if it has not expired.
// Returns nil, nil when the id is unknown or the entry is stale.
func (r *Repository) GetIfFresh(id string) (map[string]interface{}, error) {
	return r.get(id, true)
}

// Get returns a document regardless of expiration. Stale data is
// better than no data when the store is unreachable.
func (r *Repository) Get(id string) (map[string]interface{}, error) {
	return r.get(id, false)
}

func (r *Repository) get(id string, freshOnly bool) (map[string]interface{}, error) {
	query := "SELECT doc FROM models WHERE id = ?"
	args := []interface{}{id}

	if freshOnly {
		query += " AND expires_at > ?"
		args = append(args, time.Now().Unix())
	}

	var blob []byte
	err := r.db.QueryRow(query, args...).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mirrored document: %w", err)
	}

	var doc map[string]interface{}
	if err := msgpack.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode mirrored document: %w", err)
	}

	return doc, nil
}

// Delete removes one mirrored document
func (r *Repository) Delete(id string) error {
	if _, err := r.db.Exec("DELETE FROM models WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete mirrored document: %w", err)
	}
	return nil
}

// DeleteExpired removes all entries past their expiration.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec("DELETE FROM models WHERE expires_at < ?", time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired documents: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// Count returns the number of mirrored documents
func (r *Repository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM models").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count mirrored documents: %w", err)
	}
	return count, nil
}

var _ state.Mirror = (*Repository)(nil)
