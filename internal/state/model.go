package state

import "time"

// Document field names in the models collection.
const (
	fieldDefinition    = "definition"
	fieldPerformance   = "performance"
	fieldCreatedAt     = "created_at"
	fieldUpdatedAt     = "updated_at"
	fieldLastEvaluated = "last_evaluated"
)

// ModelRecord is one persisted trading model: its definition payload,
// its latest measured performance, and lifecycle timestamps. Definition
// and Performance are opaque to this layer.
type ModelRecord struct {
	ID            string
	Definition    map[string]interface{}
	Performance   map[string]interface{} // nil until the first performance update
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastEvaluated *time.Time // nil until the first performance update
}

// Document pairs a store-assigned id with its raw document fields.
type Document struct {
	ID   string
	Data map[string]interface{}
}

// recordFromDoc maps raw document fields onto a ModelRecord. Fields with
// unexpected types are left at their zero values rather than failing the
// read; the store schema is not enforced at this layer.
func recordFromDoc(id string, doc map[string]interface{}) *ModelRecord {
	rec := &ModelRecord{ID: id}

	if v, ok := doc[fieldDefinition].(map[string]interface{}); ok {
		rec.Definition = v
	}
	if v, ok := doc[fieldPerformance].(map[string]interface{}); ok {
		rec.Performance = v
	}
	if v, ok := doc[fieldCreatedAt].(time.Time); ok {
		rec.CreatedAt = v
	}
	if v, ok := doc[fieldUpdatedAt].(time.Time); ok {
		rec.UpdatedAt = v
	}
	if v, ok := doc[fieldLastEvaluated].(time.Time); ok {
		rec.LastEvaluated = &v
	}

	return rec
}
