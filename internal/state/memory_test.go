package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_AddAssignsUniqueIDs(t *testing.T) {
	mem := NewMemoryBackend()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		id, err := mem.AddModel(context.Background(), map[string]interface{}{"n": i})
		require.NoError(t, err)
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}

	assert.Equal(t, 10, mem.Len())
}

func TestMemoryBackend_GetNotFound(t *testing.T) {
	mem := NewMemoryBackend()

	_, err := mem.GetModel(context.Background(), "nope")

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestMemoryBackend_UpdateNotFound(t *testing.T) {
	mem := NewMemoryBackend()

	err := mem.UpdateModel(context.Background(), "nope", map[string]interface{}{"x": 1})

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestMemoryBackend_StoredDocsAreIsolated(t *testing.T) {
	mem := NewMemoryBackend()

	doc := map[string]interface{}{
		"definition": map[string]interface{}{"strategy": "ema"},
		"created_at": time.Now().UTC(),
	}
	id, err := mem.AddModel(context.Background(), doc)
	require.NoError(t, err)

	// Mutating the caller's map must not change stored state
	doc["definition"].(map[string]interface{})["strategy"] = "tampered"

	stored, err := mem.GetModel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "ema", stored["definition"].(map[string]interface{})["strategy"])

	// Mutating a returned copy must not change stored state either
	stored["definition"].(map[string]interface{})["strategy"] = "tampered again"

	again, err := mem.GetModel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "ema", again["definition"].(map[string]interface{})["strategy"])
}

func TestMemoryBackend_ListOrderedByID(t *testing.T) {
	mem := NewMemoryBackend()

	for i := 0; i < 5; i++ {
		_, err := mem.AddModel(context.Background(), map[string]interface{}{"n": i})
		require.NoError(t, err)
	}

	docs, err := mem.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 5)

	for i := 1; i < len(docs); i++ {
		assert.Less(t, docs[i-1].ID, docs[i].ID)
	}
}

func TestRecordFromDoc_ToleratesMissingFields(t *testing.T) {
	rec := recordFromDoc("id-1", map[string]interface{}{})

	assert.Equal(t, "id-1", rec.ID)
	assert.Nil(t, rec.Definition)
	assert.Nil(t, rec.Performance)
	assert.True(t, rec.CreatedAt.IsZero())
	assert.Nil(t, rec.LastEvaluated)
}
