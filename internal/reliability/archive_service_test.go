package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/amse-project/amse/internal/state"
)

type fakeObjectStore struct {
	objects   map[string][]byte
	deleted   []string
	uploadErr error
	listErr   error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string][]byte)}
}

func (f *fakeObjectStore) Upload(_ context.Context, key string, body io.Reader) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeObjectStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []ObjectInfo
	for key, data := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeLister struct {
	records []*state.ModelRecord
	err     error
}

func (f *fakeLister) ListModels(context.Context) ([]*state.ModelRecord, error) {
	return f.records, f.err
}

func testRecords() []*state.ModelRecord {
	created := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	return []*state.ModelRecord{
		{
			ID:         "model-a",
			Definition: map[string]interface{}{"strategy": "ema_cross"},
			CreatedAt:  created,
			UpdatedAt:  created,
		},
		{
			ID:          "model-b",
			Definition:  map[string]interface{}{"strategy": "turtle"},
			Performance: map[string]interface{}{"sharpe": "1.3"},
			CreatedAt:   created,
			UpdatedAt:   created.Add(time.Hour),
		},
	}
}

func newTestService(lister ModelLister, store objectStore, retentionDays int, now time.Time) *ArchiveService {
	svc := NewArchiveService(lister, store, retentionDays, zerolog.Nop())
	svc.now = func() time.Time { return now }
	return svc
}

func TestExport_UploadsReadableArchive(t *testing.T) {
	store := newFakeObjectStore()
	now := time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)
	svc := newTestService(&fakeLister{records: testRecords()}, store, 30, now)

	require.NoError(t, svc.Export(context.Background()))

	key := "amse-models-2026-08-31-030000.tar.gz"
	data, ok := store.objects[key]
	require.True(t, ok, "expected archive at %s, got %v", key, store.objects)

	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	entries := make(map[string]*state.ModelRecord)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		payload, err := io.ReadAll(tr)
		require.NoError(t, err)

		var rec state.ModelRecord
		require.NoError(t, msgpack.Unmarshal(payload, &rec))
		entries[hdr.Name] = &rec
	}

	require.Len(t, entries, 2)
	assert.Equal(t, "model-a", entries["model-a.msgpack"].ID)
	assert.Nil(t, entries["model-a.msgpack"].Performance)
	assert.Equal(t, "1.3", entries["model-b.msgpack"].Performance["sharpe"])
}

func TestExport_EmptyStoreStillUploads(t *testing.T) {
	store := newFakeObjectStore()
	now := time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)
	svc := newTestService(&fakeLister{}, store, 30, now)

	require.NoError(t, svc.Export(context.Background()))
	assert.Len(t, store.objects, 1)
}

func TestExport_ListFailure(t *testing.T) {
	store := newFakeObjectStore()
	svc := newTestService(&fakeLister{err: errors.New("backend down")}, store, 30, time.Now())

	err := svc.Export(context.Background())
	require.Error(t, err)
	assert.Empty(t, store.objects)
}

func TestExport_UploadFailure(t *testing.T) {
	store := newFakeObjectStore()
	store.uploadErr = errors.New("bucket unavailable")
	svc := newTestService(&fakeLister{records: testRecords()}, store, 30, time.Now())

	require.Error(t, svc.Export(context.Background()))
}

func TestExport_RotationFailureDoesNotFailExport(t *testing.T) {
	store := newFakeObjectStore()
	store.listErr = errors.New("list unavailable")
	svc := newTestService(&fakeLister{records: testRecords()}, store, 30, time.Now())

	require.NoError(t, svc.Export(context.Background()))
	assert.Len(t, store.objects, 1)
}

func archiveKey(t time.Time) string {
	return archivePrefix + t.UTC().Format(archiveTimeFmt) + ".tar.gz"
}

func TestRotate_DeletesOldBeyondMinimum(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	store := newFakeObjectStore()

	// Two recent, three past the 30 day retention window
	for _, age := range []int{1, 2, 40, 50, 60} {
		store.objects[archiveKey(now.AddDate(0, 0, -age))] = []byte("x")
	}

	svc := newTestService(&fakeLister{}, store, 30, now)
	require.NoError(t, svc.Rotate(context.Background()))

	// Newest three survive even though the 40 day old one is past retention
	assert.Len(t, store.objects, 3)
	assert.ElementsMatch(t, []string{
		archiveKey(now.AddDate(0, 0, -50)),
		archiveKey(now.AddDate(0, 0, -60)),
	}, store.deleted)
}

func TestRotate_KeepsEverythingWithinRetention(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	store := newFakeObjectStore()

	for _, age := range []int{1, 2, 3, 4, 5} {
		store.objects[archiveKey(now.AddDate(0, 0, -age))] = []byte("x")
	}

	svc := newTestService(&fakeLister{}, store, 30, now)
	require.NoError(t, svc.Rotate(context.Background()))

	assert.Len(t, store.objects, 5)
	assert.Empty(t, store.deleted)
}

func TestRotate_FewObjectsIsNoOp(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	store := newFakeObjectStore()
	store.objects[archiveKey(now.AddDate(0, 0, -400))] = []byte("x")

	svc := newTestService(&fakeLister{}, store, 30, now)
	require.NoError(t, svc.Rotate(context.Background()))

	assert.Len(t, store.objects, 1)
}

func TestRotate_SkipsUnparseableKeys(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	store := newFakeObjectStore()

	for _, age := range []int{1, 2, 3} {
		store.objects[archiveKey(now.AddDate(0, 0, -age))] = []byte("x")
	}
	// Sorts below every dated key, so rotation inspects it
	bogus := archivePrefix + "0000-bogus.tar.gz"
	store.objects[bogus] = []byte("x")

	svc := newTestService(&fakeLister{}, store, 30, now)
	require.NoError(t, svc.Rotate(context.Background()))

	_, ok := store.objects[bogus]
	assert.True(t, ok, "unparseable keys must not be deleted")
}

func TestArchiveJob_Name(t *testing.T) {
	job := NewArchiveJob(newTestService(&fakeLister{}, newFakeObjectStore(), 30, time.Now()), zerolog.Nop())
	assert.Equal(t, "model_archive", job.Name())
}

func TestArchiveJob_Run(t *testing.T) {
	store := newFakeObjectStore()
	job := NewArchiveJob(newTestService(&fakeLister{records: testRecords()}, store, 30, time.Now()), zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Len(t, store.objects, 1)
}
