package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/amse-project/amse/internal/state"
)

const (
	archivePrefix  = "amse-models-"
	archiveTimeFmt = "2006-01-02-150405"

	// minArchivesToKeep archives always survive rotation, regardless of age
	minArchivesToKeep = 3
)

// objectStore is the subset of R2Client the archive service needs
type objectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ModelLister reads the model records to be archived
type ModelLister interface {
	ListModels(ctx context.Context) ([]*state.ModelRecord, error)
}

// ArchiveService exports all model records as a compressed archive and
// uploads it to object storage, rotating archives past the retention window.
type ArchiveService struct {
	models        ModelLister
	store         objectStore
	retentionDays int
	now           func() time.Time
	log           zerolog.Logger
}

// NewArchiveService creates an archive service
func NewArchiveService(models ModelLister, store objectStore, retentionDays int, log zerolog.Logger) *ArchiveService {
	return &ArchiveService{
		models:        models,
		store:         store,
		retentionDays: retentionDays,
		now:           time.Now,
		log:           log.With().Str("component", "archive").Logger(),
	}
}

// Export archives all model records and uploads the result, then rotates
// old archives. A rotation failure is logged but does not fail the export.
func (s *ArchiveService) Export(ctx context.Context) error {
	records, err := s.models.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models for archiving: %w", err)
	}

	archive, err := buildArchive(records)
	if err != nil {
		return fmt.Errorf("failed to build archive: %w", err)
	}

	key := archivePrefix + s.now().UTC().Format(archiveTimeFmt) + ".tar.gz"

	if err := s.store.Upload(ctx, key, bytes.NewReader(archive)); err != nil {
		return err
	}

	s.log.Info().
		Str("key", key).
		Int("models", len(records)).
		Int("bytes", len(archive)).
		Msg("Archive uploaded")

	if err := s.Rotate(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Archive rotation failed")
	}

	return nil
}

// Rotate deletes archives older than the retention window, always keeping
// the newest minArchivesToKeep
func (s *ArchiveService) Rotate(ctx context.Context) error {
	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return err
	}

	if len(objects) <= minArchivesToKeep {
		return nil
	}

	// Newest first. Keys embed the creation timestamp, so the
	// lexicographic order matches the chronological one.
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].Key > objects[j].Key
	})

	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays)

	var deleted int
	for _, obj := range objects[minArchivesToKeep:] {
		created, err := parseArchiveTime(obj.Key)
		if err != nil {
			s.log.Warn().Str("key", obj.Key).Msg("Skipping object with unrecognized archive name")
			continue
		}
		if created.After(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			return err
		}
		deleted++
	}

	if deleted > 0 {
		s.log.Info().Int("deleted", deleted).Msg("Rotated old archives")
	}

	return nil
}

func parseArchiveTime(key string) (time.Time, error) {
	stamp := strings.TrimSuffix(strings.TrimPrefix(key, archivePrefix), ".tar.gz")
	return time.Parse(archiveTimeFmt, stamp)
}

// buildArchive packs each record as a msgpack entry in a tar.gz stream
func buildArchive(records []*state.ModelRecord) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, rec := range records {
		data, err := msgpack.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("failed to encode model %s: %w", rec.ID, err)
		}

		hdr := &tar.Header{
			Name:    rec.ID + ".msgpack",
			Mode:    0o644,
			Size:    int64(len(data)),
			ModTime: rec.UpdatedAt,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(data); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
