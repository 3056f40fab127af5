package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// archiveTimeout bounds one export run, upload included
const archiveTimeout = 10 * time.Minute

// ArchiveJob runs a full model export on a schedule
type ArchiveJob struct {
	service *ArchiveService
	log     zerolog.Logger
}

// NewArchiveJob creates an archive job
func NewArchiveJob(service *ArchiveService, log zerolog.Logger) *ArchiveJob {
	return &ArchiveJob{
		service: service,
		log:     log.With().Str("job", "model_archive").Logger(),
	}
}

// Run executes one archive export
func (j *ArchiveJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := j.service.Export(ctx); err != nil {
		j.log.Error().Err(err).Msg("Model archive export failed")
		return err
	}

	return nil
}

// Name returns the job name for scheduling and logging
func (j *ArchiveJob) Name() string {
	return "model_archive"
}
