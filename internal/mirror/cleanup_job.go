package mirror

import (
	"github.com/rs/zerolog"
)

// CleanupJob removes expired entries from the mirror.
// It should be scheduled to run daily.
type CleanupJob struct {
	repo *Repository
	log  zerolog.Logger
}

// NewCleanupJob creates a new mirror cleanup job
func NewCleanupJob(repo *Repository, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		log:  log.With().Str("job", "mirror_cleanup").Logger(),
	}
}

// Run executes the cleanup job, removing all expired entries
func (j *CleanupJob) Run() error {
	deleted, err := j.repo.DeleteExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired mirror entries")
		return err
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Msg("Cleaned up expired mirror entries")
	}

	return nil
}

// Name returns the job name for scheduling and logging
func (j *CleanupJob) Name() string {
	return "mirror_cleanup"
}
