package di

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/amse-project/amse/internal/config"
	"github.com/amse-project/amse/internal/database"
	"github.com/amse-project/amse/internal/mirror"
	"github.com/amse-project/amse/internal/reliability"
	"github.com/amse-project/amse/internal/scheduler"
	"github.com/amse-project/amse/internal/state"
)

// Wire builds the full component graph from environment configuration:
// the local mirror database, the background scheduler with its
// maintenance jobs, and the lazily connected state store.
//
// The scheduler is started before returning. Callers own the container
// and must Close it on shutdown.
func Wire(log zerolog.Logger) (*Container, error) {
	cfg := config.Load(log)

	c := NewContainer(cfg, log)

	mirrorDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.Mirror.DataDir, "mirror.db"),
		Name: "mirror",
	})
	if err != nil {
		return nil, err
	}
	if err := mirrorDB.Migrate(mirror.Schema); err != nil {
		_ = mirrorDB.Close()
		return nil, err
	}

	c.MirrorDB = mirrorDB
	c.Mirror = mirror.NewRepository(mirrorDB.Conn())

	c.Scheduler = scheduler.New(log)

	if err := c.Scheduler.AddJob("@daily", mirror.NewCleanupJob(c.Mirror, log)); err != nil {
		c.Close()
		return nil, err
	}

	if cfg.Archive.Enabled() {
		r2, err := reliability.NewR2Client(context.Background(), cfg.Archive, log)
		if err != nil {
			c.Close()
			return nil, err
		}

		archive := reliability.NewArchiveService(
			&containerModels{c: c},
			r2,
			cfg.Archive.RetentionDays,
			log,
		)

		if err := c.Scheduler.AddJob("@daily", reliability.NewArchiveJob(archive, log)); err != nil {
			c.Close()
			return nil, err
		}
	}

	c.Scheduler.Start()

	return c, nil
}

// containerModels resolves the state store on each archive run, so an
// export scheduled before the store came up still succeeds once it does
type containerModels struct {
	c *Container
}

func (m *containerModels) ListModels(ctx context.Context) ([]*state.ModelRecord, error) {
	client, err := m.c.StateStore(ctx)
	if err != nil {
		return nil, err
	}
	return client.ListModels(ctx)
}
