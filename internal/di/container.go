// Package di wires application components together and owns their
// lifecycles.
package di

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/amse-project/amse/internal/config"
	"github.com/amse-project/amse/internal/database"
	"github.com/amse-project/amse/internal/mirror"
	"github.com/amse-project/amse/internal/scheduler"
	"github.com/amse-project/amse/internal/state"
)

// BackendFactory builds the document store backend behind the state
// store client. The default connects to Firebase with the loaded
// credentials; tests substitute an in-memory backend.
type BackendFactory func(ctx context.Context, fb *config.FirebaseConfig, log zerolog.Logger) (state.Backend, error)

// Container holds the shared application components.
//
// The state store client is created lazily on first use and shared by
// every caller from then on, so the process holds exactly one store
// connection. A failed setup is not cached: the next StateStore call
// retries, which lets a process started before its credentials were
// provisioned recover without a restart.
type Container struct {
	Config    *config.Config
	Log       zerolog.Logger
	MirrorDB  *database.DB
	Mirror    *mirror.Repository
	Scheduler *scheduler.Scheduler

	backendFactory BackendFactory

	mu         sync.Mutex
	stateStore *state.Client
	backend    state.Backend
}

// NewContainer creates a container with the default Firebase backend
// factory. Wire assembles the full component graph; this constructor
// alone is enough when only the state store is needed.
func NewContainer(cfg *config.Config, log zerolog.Logger) *Container {
	return &Container{
		Config: cfg,
		Log:    log,
		backendFactory: func(ctx context.Context, fb *config.FirebaseConfig, log zerolog.Logger) (state.Backend, error) {
			return state.NewFirebaseBackend(ctx, fb, log)
		},
	}
}

// StateStore returns the shared state store client, creating it on
// first use. Setup failures surface as *state.SetupError and leave the
// container unchanged so a later call can retry.
func (c *Container) StateStore(ctx context.Context) (*state.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stateStore != nil {
		return c.stateStore, nil
	}

	backend, err := c.backendFactory(ctx, c.Config.Firebase, c.Log)
	if err != nil {
		return nil, err
	}

	var opts []state.Option
	if c.Mirror != nil {
		opts = append(opts, state.WithMirror(c.Mirror))
	}

	c.backend = backend
	c.stateStore = state.New(backend, c.Log, opts...)

	return c.stateStore, nil
}

// Close stops the scheduler and releases the store and mirror
// connections. Safe to call on a partially wired container.
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}

	c.mu.Lock()
	backend := c.backend
	c.backend = nil
	c.stateStore = nil
	c.mu.Unlock()

	if closer, ok := backend.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.Log.Warn().Err(err).Msg("Failed to close store backend")
		}
	}

	if c.MirrorDB != nil {
		if err := c.MirrorDB.Close(); err != nil {
			c.Log.Warn().Err(err).Msg("Failed to close mirror database")
		}
	}
}
