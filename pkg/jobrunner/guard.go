package jobrunner

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// deleteTimeout bounds the cleanup delete call independently of the
// job-completion deadline and of the caller's context.
const deleteTimeout = 30 * time.Second

// cleanupGuard owns a submitted handle and deletes it exactly once on every
// exit path. A failed delete is logged and reported as a warning, never as
// an error: cleanup must not mask the run's true outcome.
type cleanupGuard struct {
	client  Client
	handle  Handle
	logger  *slog.Logger
	once    sync.Once
	warning string
}

func newCleanupGuard(client Client, handle Handle, logger *slog.Logger) *cleanupGuard {
	return &cleanupGuard{client: client, handle: handle, logger: logger}
}

// Release deletes the job and returns a warning message when deletion
// failed, empty otherwise. Subsequent calls are no-ops returning the first
// result. Uses a fresh context so cleanup runs even after caller
// cancellation.
func (g *cleanupGuard) Release() string {
	g.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
		defer cancel()

		if err := g.client.Delete(ctx, g.handle); err != nil {
			g.warning = err.Error()
			g.logger.Warn("job cleanup failed, manual deletion required",
				"job", g.handle.Name,
				"namespace", g.handle.Namespace,
				"error", err)
			return
		}
		g.logger.Debug("job deleted",
			"job", g.handle.Name,
			"namespace", g.handle.Namespace)
	})
	return g.warning
}
