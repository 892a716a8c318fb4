//go:build !linux

package controller

import (
	"context"

	"github.com/sysoverlay/sysoverlay/internal/logging"
)

// executeMounts is unavailable off Linux: there is no mount(2)/overlayfs
// syscall surface to drive, so this just logs and returns successfully,
// letting the rest of the pipeline (planning, state persistence) remain
// exercisable in cross-platform tests.
func (c *Controller) executeMounts(ctx context.Context) error {
	logging.WithRun(c.RunID).Warn("mount execution skipped: unsupported on this platform")
	return nil
}
