//go:build linux

package controller

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/sysoverlay/sysoverlay/internal/logging"
	"github.com/sysoverlay/sysoverlay/internal/magicmount"
	"github.com/sysoverlay/sysoverlay/internal/mountinfo"
	"github.com/sysoverlay/sysoverlay/internal/nodetree"
	"github.com/sysoverlay/sysoverlay/internal/observability"
	"github.com/sysoverlay/sysoverlay/internal/overlayexec"
	"github.com/sysoverlay/sysoverlay/internal/planner"
)

// executeMounts performs the real mount syscalls for every operation in
// c.Plan: one OverlayFS mount per partition (with nested real child
// mounts re-exposed), then one magic-mount pass over a single combined
// tree for every module routed there. A failure overlaying one partition
// falls that partition back to magic-mount rather than aborting the whole
// run, since every other already-classified partition is independent;
// afterwards c.Plan.OverlayOps holds only the partitions that mounted.
func (c *Controller) executeMounts(ctx context.Context) error {
	entries, err := mountinfo.Read()
	if err != nil {
		return fmt.Errorf("read mountinfo: %w", err)
	}

	var mounted []planner.OverlayOperation
	for _, op := range c.Plan.OverlayOps {
		_, span := observability.StartSpan(ctx, "overlay.partition", observability.AttrPartition.String(op.Partition))
		if err := c.mountOnePartition(entries, op); err != nil {
			observability.SetSpanError(span, err)
		} else {
			observability.SetSpanOK(span)
			mounted = append(mounted, op)
		}
		span.End()
	}
	// Partitions reclassified to magic mount leave the overlay list, so
	// finalize reports their modules as magic only.
	c.Plan.OverlayOps = mounted

	if len(c.Plan.MagicModules) > 0 {
		_, span := observability.StartSpan(ctx, "magicmount.apply")
		err := c.applyMagicMount()
		if err != nil {
			observability.SetSpanError(span, err)
		} else {
			observability.SetSpanOK(span)
		}
		span.End()
	}

	return nil
}

// mountOnePartition drives one partition's overlay mount and its nested
// child re-exposure, rolling back and reclassifying to magic mount on
// either step's failure.
func (c *Controller) mountOnePartition(entries []mountinfo.Entry, op planner.OverlayOperation) error {
	if err := overlayexec.MountOverlay(op); err != nil {
		logging.WithRun(c.RunID).Warn("overlay mount failed, reclassifying to magic mount",
			"partition", op.Partition, "error", err)
		c.reclassifyToMagic(op)
		return err
	}
	if err := overlayexec.ExposeChildren(entries, op); err != nil {
		logging.WithRun(c.RunID).Warn("nested child mount failed, rolling back and reclassifying partition to magic mount",
			"partition", op.Partition, "error", err)
		if unmountErr := overlayexec.Unmount(op.Target); unmountErr != nil {
			logging.WithRun(c.RunID).Warn("rollback unmount failed", "partition", op.Partition, "error", unmountErr)
		}
		c.reclassifyToMagic(op)
		return err
	}
	c.Ledger.Schedule(op.Target)
	return nil
}

// applyMagicMount builds the single combined tree for every magic-routed
// module across every partition and applies it in one pass.
func (c *Controller) applyMagicMount() error {
	realRoot := "/"
	root, err := nodetree.BuildTree(realRoot, c.Plan.MagicModules, c.partitionList())
	if err != nil {
		logging.WithRun(c.RunID).Warn("build magic-mount tree failed", "error", err)
		return err
	}
	executor := &magicmount.Executor{WorkspaceRoot: filepath.Join(c.Storage.MountPoint, "magic-workspace")}
	if err := executor.Mount(root, realRoot); err != nil {
		logging.WithRun(c.RunID).Warn("magic mount failed", "error", err)
		return err
	}
	return nil
}

// reclassifyToMagic moves every module that contributed a lowerdir to op
// into c.Plan.MagicModules, so a module is either fully overlay or fully
// magic for this partition, never both.
func (c *Controller) reclassifyToMagic(op planner.OverlayOperation) {
	if c.Plan.MagicModules == nil {
		c.Plan.MagicModules = make(map[string]map[string]string)
	}
	for i, id := range op.ModuleIDs {
		if c.Plan.MagicModules[id] == nil {
			c.Plan.MagicModules[id] = make(map[string]string)
		}
		c.Plan.MagicModules[id][op.Partition] = op.Lowerdirs[i]
	}
}
