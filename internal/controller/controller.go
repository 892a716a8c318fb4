// Package controller drives one sysoverlayd run through its phases: it
// owns no mount logic itself, only the sequencing, state-machine
// transitions, and observability/metrics wiring around the packages that
// do.
package controller

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/sysoverlay/sysoverlay/internal/config"
	"github.com/sysoverlay/sysoverlay/internal/inventory"
	"github.com/sysoverlay/sysoverlay/internal/logging"
	"github.com/sysoverlay/sysoverlay/internal/metrics"
	"github.com/sysoverlay/sysoverlay/internal/modsync"
	"github.com/sysoverlay/sysoverlay/internal/module"
	"github.com/sysoverlay/sysoverlay/internal/observability"
	"github.com/sysoverlay/sysoverlay/internal/pathutil"
	"github.com/sysoverlay/sysoverlay/internal/planner"
	"github.com/sysoverlay/sysoverlay/internal/runtimestate"
	"github.com/sysoverlay/sysoverlay/internal/stealth"
	"github.com/sysoverlay/sysoverlay/internal/storage"
	"github.com/sysoverlay/sysoverlay/internal/umount"
)

// Phase names a state in the controller's state machine. Phases execute
// strictly in this order; a failure in any phase stops the run short of
// Finalized.
type Phase int

const (
	Init Phase = iota
	StorageReady
	ModulesReady
	Planned
	Executed
	Finalized
)

func (p Phase) String() string {
	switch p {
	case Init:
		return "init"
	case StorageReady:
		return "storage_ready"
	case ModulesReady:
		return "modules_ready"
	case Planned:
		return "planned"
	case Executed:
		return "executed"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Controller holds the state a single run accumulates as it advances
// through phases.
type Controller struct {
	Config    *config.Config
	RunID     string
	Phase     Phase
	Storage   *storage.Handle
	Modules   []module.Module
	Plan      planner.Plan
	Ledger    *umount.Ledger
	Stealth   stealth.Finalizer

	imagePath string // resolved once in setupStorage, reused by the post-sync Commit call
}

// New constructs a Controller for one run, generating a fresh RunID.
func New(cfg *config.Config) *Controller {
	return &Controller{
		Config:  cfg,
		RunID:   uuid.NewString(),
		Phase:   Init,
		Ledger:  umount.New(nil),
		Stealth: stealth.Noop{},
	}
}

// partitionList returns the built-in partitions plus any configured
// extras, deduplicated.
func (c *Controller) partitionList() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range append(append([]string{}, pathutil.BuiltinPartitions...), c.Config.Partitions...) {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Run drives every phase to completion, returning the first error. On
// failure c.Phase is the last phase that completed.
func (c *Controller) Run(ctx context.Context) error {
	log := logging.WithRun(c.RunID)
	log.Info("run starting", "phase", c.Phase.String())

	if err := c.runPhase(ctx, "storage", c.setupStorage); err != nil {
		return err
	}
	if err := c.runPhase(ctx, "inventory_sync", c.syncModules); err != nil {
		return err
	}
	if err := c.runPhase(ctx, "plan", c.plan); err != nil {
		return err
	}
	if err := c.runPhase(ctx, "execute", c.execute); err != nil {
		return err
	}
	if err := c.runPhase(ctx, "finalize", c.finalize); err != nil {
		return err
	}

	log.Info("run complete", "phase", c.Phase.String())
	return nil
}

func (c *Controller) runPhase(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := observability.StartPhaseSpan(ctx, name)
	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)
	span.SetAttributes(observability.AttrRunID.String(c.RunID), observability.AttrDurationMs.Int64(duration.Milliseconds()))
	observability.EndPhaseSpan(span, err)
	log := logging.OpWithTrace(observability.GetTraceID(ctx), observability.GetSpanID(ctx)).With("run_id", c.RunID)
	log.Debug("phase complete", "phase", name, "duration_ms", duration.Milliseconds(), "error", err)
	return err
}

func (c *Controller) setupStorage(ctx context.Context) error {
	c.imagePath = filepath.Join(filepath.Dir(c.Config.TempDir), "sysoverlay.img")
	h, err := storage.Setup(storage.Options{
		MountPoint:           c.Config.TempDir,
		ImagePath:            c.imagePath,
		ModuleDir:            c.Config.ModuleDir,
		PreferErofsStaging:   contains(c.Config.PreferredStorageModes, "erofs"),
		ExtImagePreexistOnly: c.Config.ExtImagePreexistOnly,
		MountSource:          c.Config.MountSource,
		SystemRWDir:          c.Config.SystemRWDir,
	})
	if err != nil {
		return fmt.Errorf("storage setup: %w", err)
	}
	c.Storage = h
	observability.SpanFromContext(ctx).SetAttributes(observability.AttrStorageMode.String(h.Mode.String()))
	c.Phase = StorageReady
	return nil
}

func (c *Controller) syncModules(ctx context.Context) error {
	mods, err := inventory.Scan(c.Config.ModuleDir, nil)
	if err != nil {
		return fmt.Errorf("scan modules: %w", err)
	}
	metrics.Global().RecordModulesScanned(len(mods))

	stageRoot := filepath.Join(c.Storage.MountPoint, "modules")
	synced, err := modsync.Sync(ctx, mods, stageRoot, false)
	if err != nil {
		return fmt.Errorf("sync modules: %w", err)
	}
	for range synced {
		metrics.Global().RecordModuleSynced(0)
	}
	if err := modsync.PruneOrphans(stageRoot, synced); err != nil {
		logging.WithRun(c.RunID).Warn("prune orphaned staged modules failed", "error", err)
	}

	rwBase := c.Config.SystemRWDir
	if err := c.Storage.Commit(c.imagePath, rwBase, func(path string) error {
		c.Ledger.Schedule(path)
		return nil
	}); err != nil {
		return fmt.Errorf("commit staging volume: %w", err)
	}
	// Commit may have swapped the staging tmpfs for a packed erofs image
	// (erofs_staging -> erofs); MountPoint is unchanged, so module stage
	// paths resolved against it remain valid since the packed image
	// preserves the same tree layout at the same mount point.

	c.Modules = synced
	c.Phase = ModulesReady
	return nil
}

func (c *Controller) plan(ctx context.Context) error {
	rwBase := ""
	if c.Config.SystemRWDir != "" {
		rwBase = filepath.Join(c.Config.SystemRWDir, "overlay")
	}
	c.Plan = planner.Generate(c.Modules, c.partitionList(), func(partition string) string {
		return "/" + partition
	}, rwBase)
	if len(c.Plan.Conflicts) > 0 {
		metrics.Global().RecordConflicts(len(c.Plan.Conflicts))
		for _, conflict := range c.Plan.Conflicts {
			logging.WithRun(c.RunID).Warn("overlay conflict",
				"partition", conflict.Partition, "path", conflict.RelativePath, "modules", conflict.ModuleIDs)
		}
	}
	c.Phase = Planned
	return nil
}

func (c *Controller) execute(ctx context.Context) error {
	if err := c.executeMounts(ctx); err != nil {
		return fmt.Errorf("execute mounts: %w", err)
	}
	metrics.Global().RecordOverlayMounted(len(c.Plan.OverlayOps))
	metrics.Global().RecordMagicMounted(len(c.Plan.MagicModules))
	c.Phase = Executed
	return nil
}

func (c *Controller) finalize(ctx context.Context) error {
	if err := c.Ledger.CommitAll(); err != nil {
		logging.WithRun(c.RunID).Warn("umount ledger commit failed", "error", err)
	}
	for _, op := range c.Plan.OverlayOps {
		if err := c.Stealth.Finalize(op.Target); err != nil {
			logging.WithRun(c.RunID).Debug("stealth finalize failed", "target", op.Target, "error", err)
		}
	}

	state := runtimestate.State{
		RunID:       c.RunID,
		StorageMode: c.Storage.Mode.String(),
		MountPoint:  c.Storage.MountPoint,
		Finalized:   true,
	}
	overlaySeen := make(map[string]bool)
	for _, op := range c.Plan.OverlayOps {
		state.ActiveMounts = append(state.ActiveMounts, op.Target)
		for _, id := range op.ModuleIDs {
			if !overlaySeen[id] {
				overlaySeen[id] = true
				state.OverlayModules = append(state.OverlayModules, id)
			}
		}
	}
	for id := range c.Plan.MagicModules {
		state.MagicModules = append(state.MagicModules, id)
	}
	for _, op := range c.Plan.HymoOps {
		state.HymoModules = append(state.HymoModules, op.ModuleID)
	}
	sort.Strings(state.OverlayModules)
	sort.Strings(state.MagicModules)
	sort.Strings(state.ActiveMounts)
	sort.Strings(state.HymoModules)
	if usage, err := c.Storage.Usage(); err == nil {
		state.Usage = runtimestate.Usage{TotalBytes: usage.TotalBytes, UsedBytes: usage.UsedBytes, Percent: usage.Percent}
		metrics.SetStorageUsagePercent(int(usage.Percent))
	}

	statePath := filepath.Join(filepath.Dir(c.Config.TempDir), "state.json")
	if err := runtimestate.Save(statePath, state); err != nil {
		return fmt.Errorf("save run state: %w", err)
	}

	c.Phase = Finalized
	return nil
}

func contains(list []string, val string) bool {
	for _, v := range list {
		if v == val {
			return true
		}
	}
	return false
}
