// Package planner classifies each enabled module's per-partition contents
// into an OverlayFS group, a magic-mount set, or a direct hymofs bind, and
// flags files contributed by more than one module.
package planner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sysoverlay/sysoverlay/internal/module"
)

// OverlayOperation describes one partition's OverlayFS mount: the target
// mount point, the ordered list of module lowerdirs to stack beneath it
// (highest-priority module first, which is the module that came last in
// iteration order), and the module ID that staged each entry in Lowerdirs
// at the same index, so a later overlay-mount failure can identify exactly
// which modules need to fall back to magic mount.
// Upperdir/Workdir are optionally set to a stable per-partition writable
// path; both are empty together or set together. overlayexec.MountOverlay
// does not read them, so every overlay it mounts is read-only.
type OverlayOperation struct {
	Partition string
	Target    string
	Lowerdirs []string
	ModuleIDs []string
	Upperdir  string
	Workdir   string
}

// HymoOperation describes a single module's direct bind-mount of its
// partition subdirectory onto the real partition, bypassing both overlay
// composition and magic-mount tree construction.
type HymoOperation struct {
	ModuleID string
	Source   string
	Target   string
}

// ConflictEntry records that more than one module contributes the same
// relative path within a partition's overlay group.
type ConflictEntry struct {
	Partition    string
	RelativePath string
	ModuleIDs    []string
}

// Plan is the fully classified result of one planning pass.
type Plan struct {
	OverlayOps []OverlayOperation
	HymoOps    []HymoOperation
	// MagicModules maps module id -> partition -> staged partition
	// subdirectory, for every module routed to magic mount either by its
	// own rule table or by a later overlay-mount failure. A module that
	// needs magic mount on more than one partition gets one entry per
	// partition under its own id.
	MagicModules map[string]map[string]string
	Conflicts    []ConflictEntry
}

// Generate classifies modules' staged partition subdirectories according
// to each module's rule table and returns the resulting Plan. partitions
// is the full partition list to consider (built-ins plus any configured
// extras); a module with no subdirectory for a given partition is skipped
// for that partition only. rwBase is the stable writable base directory
// used to derive each overlay operation's upperdir/workdir; an empty
// rwBase leaves both empty.
func Generate(modules []module.Module, partitions []string, partitionTarget func(string) string, rwBase string) Plan {
	overlayDirs := make(map[string][]string)   // partition -> lowerdirs, last module first
	overlayIDs := make(map[string][]string)    // partition -> module id per lowerdir, same order
	magicModules := make(map[string]map[string]string)
	var hymoOps []HymoOperation

	for _, m := range modules {
		for _, partition := range partitions {
			dir := filepath.Join(m.StagePath, partition)
			if !hasFiles(dir) {
				continue
			}

			switch m.Rules.GetMode(partition) {
			case module.ModeIgnore:
				continue
			case module.ModeHymoFs:
				hymoOps = append(hymoOps, HymoOperation{
					ModuleID: m.ID,
					Source:   dir,
					Target:   partitionTarget(partition),
				})
			case module.ModeMagic:
				if magicModules[m.ID] == nil {
					magicModules[m.ID] = make(map[string]string)
				}
				magicModules[m.ID][partition] = dir
			default: // ModeOverlay
				// Prepend: a later module's layer sits above earlier ones.
				overlayDirs[partition] = append([]string{dir}, overlayDirs[partition]...)
				overlayIDs[partition] = append([]string{m.ID}, overlayIDs[partition]...)
			}
		}
	}

	partitionNames := make([]string, 0, len(overlayDirs))
	for p := range overlayDirs {
		partitionNames = append(partitionNames, p)
	}
	sort.Strings(partitionNames)

	var ops []OverlayOperation
	for _, p := range partitionNames {
		op := OverlayOperation{
			Partition: p,
			Target:    partitionTarget(p),
			Lowerdirs: overlayDirs[p],
			ModuleIDs: overlayIDs[p],
		}
		if rwBase != "" {
			op.Upperdir = filepath.Join(rwBase, p, "upper")
			op.Workdir = filepath.Join(rwBase, p, "work")
		}
		ops = append(ops, op)
	}

	return Plan{
		OverlayOps:   ops,
		HymoOps:      hymoOps,
		MagicModules: magicModules,
		Conflicts:    analyzeConflicts(ops),
	}
}

func hasFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// analyzeConflicts walks every lowerdir in each overlay group and reports
// relative paths contributed by more than one module, so the controller
// can log which modules are competing over the same file before mounting.
func analyzeConflicts(ops []OverlayOperation) []ConflictEntry {
	var conflicts []ConflictEntry
	for _, op := range ops {
		fileOwners := make(map[string][]string) // relative path -> ids of modules whose lowerdir contains it
		for i, lowerdir := range op.Lowerdirs {
			owner := lowerdir // falls back to the lowerdir path when no module id is recorded
			if i < len(op.ModuleIDs) {
				owner = op.ModuleIDs[i]
			}
			_ = filepath.WalkDir(lowerdir, func(path string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}
				rel, relErr := filepath.Rel(lowerdir, path)
				if relErr != nil {
					return nil
				}
				fileOwners[rel] = append(fileOwners[rel], owner)
				return nil
			})
		}

		var relPaths []string
		for rel, owners := range fileOwners {
			if len(owners) > 1 {
				relPaths = append(relPaths, rel)
			}
		}
		sort.Strings(relPaths)
		for _, rel := range relPaths {
			conflicts = append(conflicts, ConflictEntry{
				Partition:    op.Partition,
				RelativePath: rel,
				ModuleIDs:    fileOwners[rel],
			})
		}
	}
	return conflicts
}
