// Package inventory scans the metadata directory for enabled modules and
// parses their module.prop manifests.
package inventory

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sysoverlay/sysoverlay/internal/logging"
	"github.com/sysoverlay/sysoverlay/internal/module"
	"github.com/sysoverlay/sysoverlay/internal/pathutil"
)

// selfModuleID is this engine's own module directory name; it is always
// excluded from the scan so the engine never tries to overlay itself.
const selfModuleID = "sysoverlay"

const lostFoundID = "lost+found"

// Scan walks metadataDir and returns every enabled, validly-named module.
// A directory is skipped (not an error) if it carries disable, remove, or
// skip_mount, or if it is one of the reserved names; an invalid module id
// aborts only that module's inclusion and is logged, not fatal.
func Scan(metadataDir string, modeOverrides map[string]module.RuleTable) ([]module.Module, error) {
	entries, err := os.ReadDir(metadataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read metadata dir %s: %w", metadataDir, err)
	}

	var modules []module.Module
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		if id == selfModuleID || id == lostFoundID {
			continue
		}

		dir := filepath.Join(metadataDir, id)
		if hasMarker(dir, pathutil.DisableFileName) ||
			hasMarker(dir, pathutil.RemoveFileName) ||
			hasMarker(dir, pathutil.SkipMountFileName) {
			continue
		}

		if err := pathutil.ValidateModuleID(id); err != nil {
			logging.Op().Warn("skipping module with invalid id", "id", id, "error", err)
			continue
		}

		props, err := parseProp(filepath.Join(dir, "module.prop"))
		if err != nil {
			logging.Op().Warn("failed to parse module.prop", "id", id, "error", err)
			props = module.PropMap{}
		}

		if declared, ok := props["id"]; ok && declared != "" && declared != id {
			logging.Op().Warn("module.prop id disagrees with directory name",
				"directory", id, "declared", declared)
		}

		rules := module.NewRuleTable()
		if override, ok := modeOverrides[id]; ok {
			rules = override
		}

		modules = append(modules, module.Module{
			ID:         id,
			SourcePath: dir,
			Props:      props,
			Rules:      rules,
			DeclaredID: props["id"],
		})
	}

	sort.Slice(modules, func(i, j int) bool { return modules[i].ID < modules[j].ID })
	return modules, nil
}

func hasMarker(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}

// parseProp reads ASCII key=value lines from a module.prop file.
func parseProp(path string) (module.PropMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	props := module.PropMap{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.IndexByte(line, '=')
		if idx <= 0 {
			continue
		}
		key := line[:idx]
		val := line[idx+1:]
		props[key] = val
	}
	return props, scanner.Err()
}

// ResolveEffectiveMode reports the module's per-partition mount mode as a
// human-facing string ("overlay", "magic", "hymofs", "ignore", or "auto" for
// a module with no explicit override), enriching the `modules` listing the
// same way the upstream implementation resolves a pinned mode before
// printing it (supplemented from original_source/src/modules.rs print_list).
func ResolveEffectiveMode(m module.Module, partition string) string {
	if _, ok := m.Rules.Overrides[partition]; !ok {
		return "auto"
	}
	return m.Rules.GetMode(partition).String()
}
