package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sysoverlay/sysoverlay/internal/module"
)

func target(partition string) string { return filepath.Join("/", partition) }

func TestGenerateClassifiesByMode(t *testing.T) {
	root := t.TempDir()

	overlayMod := module.Module{ID: "a", StagePath: filepath.Join(root, "a"), Rules: module.NewRuleTable()}
	magicMod := module.Module{ID: "b", StagePath: filepath.Join(root, "b"), Rules: module.NewRuleTable()}
	magicMod.Rules.Overrides["system"] = module.ModeMagic
	hymoMod := module.Module{ID: "c", StagePath: filepath.Join(root, "c"), Rules: module.NewRuleTable()}
	hymoMod.Rules.Overrides["vendor"] = module.ModeHymoFs

	for _, m := range []module.Module{overlayMod, magicMod, hymoMod} {
		dir := filepath.Join(m.StagePath, "system")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if m.ID == "c" {
			vdir := filepath.Join(m.StagePath, "vendor")
			if err := os.MkdirAll(vdir, 0o755); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(vdir, "g"), []byte("y"), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}

	plan := Generate([]module.Module{overlayMod, magicMod, hymoMod}, []string{"system", "vendor"}, target, "")

	if len(plan.OverlayOps) != 1 || plan.OverlayOps[0].Partition != "system" {
		t.Fatalf("expected one overlay op for system, got %+v", plan.OverlayOps)
	}
	// 'c' only overrides vendor, so its system content takes the default
	// overlay mode; the later module 'c' is the higher-priority layer.
	if len(plan.OverlayOps[0].Lowerdirs) != 2 {
		t.Errorf("expected modules 'c' and 'a' in overlay group, got %v", plan.OverlayOps[0].Lowerdirs)
	}
	if ids := plan.OverlayOps[0].ModuleIDs; len(ids) != 2 || ids[0] != "c" || ids[1] != "a" {
		t.Errorf("expected overlay op's ModuleIDs to be [c a], got %v", ids)
	}
	if _, ok := plan.MagicModules["b"]["system"]; !ok {
		t.Errorf("expected module 'b' routed to magic mount for 'system', got %+v", plan.MagicModules)
	}
	if len(plan.HymoOps) != 1 || plan.HymoOps[0].ModuleID != "c" {
		t.Fatalf("expected one hymofs op for module 'c', got %+v", plan.HymoOps)
	}
}

func TestGenerateDerivesUpperdirFromRWBase(t *testing.T) {
	root := t.TempDir()
	mod := module.Module{ID: "a", StagePath: filepath.Join(root, "a"), Rules: module.NewRuleTable()}
	dir := filepath.Join(mod.StagePath, "system")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	rwBase := "/dev/sysoverlay/rw"
	plan := Generate([]module.Module{mod}, []string{"system"}, target, rwBase)

	if len(plan.OverlayOps) != 1 {
		t.Fatalf("expected one overlay op, got %+v", plan.OverlayOps)
	}
	op := plan.OverlayOps[0]
	if op.Upperdir != filepath.Join(rwBase, "system", "upper") {
		t.Errorf("unexpected upperdir %q", op.Upperdir)
	}
	if op.Workdir != filepath.Join(rwBase, "system", "work") {
		t.Errorf("unexpected workdir %q", op.Workdir)
	}
}

func TestAnalyzeConflicts(t *testing.T) {
	root := t.TempDir()
	modA := filepath.Join(root, "a", "system")
	modB := filepath.Join(root, "b", "system")
	for _, d := range []string{modA, modB} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(d, "shared"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ops := []OverlayOperation{{Partition: "system", Target: "/system", Lowerdirs: []string{modA, modB}}}
	conflicts := analyzeConflicts(ops)
	if len(conflicts) != 1 || conflicts[0].RelativePath != "shared" {
		t.Fatalf("expected one conflict on 'shared', got %+v", conflicts)
	}
	if len(conflicts[0].ModuleIDs) != 2 {
		t.Errorf("expected 2 contributing lowerdirs, got %v", conflicts[0].ModuleIDs)
	}
}
