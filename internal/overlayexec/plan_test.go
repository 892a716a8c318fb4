package overlayexec

import (
	"testing"

	"github.com/sysoverlay/sysoverlay/internal/mountinfo"
)

func TestPlanChildren(t *testing.T) {
	entries := []mountinfo.Entry{
		{MountPoint: "/system", FSType: "overlay"},
		{MountPoint: "/system/app", FSType: "ext4"},
		{MountPoint: "/system/app/priv", FSType: "ext4"},
		{MountPoint: "/vendor", FSType: "erofs"},
	}

	children := PlanChildren(entries, "/system")
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d: %+v", len(children), children)
	}
	if children[0].RelativePath != "app" {
		t.Errorf("expected first child 'app', got %q", children[0].RelativePath)
	}
	if children[1].RelativePath != "app/priv" {
		t.Errorf("expected second child 'app/priv', got %q", children[1].RelativePath)
	}
}

func TestNeedsNestedOverlay(t *testing.T) {
	orig := hasEntryAt
	defer func() { hasEntryAt = orig }()

	hasEntryAt = func(root, rel string) bool {
		return root == "/staged/modA" && rel == "app"
	}

	if !NeedsNestedOverlay([]string{"/staged/modA", "/staged/modB"}, "app") {
		t.Error("expected nested overlay needed when a lowerdir contributes at 'app'")
	}
	if NeedsNestedOverlay([]string{"/staged/modB"}, "app") {
		t.Error("expected no nested overlay needed when no lowerdir contributes at 'app'")
	}
}

func TestBuildOverlayOptions(t *testing.T) {
	opts := buildOverlayOptions([]string{"/a", "/b:c"}, "", "")
	want := `lowerdir=/a:/b\:c`
	if opts != want {
		t.Errorf("got %q, want %q", opts, want)
	}

	opts = buildOverlayOptions([]string{"/a"}, "/upper", "/work")
	want = "lowerdir=/a,upperdir=/upper,workdir=/work"
	if opts != want {
		t.Errorf("got %q, want %q", opts, want)
	}
}

func TestDedupMountSeq(t *testing.T) {
	children := []ChildMount{
		{RelativePath: "app", Source: mountinfo.Entry{MountPoint: "/system/app"}},
		{RelativePath: "app", Source: mountinfo.Entry{MountPoint: "/system/app"}},
		{RelativePath: "bin", Source: mountinfo.Entry{MountPoint: "/system/bin"}},
	}
	deduped := dedupMountSeq(children)
	if len(deduped) != 2 {
		t.Fatalf("expected 2 deduped entries, got %d", len(deduped))
	}
}
