package mountinfo

import (
	"strings"
	"testing"
)

const sample = `22 96 0:21 / /sys rw,nosuid,nodev,noexec,relatime shared:7 - sysfs sysfs rw
96 1 253:1 / / rw,relatime shared:1 - ext4 /dev/block/dm-1 rw
100 96 253:2 / /vendor ro,relatime shared:2 - erofs /dev/block/dm-2 ro
101 96 0:30 / /system ro,relatime shared:3 - overlay overlay rw
102 101 253:3 / /system/app ro,relatime shared:4 - ext4 /dev/block/dm-3 ro
`

func TestParseAndChildrenUnder(t *testing.T) {
	entries, err := parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}

	children := ChildrenUnder(entries, "/system")
	if len(children) != 1 || children[0].MountPoint != "/system/app" {
		t.Fatalf("expected one child '/system/app', got %+v", children)
	}
}

func TestDetectPartitions(t *testing.T) {
	entries, err := parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	partitions := DetectPartitions(entries)
	want := []string{"vendor"}
	if len(partitions) != len(want) || partitions[0] != want[0] {
		t.Fatalf("expected %v, got %v", want, partitions)
	}
}
