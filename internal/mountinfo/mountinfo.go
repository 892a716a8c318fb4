// Package mountinfo parses /proc/self/mountinfo to discover active child
// mounts beneath a given path. It is never cached across phases: every
// call re-reads the file, since a mount performed earlier in the same run
// must be visible to the very next call.
package mountinfo

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is one parsed mountinfo line, keeping only the fields the overlay
// and magic-mount executors need.
type Entry struct {
	MountID    int
	ParentID   int
	Root       string
	MountPoint string
	FSType     string
	MountSource string
}

const selfMountInfo = "/proc/self/mountinfo"

// Read parses the full mount table from /proc/self/mountinfo.
func Read() ([]Entry, error) {
	f, err := os.Open(selfMountInfo)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", selfMountInfo, err)
	}
	defer f.Close()
	return parse(f)
}

// parse implements the mountinfo(5) line format:
//   36 35 98:0 /mnt1 /mnt2 rw,noatime master:1 - ext3 /dev/root rw,errors=continue
func parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 10 {
			continue
		}

		sepIdx := -1
		for i, f := range fields {
			if f == "-" {
				sepIdx = i
				break
			}
		}
		if sepIdx < 0 || sepIdx+2 >= len(fields) {
			continue
		}

		var mountID, parentID int
		fmt.Sscanf(fields[0], "%d", &mountID)
		fmt.Sscanf(fields[1], "%d", &parentID)

		entries = append(entries, Entry{
			MountID:     mountID,
			ParentID:    parentID,
			Root:        fields[3],
			MountPoint:  fields[4],
			FSType:      fields[sepIdx+1],
			MountSource: fields[sepIdx+2],
		})
	}
	return entries, scanner.Err()
}

// ChildrenUnder returns every mount point strictly beneath root (not root
// itself), sorted by ascending path length so a caller processing them in
// order always handles a parent mount before any mount nested inside it.
func ChildrenUnder(entries []Entry, root string) []Entry {
	root = filepath.Clean(root)
	prefix := root + string(filepath.Separator)

	var children []Entry
	for _, e := range entries {
		mp := filepath.Clean(e.MountPoint)
		if mp == root {
			continue
		}
		if strings.HasPrefix(mp, prefix) {
			children = append(children, e)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		return len(children[i].MountPoint) < len(children[j].MountPoint)
	})
	return children
}

// DetectPartitions returns the set of root-level directories backed by a
// real block-device filesystem (ext4/erofs/f2fs), excluding the handful
// of pseudo and data directories that are never partition roots. The
// planner does not call it: its partition list is the configured one.
func DetectPartitions(entries []Entry) []string {
	excluded := map[string]bool{
		"data": true, "dev": true, "proc": true, "sys": true,
		"mnt": true, "storage": true, "apex": true,
	}
	fsTypes := map[string]bool{"ext4": true, "erofs": true, "f2fs": true}

	seen := make(map[string]bool)
	var partitions []string
	for _, e := range entries {
		mp := filepath.Clean(e.MountPoint)
		if filepath.Dir(mp) != "/" {
			continue
		}
		name := strings.TrimPrefix(mp, "/")
		if name == "" || excluded[name] || seen[name] {
			continue
		}
		if !fsTypes[e.FSType] {
			continue
		}
		seen[name] = true
		partitions = append(partitions, name)
	}
	sort.Strings(partitions)
	return partitions
}
