// Package nodetree builds the in-memory directory tree that drives the
// magic-mount executor: one Node per path, annotated with which module (if
// any) supplies it, so the walk in internal/magicmount can decide per
// directory whether a private tmpfs copy is needed.
package nodetree

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sysoverlay/sysoverlay/internal/pathutil"
)

// FileType classifies what a Node represents on disk.
type FileType int

const (
	TypeDirectory FileType = iota
	TypeRegularFile
	TypeSymlink
	TypeWhiteout
)

// Node is one entry in the composed tree rooted at a partition's real
// mount point. Invariants:
//   - I1: TypeDirectory nodes may have children; every other type has none.
//   - I2: a node with ModulePath set was contributed by exactly one module
//     and always replaces whatever the real filesystem has at this path.
//   - I3: Replace implies this directory's real-fs contents are hidden
//     entirely (an opaque directory), not merged with module children.
//   - I4: Skip nodes are never walked or mounted; they exist only to mark
//     a path as excluded (an overlay'd or ignored module subtree).
//   - I5: child names are unique within a parent (last module to register
//     wins and overwrites a prior child with the same name).
//   - I6: Whiteout nodes never carry a ModulePath of "" — a module always
//     owns its own whiteout entries. Symlink nodes carry one when a module
//     supplies them and have ModulePath "" when mirrored from the real fs.
type Node struct {
	Name       string
	Type       FileType
	Children   map[string]*Node
	ModulePath string // absolute module-tree source path contributing this node, "" for a pass-through real-fs mirror
	Replace    bool
	Skip       bool
	LinkTarget string // valid only for TypeSymlink
}

// NewDirectory constructs an empty directory node.
func NewDirectory(name string) *Node {
	return &Node{Name: name, Type: TypeDirectory, Children: make(map[string]*Node)}
}

// AddChild inserts or overwrites child under n, enforcing I1 and I5.
func (n *Node) AddChild(child *Node) error {
	if n.Type != TypeDirectory {
		return fmt.Errorf("cannot add child %q to non-directory node %q", child.Name, n.Name)
	}
	n.Children[child.Name] = child
	return nil
}

// SortedChildNames returns the node's children in deterministic order, so
// mount operations and logging are reproducible across runs.
func (n *Node) SortedChildNames() []string {
	names := make([]string, 0, len(n.Children))
	for name := range n.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildTree constructs the single composed root node for an entire
// magic-mount run by layering every magic-routed module's staged
// per-partition subdirectory over a mirror of the real on-disk tree.
// moduleContents maps module id -> partition -> that module's staged
// subdirectory for that partition (e.g. StagePath/vendor, never the
// module's bare StagePath, which also holds module.prop and other
// manifest files that must never be treated as mount content). partitions
// is the full partition list to consider; a module's content is placed
// under root.Children[partition] for each partition it has content for,
// so the whole magic-mount set resolves as one tree and one unit of work
// regardless of how many modules or partitions contributed to it.
func BuildTree(realRoot string, moduleContents map[string]map[string]string, partitions []string) (*Node, error) {
	root, err := mirrorReal(realRoot)
	if err != nil {
		return nil, fmt.Errorf("mirror real tree %s: %w", realRoot, err)
	}

	moduleIDs := make([]string, 0, len(moduleContents))
	for id := range moduleContents {
		moduleIDs = append(moduleIDs, id)
	}
	sort.Strings(moduleIDs)

	sortedPartitions := append([]string{}, partitions...)
	sort.Strings(sortedPartitions)

	for _, partition := range sortedPartitions {
		partNode, ok := root.Children[partition]
		if !ok {
			partNode = NewDirectory(partition)
			if err := root.AddChild(partNode); err != nil {
				return nil, err
			}
		}
		for _, id := range moduleIDs {
			dir, ok := moduleContents[id][partition]
			if !ok {
				continue
			}
			if _, err := os.Stat(dir); err != nil {
				continue
			}
			if err := overlayModuleDir(partNode, dir, dir); err != nil {
				return nil, fmt.Errorf("overlay module %s partition %s: %w", id, partition, err)
			}
		}
	}

	rehome(root, sortedPartitions, realRoot)

	return root, nil
}

// rehome moves, for each name in partitions, any child staged under
// root.Children["system"] up to become a direct child of root instead, but
// only where the partition genuinely has its own top-level mount point on
// this device: a real directory at realRoot/<partition> whose
// realRoot/system/<partition> counterpart is either absent or itself just a
// symlink. Modules built against the historical Android layout stage
// vendor/product/etc. content relative to "system" (the only mount point
// those partitions were reachable from before they got their own top-level
// mount points); on a device that still lacks a separate partition for one
// of them, that staged content must stay merged under system's own
// enclosure instead of being rehomed onto a synthetic, nonexistent target.
// The rehomed content is merged into whatever BuildTree's per-partition loop
// already placed at root.Children[partition], not substituted for it.
func rehome(root *Node, partitions []string, realRoot string) {
	system, ok := root.Children["system"]
	if !ok || system.Type != TypeDirectory {
		return
	}
	for _, partition := range partitions {
		if partition == "system" {
			continue
		}
		child, ok := system.Children[partition]
		if !ok {
			continue
		}
		if !hasOwnMountPoint(realRoot, partition) {
			continue
		}
		delete(system.Children, partition)
		mergePartitionNode(root, partition, child)
	}
}

// hasOwnMountPoint reports whether partition is reachable at its own
// top-level real mount point rather than only nested under /system.
func hasOwnMountPoint(realRoot, partition string) bool {
	fi, err := os.Lstat(filepath.Join(realRoot, partition))
	if err != nil || !fi.IsDir() {
		return false
	}
	sysFi, err := os.Lstat(filepath.Join(realRoot, "system", partition))
	if err != nil {
		return true
	}
	return sysFi.Mode()&os.ModeSymlink != 0
}

// mergePartitionNode folds child's children into whichever node already
// occupies root.Children[partition] (always present by the time rehome
// runs, since BuildTree's per-partition loop seeds every partition
// unconditionally), rather than overwriting it outright.
func mergePartitionNode(root *Node, partition string, child *Node) {
	existing, ok := root.Children[partition]
	if !ok || existing.Type != TypeDirectory {
		root.Children[partition] = child
		return
	}
	for name, grandchild := range child.Children {
		existing.Children[name] = grandchild
	}
}

// mirrorReal builds an unmodified, ModulePath-less reflection of the real
// filesystem tree at realRoot, one level deep at a time; the magic-mount
// walk only needs type information (directory/file/symlink) for nodes
// that no module touches, since those are bind-mirrored verbatim.
func mirrorReal(realRoot string) (*Node, error) {
	root := NewDirectory(filepath.Base(realRoot))
	entries, err := os.ReadDir(realRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return root, nil
		}
		return nil, err
	}
	for _, entry := range entries {
		child, err := mirrorEntry(filepath.Join(realRoot, entry.Name()), entry.Name())
		if err != nil {
			return nil, err
		}
		if err := root.AddChild(child); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func mirrorEntry(path, name string) (*Node, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return nil, err
		}
		return &Node{Name: name, Type: TypeSymlink, LinkTarget: target}, nil
	case fi.IsDir():
		return mirrorReal(path)
	default:
		return &Node{Name: name, Type: TypeRegularFile}, nil
	}
}

// overlayModuleDir walks a module's staged directory tree and registers
// every entry it contains as a ModulePath-owned Node, creating parent
// directories in the composed tree as needed and honoring .replace
// opaque markers along the way.
func overlayModuleDir(root *Node, moduleRoot, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(moduleRoot, dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.Name() == pathutil.ReplaceFileName {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dir, name)
		var childRel string
		if rel == "." {
			childRel = name
		} else {
			childRel = filepath.Join(rel, name)
		}

		node, err := nodeForModuleEntry(path, name, path)
		if err != nil {
			return err
		}
		if node.Type == TypeDirectory {
			if _, err := os.Stat(filepath.Join(path, pathutil.ReplaceFileName)); err == nil {
				node.Replace = true
			}
		}
		if err := placeAt(root, splitPath(childRel), node); err != nil {
			return err
		}
		if node.Type == TypeDirectory {
			if err := overlayModuleDir(root, moduleRoot, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func nodeForModuleEntry(path, name, modulePath string) (*Node, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(path)
		if err != nil {
			return nil, err
		}
		return &Node{Name: name, Type: TypeSymlink, ModulePath: modulePath, LinkTarget: target}, nil
	case pathutil.IsWhiteout(fi):
		return &Node{Name: name, Type: TypeWhiteout, ModulePath: modulePath}, nil
	case fi.IsDir():
		return &Node{Name: name, Type: TypeDirectory, Children: make(map[string]*Node), ModulePath: modulePath}, nil
	default:
		return &Node{Name: name, Type: TypeRegularFile, ModulePath: modulePath}, nil
	}
}

func splitPath(rel string) []string {
	if rel == "." || rel == "" {
		return nil
	}
	return filepathSplit(rel)
}

func filepathSplit(rel string) []string {
	var parts []string
	for {
		dir, file := filepath.Split(filepath.Clean(rel))
		parts = append([]string{file}, parts...)
		if dir == "" || dir == string(filepath.Separator) {
			break
		}
		rel = filepath.Clean(dir)
		if rel == "." {
			break
		}
	}
	return parts
}

// placeAt descends the composed tree along segs, creating intermediate
// directories as needed, and sets leaf as the final node (I5: a later
// module occupying the same path overwrites the earlier node; a non-Replace
// directory leaf keeps the children already present at that path).
func placeAt(root *Node, segs []string, leaf *Node) error {
	cur := root
	for i, seg := range segs {
		last := i == len(segs)-1
		if last {
			leaf.Name = seg
			if existing, ok := cur.Children[seg]; ok && existing.Type == TypeDirectory &&
				leaf.Type == TypeDirectory && !leaf.Replace {
				for name, child := range existing.Children {
					leaf.Children[name] = child
				}
			}
			return cur.AddChild(leaf)
		}
		child, ok := cur.Children[seg]
		if !ok || child.Type != TypeDirectory {
			child = NewDirectory(seg)
			if err := cur.AddChild(child); err != nil {
				return err
			}
		}
		cur = child
	}
	return nil
}
