// Package modsync copies enabled modules from their read-only metadata
// directories into a writable staging volume, pruning orphaned staged
// modules and carrying over extended attributes as it goes. This is the
// only phase permitted to run per-module work concurrently; the mount
// phases downstream are strictly sequential.
package modsync

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/sysoverlay/sysoverlay/internal/logging"
	"github.com/sysoverlay/sysoverlay/internal/module"
	"github.com/sysoverlay/sysoverlay/internal/observability"
	"github.com/sysoverlay/sysoverlay/internal/pathutil"
	"github.com/sysoverlay/sysoverlay/internal/pkg/fsutil"
)

// MaxConcurrency bounds the number of modules synced in parallel. It is a
// variable (not a const) so tests can dial it down to force serialization.
var MaxConcurrency = 4

// Sync copies each module's whole directory tree into stageRoot/<id>,
// skipping modules whose staged copy already matches (unless force is set).
// It returns a copy of modules with each StagePath set, or the first error
// seen, after waiting for in-flight siblings to finish.
func Sync(ctx context.Context, modules []module.Module, stageRoot string, force bool) ([]module.Module, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxConcurrency)

	result := make([]module.Module, len(modules))
	copy(result, modules)

	for i := range result {
		i := i
		g.Go(func() error {
			m := &result[i]
			stagePath := filepath.Join(stageRoot, m.ID)
			if !force && !needsSync(m.SourcePath, stagePath) {
				m.StagePath = stagePath
				return nil
			}
			spanCtx, span := observability.StartSpan(ctx, "modsync.module", observability.AttrModuleID.String(m.ID))
			err := syncModule(spanCtx, m.SourcePath, stagePath)
			if err != nil {
				observability.SetSpanError(span, err)
			} else {
				observability.SetSpanOK(span)
			}
			span.End()
			if err != nil {
				return fmt.Errorf("sync module %s: %w", m.ID, err)
			}
			m.StagePath = stagePath
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := applyOpaqueFlags(stageRoot); err != nil {
		logging.Op().Warn("failed to apply overlay opaque flags", "error", err)
	}
	return result, nil
}

// needsSync reports whether src's module.prop differs from the staged
// copy, or either side has no module.prop (which includes a staged copy
// that doesn't exist yet). Comparing hashes rather
// than raw bytes keeps this cheap to extend to larger manifest files
// later without changing the comparison shape.
func needsSync(src, dst string) bool {
	srcPath := filepath.Join(src, "module.prop")
	dstPath := filepath.Join(dst, "module.prop")

	dstHash, err := fsutil.HashFile(dstPath)
	if err != nil {
		return true
	}
	srcHash, err := fsutil.HashFile(srcPath)
	if err != nil {
		return true
	}
	return srcHash != dstHash
}

// syncModule replaces dst with a fresh tree copy of src, built in a
// sibling temp directory and atomically renamed into place so a crash
// mid-copy never leaves a half-written module visible to the planner.
func syncModule(ctx context.Context, src, dst string) error {
	tmp := dst + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(tmp), 0o755); err != nil {
		return err
	}
	if err := copyTree(ctx, src, tmp); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	if err := os.RemoveAll(dst); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("rename %s -> %s: %w", tmp, dst, err)
	}
	return nil
}

// workItem is one pending copy task on the iterative tree-copy worklist.
// Using an explicit stack instead of recursion keeps stack depth bounded
// regardless of how deeply a module's tree nests.
type workItem struct {
	src, dst string
}

// copyTree performs an iterative, worklist-driven copy of src onto dst,
// preserving symlinks and device nodes and reflinking regular files where
// the backing filesystem supports it.
func copyTree(ctx context.Context, src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("copyTree: src %s is not a directory", src)
	}
	if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
		return err
	}

	stack := []workItem{{src: src, dst: dst}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(item.src)
		if err != nil {
			return fmt.Errorf("read dir %s: %w", item.src, err)
		}
		for _, entry := range entries {
			srcPath := filepath.Join(item.src, entry.Name())
			dstPath := filepath.Join(item.dst, entry.Name())

			fi, err := entry.Info()
			if err != nil {
				return fmt.Errorf("stat %s: %w", srcPath, err)
			}

			switch {
			case fi.Mode()&os.ModeSymlink != 0:
				if err := copySymlink(srcPath, dstPath); err != nil {
					return err
				}
			case pathutil.IsWhiteout(fi):
				if err := pathutil.MakeDeviceNode(dstPath, os.ModeCharDevice, 0); err != nil {
					return err
				}
			case fi.IsDir():
				if err := os.MkdirAll(dstPath, fi.Mode().Perm()); err != nil {
					return err
				}
				_ = pathutil.CopyExtendedAttributes(srcPath, dstPath)
				stack = append(stack, workItem{src: srcPath, dst: dstPath})
				continue
			case fi.Mode()&fs.ModeDevice != 0 || fi.Mode()&fs.ModeNamedPipe != 0:
				rdev := rawDeviceNumber(fi)
				if err := pathutil.MakeDeviceNode(dstPath, fi.Mode(), rdev); err != nil {
					return err
				}
			default:
				if _, err := pathutil.ReflinkOrCopy(srcPath, dstPath); err != nil {
					return fmt.Errorf("copy %s -> %s: %w", srcPath, dstPath, err)
				}
			}
			_ = pathutil.CopyExtendedAttributes(srcPath, dstPath)
		}
	}
	return nil
}

func copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("readlink %s: %w", src, err)
	}
	if err := os.Symlink(target, dst); err != nil {
		return fmt.Errorf("symlink %s -> %s: %w", target, dst, err)
	}
	return nil
}

// PruneOrphans removes staged module directories under stageRoot that no
// longer correspond to an enabled module, preserving reserved names.
func PruneOrphans(stageRoot string, enabled []module.Module) error {
	keep := make(map[string]bool, len(enabled))
	for _, m := range enabled {
		keep[m.ID] = true
	}

	entries, err := os.ReadDir(stageRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read stage root %s: %w", stageRoot, err)
	}

	var firstErr error
	for _, entry := range entries {
		name := entry.Name()
		if name == "lost+found" || name == "sysoverlay" || keep[name] {
			continue
		}
		if err := os.RemoveAll(filepath.Join(stageRoot, name)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// applyOpaqueFlags scans the staged tree for .replace marker files and
// tags their parent directory as an OverlayFS opaque directory, so a
// module can shadow an entire lower-layer subtree rather than merging
// with it.
func applyOpaqueFlags(stageRoot string) error {
	return filepath.WalkDir(stageRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != pathutil.ReplaceFileName {
			return nil
		}
		parent := filepath.Dir(path)
		if err := pathutil.SetOverlayOpaque(parent); err != nil {
			logging.Op().Warn("failed to set overlay opaque", "dir", parent, "error", err)
		}
		return nil
	})
}
