//go:build linux

package pathutil

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// LGetFileContext returns the SELinux context stored on path's
// security.selinux xattr, without following symlinks.
func LGetFileContext(path string) (string, error) {
	buf := make([]byte, 256)
	n, err := unix.Lgetxattr(path, SelinuxXattr, buf)
	if err != nil {
		return "", fmt.Errorf("lgetxattr %s: %w", path, err)
	}
	return strings.TrimRight(string(buf[:n]), "\x00"), nil
}

// LSetFileContext sets path's SELinux context, best-effort: failures are
// returned so callers can log at debug and continue, matching the upstream
// "label propagation never aborts the run" policy.
func LSetFileContext(path, context string) error {
	if err := unix.Lsetxattr(path, SelinuxXattr, []byte(context), 0); err != nil {
		return fmt.Errorf("lsetxattr %s=%s: %w", path, context, err)
	}
	return nil
}

// SetOverlayOpaque tags path as an OverlayFS opaque directory.
func SetOverlayOpaque(path string) error {
	if err := unix.Lsetxattr(path, OverlayOpaqueXattr, []byte("y"), 0); err != nil {
		return fmt.Errorf("set overlay opaque xattr on %s: %w", path, err)
	}
	return nil
}

// IsOverlayOpaque reports whether path carries trusted.overlay.opaque=y.
func IsOverlayOpaque(path string) bool {
	buf := make([]byte, 4)
	n, err := unix.Lgetxattr(path, OverlayOpaqueXattr, buf)
	if err != nil {
		return false
	}
	return string(buf[:n]) == "y"
}

// IsOverlayXattrSupported probes whether the filesystem backing path
// supports trusted.* xattrs (tmpfs needs CONFIG_TMPFS_XATTR=y for these).
func IsOverlayXattrSupported(path string) bool {
	var buf [1]byte
	_, err := unix.Lgetxattr(path, "trusted.sysoverlay_probe", buf[:])
	return err != unix.ENOTSUP && err != unix.EOPNOTSUPP
}

// CopyExtendedAttributes best-effort copies the SELinux context and any
// trusted.overlay.* xattrs from src to dst. A rootfs-labeled source is
// rewritten to system_file, matching the upstream rootfs special case.
func CopyExtendedAttributes(src, dst string) error {
	if ctx, err := LGetFileContext(src); err == nil {
		if ctx == ContextRootfs {
			ctx = ContextSystem
		}
		_ = LSetFileContext(dst, ctx)
	}

	if opaque, err := getxattr(src, OverlayOpaqueXattr); err == nil {
		if err := unix.Lsetxattr(dst, OverlayOpaqueXattr, opaque, 0); err != nil {
			return fmt.Errorf("copy opaque xattr %s -> %s: %w", src, dst, err)
		}
	}

	names, err := listxattr(src)
	if err == nil {
		for _, name := range names {
			if strings.HasPrefix(name, "trusted.overlay.") && name != OverlayOpaqueXattr {
				if val, err := getxattr(src, name); err == nil {
					_ = unix.Lsetxattr(dst, name, val, 0)
				}
			}
		}
	}
	return nil
}

func getxattr(path, name string) ([]byte, error) {
	sz, err := unix.Lgetxattr(path, name, nil)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, sz)
	n, err := unix.Lgetxattr(path, name, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func listxattr(path string) ([]string, error) {
	sz, err := unix.Llistxattr(path, nil)
	if err != nil {
		return nil, err
	}
	if sz == 0 {
		return nil, nil
	}
	buf := make([]byte, sz)
	n, err := unix.Llistxattr(path, buf)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, part := range strings.Split(string(buf[:n]), "\x00") {
		if part != "" {
			names = append(names, part)
		}
	}
	return names, nil
}

// ReflinkOrCopy clones src to dst via FICLONE when the backing filesystem
// supports it, falling back to a full byte copy otherwise. Returns the
// number of bytes in the resulting file.
func ReflinkOrCopy(src, dst string) (int64, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", src, err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", dst, err)
	}
	defer dstFile.Close()

	if err := unix.IoctlFileClone(int(dstFile.Fd()), int(srcFile.Fd())); err == nil {
		info, err := srcFile.Stat()
		if err != nil {
			return 0, err
		}
		if err := dstFile.Chmod(info.Mode()); err != nil {
			return 0, err
		}
		return info.Size(), nil
	}

	n, err := io.Copy(dstFile, srcFile)
	if err != nil {
		return 0, fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	if info, err := srcFile.Stat(); err == nil {
		_ = dstFile.Chmod(info.Mode())
	}
	return n, nil
}

// MakeDeviceNode recreates a character/block/fifo special file at path with
// the given mode and raw device number.
func MakeDeviceNode(path string, mode os.FileMode, rdev uint64) error {
	var sysMode uint32
	switch {
	case mode&os.ModeCharDevice != 0:
		sysMode = unix.S_IFCHR
	case mode&os.ModeDevice != 0:
		sysMode = unix.S_IFBLK
	case mode&os.ModeNamedPipe != 0:
		sysMode = unix.S_IFIFO
	default:
		sysMode = unix.S_IFREG
	}
	sysMode |= uint32(mode.Perm())

	if err := unix.Mknod(path, sysMode, int(rdev)); err != nil {
		return fmt.Errorf("mknod %s: %w", path, err)
	}
	return nil
}

// IsWhiteout reports whether fi describes the KernelSU/OverlayFS whiteout
// convention: a character device with rdev == 0.
func IsWhiteout(fi os.FileInfo) bool {
	if fi.Mode()&os.ModeCharDevice == 0 {
		return false
	}
	stat, ok := fi.Sys().(*unix.Stat_t)
	if !ok {
		return false
	}
	return stat.Rdev == 0
}
