//go:build linux

package storage

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

func mountTmpfs(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}
	if err := unix.Mount("tmpfs", path, "tmpfs", 0, "mode=0755"); err != nil {
		return fmt.Errorf("mount tmpfs: %w", err)
	}
	return nil
}

func unmount(path string) error {
	return unix.Unmount(path, unix.MNT_DETACH)
}

func xattrSupported(path string) bool {
	probe := path + "/.sysoverlay_xattr_chk"
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return false
	}
	defer os.Remove(probe)
	err := unix.Lsetxattr(probe, "trusted.sysoverlay_probe", []byte("1"), 0)
	return err != unix.ENOTSUP && err != unix.EOPNOTSUPP
}

func tmpfsXattrProbe(scratchPath string) bool {
	if err := mountTmpfs(scratchPath); err != nil {
		return false
	}
	defer unmount(scratchPath)
	return xattrSupported(scratchPath)
}

func imageExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func createExt4Image(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Truncate(512 * 1024 * 1024); err != nil {
		return err
	}
	return exec.Command("mkfs.ext4", "-F", "-q", path).Run()
}

func repairExt4Image(path string) error {
	cmd := exec.Command("e2fsck", "-yf", path)
	err := cmd.Run()
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() <= 2 {
		return nil
	}
	return err
}

func mountExt4Image(imagePath, mountPoint string) error {
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return err
	}
	loopDev, err := attachLoopDevice(imagePath)
	if err != nil {
		return fmt.Errorf("attach loop device: %w", err)
	}
	if err := unix.Mount(loopDev, mountPoint, "ext4", 0, ""); err != nil {
		return fmt.Errorf("mount %s at %s: %w", loopDev, mountPoint, err)
	}
	return nil
}

func attachLoopDevice(imagePath string) (string, error) {
	out, err := exec.Command("losetup", "--find", "--show", imagePath).Output()
	if err != nil {
		return "", err
	}
	dev := string(out)
	for len(dev) > 0 && (dev[len(dev)-1] == '\n' || dev[len(dev)-1] == '\r') {
		dev = dev[:len(dev)-1]
	}
	return dev, nil
}

func createErofsImage(sourceDir, imagePath string) error {
	return exec.Command("mkfs.erofs", "-zlz4hc", "-x256", imagePath, sourceDir).Run()
}

func mountErofsImage(imagePath, mountPoint string) error {
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return err
	}
	loopDev, err := attachLoopDevice(imagePath)
	if err != nil {
		return fmt.Errorf("attach loop device: %w", err)
	}
	if err := unix.Mount(loopDev, mountPoint, "erofs", unix.MS_RDONLY, "noatime"); err != nil {
		return fmt.Errorf("mount erofs %s at %s: %w", loopDev, mountPoint, err)
	}
	return nil
}

func erofsSupported() bool {
	data, err := os.ReadFile("/proc/filesystems")
	if err != nil {
		return false
	}
	return containsFSName(string(data), "erofs")
}

func containsFSName(procFilesystems, name string) bool {
	for _, line := range splitLines(procFilesystems) {
		if line == name || (len(line) > len(name) && line[len(line)-len(name):] == name) {
			return true
		}
	}
	return false
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return lines
}

func statvfsUsage(path string) (Usage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	used := total - free
	var pct float64
	if total > 0 {
		pct = float64(used) / float64(total) * 100
	}
	return Usage{TotalBytes: total, UsedBytes: used, Percent: pct}, nil
}
