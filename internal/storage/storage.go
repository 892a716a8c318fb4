// Package storage selects and manages the writable backing volume that
// staged module content and the magic-mount tmpfs workspace live on: an
// erofs-staging area that commits to a read-only erofs image, a plain
// tmpfs, or a repaired ext4 loop image, in that preference order.
package storage

import (
	"fmt"
)

// Mode names the backing mechanism a StorageHandle currently uses.
type Mode int

const (
	ModeTmpfs Mode = iota
	ModeExt4
	ModeErofsStaging
	ModeErofs
)

func (m Mode) String() string {
	switch m {
	case ModeTmpfs:
		return "tmpfs"
	case ModeExt4:
		return "ext4"
	case ModeErofsStaging:
		return "erofs_staging"
	case ModeErofs:
		return "erofs"
	default:
		return "unknown"
	}
}

// Layout names where the writable rw-overlay area lives relative to the
// read-only staged content, mirroring the three layouts the upstream
// backing-image scheme supports.
type Layout int

const (
	// LayoutContained keeps rw content inside the same mount as the
	// staged tree (tmpfs and plain ext4 modes).
	LayoutContained Layout = iota
	// LayoutSplit keeps rw content at a separately mounted path, used
	// once an erofs_staging handle commits to a read-only erofs image.
	LayoutSplit
	// LayoutDirect exposes the rw base directly without any backing
	// image at all (used only when SystemRWDir is configured to point
	// at an already-writable path the kernel itself maintains).
	LayoutDirect
)

// Handle is a live storage backend: a mounted volume plus enough state to
// commit or report on it later in the run.
type Handle struct {
	MountPoint   string
	Mode         Mode
	BackingImage string // path to the loop image file, "" for tmpfs
	Layout       Layout
	RWBase       string // writable area, meaningful for LayoutSplit/LayoutDirect
}

// Options configures Setup's mode-selection policy.
type Options struct {
	MountPoint          string
	ImagePath           string
	ModuleDir           string
	PreferErofsStaging  bool
	ExtImagePreexistOnly bool
	MountSource         string
	SystemRWDir         string
}

// Setup selects a storage backend according to the mode-selection policy:
// erofs-staging first when requested and kernel-supported, else tmpfs
// when the kernel's tmpfs supports trusted.* xattrs, else a repaired (or,
// if permitted, freshly created) ext4 loop image. The first mode that
// mounts successfully wins; every other attempt is torn down before the
// next is tried.
func Setup(opts Options) (*Handle, error) {
	if opts.PreferErofsStaging && erofsSupported() {
		if h, err := setupErofsStaging(opts); err == nil {
			return h, nil
		}
	}

	if h, err := trySetupTmpfs(opts); err == nil {
		return h, nil
	}

	return setupExt4Image(opts)
}

// trySetupTmpfs mounts a plain tmpfs at opts.MountPoint and verifies it
// supports the trusted.* xattr namespace the overlay/magic-mount
// executors depend on for SELinux context and opacity tagging; a tmpfs
// lacking xattr support is unmounted and rejected rather than used.
func trySetupTmpfs(opts Options) (*Handle, error) {
	if err := mountTmpfs(opts.MountPoint); err != nil {
		return nil, fmt.Errorf("mount tmpfs at %s: %w", opts.MountPoint, err)
	}
	if !xattrSupported(opts.MountPoint) {
		_ = unmount(opts.MountPoint)
		return nil, fmt.Errorf("tmpfs at %s lacks trusted.* xattr support", opts.MountPoint)
	}
	return &Handle{MountPoint: opts.MountPoint, Mode: ModeTmpfs, Layout: LayoutContained}, nil
}

// setupExt4Image mounts opts.ImagePath as a loop-backed ext4 filesystem,
// attempting a repair-and-retry once on a failed first mount. When
// ExtImagePreexistOnly is set and the image doesn't already exist, setup
// fails outright rather than fabricating a fresh, empty image.
func setupExt4Image(opts Options) (*Handle, error) {
	exists := imageExists(opts.ImagePath)
	if !exists {
		if opts.ExtImagePreexistOnly {
			return nil, fmt.Errorf("ext4 image %s does not exist and auto-create is disabled", opts.ImagePath)
		}
		if err := createExt4Image(opts.ImagePath); err != nil {
			return nil, fmt.Errorf("create ext4 image %s: %w", opts.ImagePath, err)
		}
	}

	if err := mountExt4Image(opts.ImagePath, opts.MountPoint); err != nil {
		if repairErr := repairExt4Image(opts.ImagePath); repairErr != nil {
			return nil, fmt.Errorf("mount ext4 image %s failed (%v) and repair failed: %w", opts.ImagePath, err, repairErr)
		}
		if err := mountExt4Image(opts.ImagePath, opts.MountPoint); err != nil {
			return nil, fmt.Errorf("mount ext4 image %s failed even after repair: %w", opts.ImagePath, err)
		}
	}

	return &Handle{
		MountPoint:   opts.MountPoint,
		Mode:         ModeExt4,
		BackingImage: opts.ImagePath,
		Layout:       LayoutContained,
	}, nil
}

// setupErofsStaging mounts a writable tmpfs staging area that will later
// be packed into a read-only erofs image by Commit.
func setupErofsStaging(opts Options) (*Handle, error) {
	if err := mountTmpfs(opts.MountPoint); err != nil {
		return nil, fmt.Errorf("mount erofs staging tmpfs at %s: %w", opts.MountPoint, err)
	}
	return &Handle{MountPoint: opts.MountPoint, Mode: ModeErofsStaging, Layout: LayoutContained}, nil
}

// Commit finalizes an erofs_staging handle by packing its tmpfs tree into
// a read-only erofs image, unmounting the staging tmpfs, and mounting the
// finalized image in its place with its writable area split out to
// rwBase. Any other mode is a no-op: only erofs_staging has a separate
// "finalize" step.
func (h *Handle) Commit(imagePath, rwBase string, scheduleHide func(string) error) error {
	if h.Mode != ModeErofsStaging {
		return nil
	}

	if err := createErofsImage(h.MountPoint, imagePath); err != nil {
		return fmt.Errorf("pack erofs image from %s: %w", h.MountPoint, err)
	}
	if err := unmount(h.MountPoint); err != nil {
		return fmt.Errorf("unmount staging tmpfs %s: %w", h.MountPoint, err)
	}
	if err := mountErofsImage(imagePath, h.MountPoint); err != nil {
		return fmt.Errorf("mount finalized erofs image %s: %w", imagePath, err)
	}
	if scheduleHide != nil {
		if err := scheduleHide(h.MountPoint); err != nil {
			return fmt.Errorf("schedule hide for %s: %w", h.MountPoint, err)
		}
	}

	h.Mode = ModeErofs
	h.BackingImage = imagePath
	h.Layout = LayoutSplit
	h.RWBase = rwBase
	return nil
}

// Usage reports the backend's space usage in bytes and percent.
type Usage struct {
	TotalBytes uint64
	UsedBytes  uint64
	Percent    float64
}

func (h *Handle) Usage() (Usage, error) {
	return statvfsUsage(h.MountPoint)
}

// Status is the JSON-serializable snapshot returned by the `status` CLI
// subcommand.
type Status struct {
	Type           string   `json:"type"`
	MountPoint     string   `json:"mount_point"`
	UsagePercent   float64  `json:"usage_percent"`
	TotalSize      uint64   `json:"total_size"`
	UsedSize       uint64   `json:"used_size"`
	SupportedModes []string `json:"supported_modes"`
}

// ProbeSupportedModes reports which storage modes the running kernel can
// actually back, by mounting a scratch tmpfs and checking xattr support,
// and checking /proc/filesystems for erofs. ext4 is always listed, without
// a check. This is
// a live probe, never cached, since it only runs on-demand for `status`.
func ProbeSupportedModes(scratchPath string) []string {
	var modes []string
	modes = append(modes, ModeExt4.String())
	if tmpfsXattrProbe(scratchPath) {
		modes = append(modes, ModeTmpfs.String())
	}
	if erofsSupported() {
		modes = append(modes, ModeErofsStaging.String(), ModeErofs.String())
	}
	return modes
}
