package pathutil

import "strings"

// SELinux and overlay xattr names, and the conservative fallback contexts
// used when label propagation can't determine a better one from the source
// path or a live system reference.
const (
	SelinuxXattr       = "security.selinux"
	OverlayOpaqueXattr = "trusted.overlay.opaque"

	ContextSystem     = "u:object_r:system_file:s0"
	ContextVendor     = "u:object_r:vendor_file:s0"
	ContextHAL        = "u:object_r:same_process_hal_file:s0"
	ContextVendorExec = "u:object_r:vendor_file:s0"
	ContextRootfs     = "u:object_r:rootfs:s0"
	ContextKsuFile    = "u:object_r:ksu_file:s0"
	ContextUnlabeled  = "u:object_r:unlabeled:s0"
)

// GuessContextByPath returns the conventional SELinux context for a path
// under /vendor or /odm based on its subtree, falling back to the generic
// system_file context everywhere else.
func GuessContextByPath(path string) string {
	if strings.HasPrefix(path, "/vendor") || strings.HasPrefix(path, "/odm") {
		switch {
		case strings.Contains(path, "/lib/") || strings.Contains(path, "/lib64/") || strings.HasSuffix(path, ".so"):
			return ContextHAL
		case strings.Contains(path, "/bin/"):
			return ContextVendorExec
		case strings.Contains(path, "/firmware"):
			return ContextVendor
		default:
			return ContextVendor
		}
	}
	return ContextSystem
}
