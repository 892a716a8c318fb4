// Package stealth exposes the single hook point the controller calls
// after finalizing mounts, where a platform build could hide traces of
// the mount composition from inspection. This engine ships only the
// no-op implementation; see DESIGN.md for why it stops here.
package stealth

// Finalizer is called after every mount operation has completed, once per
// overlay operation, with that operation's partition mount point.
type Finalizer interface {
	Finalize(mountPoint string) error
}

// Noop performs no stealth action. It is the only Finalizer this engine
// ships.
type Noop struct{}

func (Noop) Finalize(mountPoint string) error { return nil }
