// Package umount maintains a process-global, append-only ledger of paths
// that should be hidden from the view a process sees when it later
// unmounts and inspects what's left at a mount point -- used so the
// module content underneath a committed erofs image never becomes
// visible again after an app-triggered unmount.
package umount

import "sync"

// Hider performs the platform-specific mechanism that actually hides a
// path once the ledger commits it. It is an interface, not a concrete
// type, so the hide mechanism (bind-mounting an empty replacement,
// tmpfs-shadowing, or a no-op in environments where hiding isn't
// applicable) can be swapped per platform or for tests.
type Hider interface {
	Hide(path string) error
}

// NoopHider never hides anything; New uses it when given a nil Hider,
// which is how the controller builds its ledger.
type NoopHider struct{}

func (NoopHider) Hide(path string) error { return nil }

// Ledger is a process-wide, append-only record of scheduled and
// committed paths. A path once committed stays committed: Commit is
// idempotent, so calling it twice for the same path is harmless.
type Ledger struct {
	mu        sync.Mutex
	scheduled map[string]bool
	committed map[string]bool
	hider     Hider
}

// New constructs a Ledger backed by hider. Passing a nil hider is
// equivalent to NoopHider{}.
func New(hider Hider) *Ledger {
	if hider == nil {
		hider = NoopHider{}
	}
	return &Ledger{
		scheduled: make(map[string]bool),
		committed: make(map[string]bool),
		hider:     hider,
	}
}

// Schedule marks path as pending hiding without performing it yet, so the
// controller can batch every mount point discovered across a run before
// committing them all at once at Finalize.
func (l *Ledger) Schedule(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scheduled[path] = true
}

// Commit hides path immediately (without requiring a prior Schedule) and
// records it as committed. Calling Commit again for the same path is a
// no-op that returns nil.
func (l *Ledger) Commit(path string) error {
	l.mu.Lock()
	if l.committed[path] {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	if err := l.hider.Hide(path); err != nil {
		return err
	}

	l.mu.Lock()
	l.committed[path] = true
	delete(l.scheduled, path)
	l.mu.Unlock()
	return nil
}

// CommitAll commits every path Schedule has queued but Commit hasn't yet
// processed, returning the first error encountered while still attempting
// the rest.
func (l *Ledger) CommitAll() error {
	l.mu.Lock()
	pending := make([]string, 0, len(l.scheduled))
	for path := range l.scheduled {
		if !l.committed[path] {
			pending = append(pending, path)
		}
	}
	l.mu.Unlock()

	var firstErr error
	for _, path := range pending {
		if err := l.Commit(path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Committed reports whether path has already been committed.
func (l *Ledger) Committed(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committed[path]
}
