// Package metrics collects and exposes sysoverlayd run observability data.
//
// # Design rationale
//
// Two metric stores coexist in this package:
//
//  1. The in-process Metrics struct (atomic run counters), whose
//     Snapshot JSONHandler serves as JSON.
//  2. A Prometheus registry (prometheus.go) whose Handler serves the
//     collectors in exposition format.
//
// sysoverlayd itself starts no HTTP server and never calls InitPrometheus,
// so neither handler is reachable from the shipped binary.
//
// Unlike a long-running daemon, sysoverlayd is a single boot-time process:
// there is no time-series ring buffer here, only a run summary that is
// populated once per phase.
//
// # Concurrency
//
// Every counter is an atomic, so any Record* method is safe to call from
// several goroutines. In sysoverlayd all of them, RecordModuleSynced
// included, are called from the single-threaded controller (after
// modsync.Sync has returned).
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics holds one run's counters.
type Metrics struct {
	startedAt time.Time

	modulesScanned  atomic.Int64
	modulesSynced   atomic.Int64
	bytesSynced     atomic.Int64
	overlayMounted  atomic.Int64
	magicMounted    atomic.Int64
	nestedPreserved atomic.Int64
	conflicts       atomic.Int64
}

var global = &Metrics{startedAt: time.Now()}

// Global returns the process-wide run metrics.
func Global() *Metrics {
	return global
}

// StartTime returns when this run began collecting metrics.
func StartTime() time.Time {
	return global.startedAt
}

func (m *Metrics) RecordModulesScanned(n int) {
	m.modulesScanned.Add(int64(n))
}

func (m *Metrics) RecordModuleSynced(bytes int64) {
	m.modulesSynced.Add(1)
	m.bytesSynced.Add(bytes)
}

func (m *Metrics) RecordOverlayMounted(n int) {
	m.overlayMounted.Add(int64(n))
}

func (m *Metrics) RecordMagicMounted(n int) {
	m.magicMounted.Add(int64(n))
}

func (m *Metrics) RecordNestedPreserved() {
	m.nestedPreserved.Add(1)
}

func (m *Metrics) RecordConflicts(n int) {
	m.conflicts.Add(int64(n))
}

// Snapshot returns a JSON-serializable view of the run so far.
func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"started_at":       m.startedAt,
		"elapsed_ms":       time.Since(m.startedAt).Milliseconds(),
		"modules_scanned":  m.modulesScanned.Load(),
		"modules_synced":   m.modulesSynced.Load(),
		"bytes_synced":     m.bytesSynced.Load(),
		"overlay_mounted":  m.overlayMounted.Load(),
		"magic_mounted":    m.magicMounted.Load(),
		"nested_preserved": m.nestedPreserved.Load(),
		"conflicts":        m.conflicts.Load(),
	}
}

// JSONHandler serves the run snapshot as JSON.
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Snapshot())
	})
}
