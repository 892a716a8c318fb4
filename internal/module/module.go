// Package module defines the Module data type: a self-contained overlay
// contribution rooted at a metadata directory, and its per-partition rule
// table.
package module

// MountMode names how a module's content for one partition is composed into
// the final view.
type MountMode int

const (
	// ModeOverlay layers the module's partition subdirectory into that
	// partition's OverlayFS stack. This is the default.
	ModeOverlay MountMode = iota
	// ModeMagic routes the module through the magic-mount fallback instead
	// of OverlayFS.
	ModeMagic
	// ModeHymoFs records a planner.HymoOperation: a bind-like injection from
	// the module's partition subdirectory directly onto /<partition>,
	// bypassing both overlay and magic-mount tree construction. The mount
	// executor does not carry out HymoOperations; they are only listed in
	// the run state.
	ModeHymoFs
	// ModeIgnore excludes the module's partition subdirectory from this run
	// entirely.
	ModeIgnore
)

func (m MountMode) String() string {
	switch m {
	case ModeOverlay:
		return "overlay"
	case ModeMagic:
		return "magic"
	case ModeHymoFs:
		return "hymofs"
	case ModeIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// ParseMountMode maps a config/rule-file string to a MountMode, defaulting
// to ModeOverlay for unrecognized or empty values (matching "auto").
func ParseMountMode(s string) MountMode {
	switch s {
	case "magic":
		return ModeMagic
	case "hymofs":
		return ModeHymoFs
	case "ignore":
		return ModeIgnore
	default:
		return ModeOverlay
	}
}

// RuleTable maps a partition name to the MountMode a module requests for it.
// A lookup miss yields the default mode for modules without per-partition
// overrides.
type RuleTable struct {
	Default  MountMode
	Overrides map[string]MountMode
}

// NewRuleTable builds a rule table defaulting every partition to ModeOverlay.
func NewRuleTable() RuleTable {
	return RuleTable{Default: ModeOverlay, Overrides: make(map[string]MountMode)}
}

// GetMode resolves the mode for partition, falling back to the table default.
func (t RuleTable) GetMode(partition string) MountMode {
	if mode, ok := t.Overrides[partition]; ok {
		return mode
	}
	return t.Default
}

// PropMap holds the free-form key=value pairs parsed from a module's
// module.prop file.
type PropMap map[string]string

// Module is a scanned, validated module ready for sync/planning. It is
// immutable once constructed by Inventory.
type Module struct {
	ID         string
	SourcePath string // read-only metadata dir, e.g. /data/adb/modules/<id>
	StagePath  string // writable copy under the staging volume, filled after Sync
	Props      PropMap
	Rules      RuleTable

	// DeclaredID is the id field parsed from module.prop, which may disagree
	// with the directory name; disagreement is reported but non-fatal.
	DeclaredID string
}

func (m Module) Name() string {
	if n, ok := m.Props["name"]; ok && n != "" {
		return n
	}
	return m.ID
}

func (m Module) Version() string  { return m.Props["version"] }
func (m Module) Author() string   { return m.Props["author"] }
func (m Module) Description() string { return m.Props["description"] }
