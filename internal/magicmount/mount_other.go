//go:build !linux

package magicmount

import (
	"fmt"

	"github.com/sysoverlay/sysoverlay/internal/nodetree"
)

type Executor struct {
	WorkspaceRoot string
}

func (e *Executor) Mount(root *nodetree.Node, realRoot string) error {
	return fmt.Errorf("magic mount unsupported on this platform")
}
