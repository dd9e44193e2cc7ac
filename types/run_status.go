// run_status.go defines the lifecycle states of a pipeline run.

package types

import (
	"fmt"
)

type RunStatus int32

const (
	RunStatusInitialized = RunStatus(iota)
	RunStatusStarted
	RunStatusStopped
	RunStatusCompleted
)

func (s RunStatus) IsTerminal() bool {
	return s == RunStatusStopped || s == RunStatusCompleted
}

func (s RunStatus) String() string {
	switch s {
	case RunStatusInitialized:
		return "INITIALIZED"
	case RunStatusStarted:
		return "STARTED"
	case RunStatusStopped:
		return "STOPPED"
	case RunStatusCompleted:
		return "COMPLETED"
	default:
		return fmt.Sprintf("RunStatus(%d)", int32(s))
	}
}
