package pump

import (
	"github.com/xaionaro-go/avpump/types"
	"go.uber.org/atomic"
)

// RunContext is the part of a run shared with the control goroutine.
type RunContext struct {
	stopRequested atomic.Bool
	status        atomic.Int32
}

func NewRunContext() *RunContext {
	return &RunContext{}
}

// RequestStop asks the scheduler to stop. It is observed at the top of the
// next iteration; the phase being run is never interrupted.
func (rc *RunContext) RequestStop() {
	rc.stopRequested.Store(true)
}

func (rc *RunContext) IsStopRequested() bool {
	return rc.stopRequested.Load()
}

func (rc *RunContext) Status() types.RunStatus {
	return types.RunStatus(rc.status.Load())
}

func (rc *RunContext) compareAndSwapStatus(old, new types.RunStatus) bool {
	return rc.status.CompareAndSwap(int32(old), int32(new))
}
