package internal

import (
	"context"
	"runtime"

	"github.com/xaionaro-go/avpump/logger"
)

// SetFinalizerFree frees a libav object once it becomes unreachable, for
// objects whose ownership is not tracked by a Close method.
func SetFinalizerFree[T interface{ Free() }](
	ctx context.Context,
	freer T,
) {
	runtime.SetFinalizer(freer, func(freer T) {
		logger.Debugf(ctx, "freeing %T", freer)
		freer.Free()
	})
}
