// Package internal holds helpers shared by avpump packages that must not be
// part of the public API.
package internal

import (
	"context"

	"github.com/xaionaro-go/avpump/logger"
)

// Assert panics (through the logger, so the message is recorded) if
// mustBeTrue does not hold.
func Assert(
	ctx context.Context,
	mustBeTrue bool,
	extraArgs ...any,
) {
	if mustBeTrue {
		return
	}

	logger.Panic(ctx, "assertion failed", extraArgs)
}
