package codec

import (
	"context"

	"github.com/xaionaro-go/avpump/types"
)

// engine is the actual codec behind a Codec. It follows the libav
// send/receive model: astiav.ErrEagain means "not now, try again after the
// other side made progress".
type engine interface {
	// SendInput consumes one input sample. The data is copied, so the
	// caller may reuse it once SendInput returned nil.
	SendInput(ctx context.Context, data []byte, ptsMicros int64, flags types.BufferFlags) error

	// Drain makes the engine flush everything it holds back. It may be
	// called repeatedly until it returns nil.
	Drain(ctx context.Context) error

	// ReceiveOutput returns the next output sample, astiav.ErrEagain if
	// there is none yet, or io.EOF once drained.
	ReceiveOutput(ctx context.Context) ([]byte, types.BufferInfo, error)

	OutputFormat(ctx context.Context) (*types.Format, error)

	Close(ctx context.Context) error
}
