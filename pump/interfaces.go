package pump

import (
	"context"
	"time"

	"github.com/xaionaro-go/avpump/types"
)

// Source reads compressed samples of the selected track(s) sequentially.
type Source interface {
	// ReadSample copies the current sample into buf and returns its size.
	// io.EOF means there are no more samples.
	ReadSample(ctx context.Context, buf []byte) (int, error)

	// Advance moves to the next sample; false means there is none.
	Advance(ctx context.Context) bool

	// SampleTime is the timestamp of the current sample in microseconds,
	// or -1 once the source is exhausted.
	SampleTime() int64

	SampleFlags() types.BufferFlags

	Close(ctx context.Context) error
}

// CodecDevice is a non-blocking codec driven through fixed pools of input and
// output buffers. The same contract serves the decode and the encode role.
type CodecDevice interface {
	DequeueInputSlot(ctx context.Context, timeout time.Duration) (types.SlotIndex, types.DequeueStatus, error)
	QueueInputSlot(ctx context.Context, slot types.SlotIndex, info types.BufferInfo) error
	DequeueOutputSlot(ctx context.Context, timeout time.Duration, info *types.BufferInfo) (types.SlotIndex, types.DequeueStatus, error)
	ReleaseOutputSlot(ctx context.Context, slot types.SlotIndex, render bool) error

	// OutputFormat is valid only after DequeueOutputSlot reported
	// types.DequeueStatusFormatChanged.
	OutputFormat(ctx context.Context) (*types.Format, error)

	// InputBuffers and OutputBuffers return the current buffer pools,
	// indexed by SlotIndex. The output pool is replaced every time
	// DequeueOutputSlot reports types.DequeueStatusBuffersChanged.
	InputBuffers(ctx context.Context) [][]byte
	OutputBuffers(ctx context.Context) [][]byte

	Stop(ctx context.Context) error
	Close(ctx context.Context) error
}

// Muxer collects the encoded tracks into an output container.
type Muxer interface {
	RegisterTrack(ctx context.Context, role types.MediaType, format *types.Format) (int, error)
	WriteSample(ctx context.Context, trackIndex int, data []byte, info types.BufferInfo) error
	IsStarted() bool
	Finish(ctx context.Context) error
}
