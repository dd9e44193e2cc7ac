package codec

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avpump/types"
)

// fakeEngine echoes every input as an output, accepting at most
// MaxBacklog inputs before the outputs are taken.
type fakeEngine struct {
	MaxBacklog  int
	OutputScale int
	Backlog     [][]byte
	Inputs      [][]byte
	Draining    bool
	DrainCalls  int
	CloseCount  int
}

var _ engine = (*fakeEngine)(nil)

func (e *fakeEngine) SendInput(_ context.Context, data []byte, _ int64, _ types.BufferFlags) error {
	if e.MaxBacklog > 0 && len(e.Backlog) >= e.MaxBacklog {
		return astiav.ErrEagain
	}
	e.Inputs = append(e.Inputs, bytes.Clone(data))
	scale := max(e.OutputScale, 1)
	e.Backlog = append(e.Backlog, bytes.Repeat(data, scale))
	return nil
}

func (e *fakeEngine) Drain(context.Context) error {
	e.DrainCalls++
	e.Draining = true
	return nil
}

func (e *fakeEngine) ReceiveOutput(context.Context) ([]byte, types.BufferInfo, error) {
	if len(e.Backlog) == 0 {
		if e.Draining {
			return nil, types.BufferInfo{}, io.EOF
		}
		return nil, types.BufferInfo{}, astiav.ErrEagain
	}
	data := e.Backlog[0]
	e.Backlog = e.Backlog[1:]
	return data, types.BufferInfo{Size: len(data), PresentationTimeMicros: int64(len(e.Inputs))}, nil
}

func (e *fakeEngine) OutputFormat(context.Context) (*types.Format, error) {
	return &types.Format{MIME: MIMETypeRawAudio, SampleRate: 8000, ChannelCount: 1}, nil
}

func (e *fakeEngine) Close(context.Context) error {
	e.CloseCount++
	return nil
}

func newTestCodec(e *fakeEngine) *Codec {
	return newCodec("fake", e, SlotsConfig{InputSlots: 2, OutputSlots: 2, MaxInputSize: 16})
}

func queue(t *testing.T, ctx context.Context, c *Codec, payload []byte, flags types.BufferFlags) {
	t.Helper()
	slot, status, err := c.DequeueInputSlot(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusSlot, status)
	n := copy(c.InputBuffers(ctx)[slot], payload)
	require.NoError(t, c.QueueInputSlot(ctx, slot, types.BufferInfo{Size: n, Flags: flags}))
}

func TestCodecFormatChangedBeforeFirstOutput(t *testing.T) {
	ctx := context.Background()
	e := &fakeEngine{}
	c := newTestCodec(e)

	var info types.BufferInfo
	_, status, err := c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusWouldBlock, status)

	_, err = c.OutputFormat(ctx)
	require.Error(t, err)

	queue(t, ctx, c, []byte{1, 2, 3, 4}, 0)

	_, status, err = c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusFormatChanged, status)

	format, err := c.OutputFormat(ctx)
	require.NoError(t, err)
	require.Equal(t, MIMETypeRawAudio, format.MIME)

	slot, status, err := c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusSlot, status)
	payload, err := info.Payload(c.OutputBuffers(ctx)[slot])
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, payload)
	require.NoError(t, c.ReleaseOutputSlot(ctx, slot, false))
}

func TestCodecInputPoolExhaustion(t *testing.T) {
	ctx := context.Background()
	c := newTestCodec(&fakeEngine{})

	for range 2 {
		_, status, err := c.DequeueInputSlot(ctx, 0)
		require.NoError(t, err)
		require.Equal(t, types.DequeueStatusSlot, status)
	}
	slot, status, err := c.DequeueInputSlot(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusWouldBlock, status)
	require.Equal(t, types.SlotIndexNone, slot)
}

func TestCodecQueuedInputWaitsForEngine(t *testing.T) {
	ctx := context.Background()
	e := &fakeEngine{MaxBacklog: 1}
	c := newTestCodec(e)

	queue(t, ctx, c, []byte{1, 1}, 0)
	queue(t, ctx, c, []byte{2, 2}, 0)
	require.Len(t, e.Inputs, 1)

	// the second input still occupies its slot
	_, status, err := c.DequeueInputSlot(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusSlot, status)
	_, status, err = c.DequeueInputSlot(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusWouldBlock, status)

	var info types.BufferInfo
	_, status, err = c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusFormatChanged, status)
	slot, status, err := c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusSlot, status)
	require.NoError(t, c.ReleaseOutputSlot(ctx, slot, false))

	_, _, err = c.DequeueInputSlot(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, [][]byte{{1, 1}, {2, 2}}, e.Inputs)
}

func TestCodecBuffersChanged(t *testing.T) {
	ctx := context.Background()
	e := &fakeEngine{OutputScale: 4}
	c := newTestCodec(e)
	oldBuffers := c.OutputBuffers(ctx)

	payload := bytes.Repeat([]byte{7}, 16)
	queue(t, ctx, c, payload, 0)

	var info types.BufferInfo
	_, status, err := c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusFormatChanged, status)

	_, status, err = c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusBuffersChanged, status)
	newBuffers := c.OutputBuffers(ctx)
	require.Len(t, newBuffers, len(oldBuffers))
	require.GreaterOrEqual(t, len(newBuffers[0]), 64)

	slot, status, err := c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusSlot, status)
	require.Equal(t, 64, info.Size)
	got, err := info.Payload(newBuffers[slot])
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat(payload, 4), got)
}

func TestCodecEndOfStream(t *testing.T) {
	ctx := context.Background()
	e := &fakeEngine{}
	c := newTestCodec(e)

	queue(t, ctx, c, []byte{5, 5}, types.BufferFlags(types.BufferFlagEndOfStream))
	require.Equal(t, 1, e.DrainCalls)
	require.Equal(t, [][]byte{{5, 5}}, e.Inputs)

	// no more inputs after the end of the stream
	_, status, err := c.DequeueInputSlot(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusWouldBlock, status)

	var info types.BufferInfo
	_, status, err = c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusFormatChanged, status)

	slot, status, err := c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusSlot, status)
	require.False(t, info.IsEndOfStream())
	require.NoError(t, c.ReleaseOutputSlot(ctx, slot, false))

	slot, status, err = c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusSlot, status)
	require.True(t, info.IsEndOfStream())
	require.Zero(t, info.Size)
	require.NoError(t, c.ReleaseOutputSlot(ctx, slot, false))

	// exactly one end-of-stream buffer
	_, status, err = c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusWouldBlock, status)
}

func TestCodecEmptyStream(t *testing.T) {
	ctx := context.Background()
	c := newTestCodec(&fakeEngine{})

	queue(t, ctx, c, nil, types.BufferFlags(types.BufferFlagEndOfStream))

	var info types.BufferInfo
	_, status, err := c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusFormatChanged, status)

	_, status, err = c.DequeueOutputSlot(ctx, 0, &info)
	require.NoError(t, err)
	require.Equal(t, types.DequeueStatusSlot, status)
	require.True(t, info.IsEndOfStream())
}

func TestCodecProtocolViolations(t *testing.T) {
	ctx := context.Background()
	e := &fakeEngine{}
	c := newTestCodec(e)

	err := c.QueueInputSlot(ctx, 0, types.BufferInfo{Size: 1})
	require.ErrorAs(t, err, &ErrInvalidSlot{})

	err = c.QueueInputSlot(ctx, 7, types.BufferInfo{Size: 1})
	require.ErrorAs(t, err, &ErrInvalidSlot{})

	err = c.ReleaseOutputSlot(ctx, 0, false)
	require.ErrorAs(t, err, &ErrInvalidSlot{})

	slot, _, err := c.DequeueInputSlot(ctx, 0)
	require.NoError(t, err)
	err = c.QueueInputSlot(ctx, slot, types.BufferInfo{Offset: 10, Size: 10})
	require.Error(t, err)

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))
	require.Equal(t, 1, e.CloseCount)

	_, _, err = c.DequeueInputSlot(ctx, 0)
	require.ErrorIs(t, err, ErrClosed)
	var info types.BufferInfo
	_, _, err = c.DequeueOutputSlot(ctx, 0, &info)
	require.ErrorIs(t, err, ErrClosed)
}

func TestCodecStop(t *testing.T) {
	ctx := context.Background()
	c := newTestCodec(&fakeEngine{})

	require.NoError(t, c.Stop(ctx))
	require.NoError(t, c.Stop(ctx))

	_, _, err := c.DequeueInputSlot(ctx, 0)
	require.ErrorIs(t, err, ErrStopped)
}

func TestEncoderConfigDefaults(t *testing.T) {
	cfg := EncoderConfig{}.WithDefaults()
	require.Equal(t, "aac", cfg.CodecName)
	require.Equal(t, 44100, cfg.SampleRate)
	require.Equal(t, 2, cfg.ChannelCount)
	require.Equal(t, int64(128000), cfg.BitRate)
	require.Equal(t, 16384, cfg.MaxInputSize)
	require.Equal(t, 4, cfg.InputSlots)
	require.Equal(t, 4, cfg.OutputSlots)
	require.Equal(t, 44100, cfg.inputSampleRate())
}

func TestMaxDecodedSize(t *testing.T) {
	// a FLAC frame of the largest block size, stereo S16
	require.Equal(t, 65536*2*2, MaxDecodedSize(&types.Format{ChannelCount: 2, MaxInputSize: 16384}))
	require.Greater(t, MaxDecodedSize(&types.Format{ChannelCount: 2}), 8192*2*2)

	// more than two channels are downmixed to stereo
	require.Equal(t, MaxDecodedSize(&types.Format{ChannelCount: 2}), MaxDecodedSize(&types.Format{ChannelCount: 6}))
	require.Equal(t, 65536*2, MaxDecodedSize(&types.Format{ChannelCount: 1}))

	// unsigned 8-bit PCM doubles in size
	require.Equal(t, 2*1<<20, MaxDecodedSize(&types.Format{ChannelCount: 1, MaxInputSize: 1 << 20}))

	require.Equal(t, 65536*2*2, MaxDecodedSize(nil))
}
