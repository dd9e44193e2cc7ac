// Package resampler converts decoded audio between PCM layouts and re-chunks
// it to the frame size an encoder expects.
package resampler

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avpump/internal"
	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/avpump/pool"
)

type PCMFormat struct {
	SampleFormat  astiav.SampleFormat
	SampleRate    int
	ChannelLayout astiav.ChannelLayout
}

func PCMFormatFromFrame(f *astiav.Frame) PCMFormat {
	return PCMFormat{
		SampleFormat:  f.SampleFormat(),
		SampleRate:    f.SampleRate(),
		ChannelLayout: f.ChannelLayout(),
	}
}

func (f PCMFormat) Equal(cmp PCMFormat) bool {
	return f.SampleFormat == cmp.SampleFormat &&
		f.SampleRate == cmp.SampleRate &&
		f.ChannelLayout.Equal(cmp.ChannelLayout)
}

// BytesPerSample is the size of one interleaved sample (all channels).
func (f PCMFormat) BytesPerSample() int {
	return f.SampleFormat.BytesPerSample() * f.ChannelLayout.Channels()
}

func (f PCMFormat) String() string {
	return fmt.Sprintf("%s %dHz %s", f.SampleFormat, f.SampleRate, f.ChannelLayout)
}

// Resampler converts any input frames to FormatOutput and keeps the result in
// an AudioFifo until it is taken out in chunks.
type Resampler struct {
	AudioFifo               *astiav.AudioFifo
	SoftwareResampleContext *astiav.SoftwareResampleContext
	FormatInput             *PCMFormat
	FormatOutput            PCMFormat
	resampledFrame          *astiav.Frame
}

func New(
	ctx context.Context,
	out PCMFormat,
	initialCapacity int,
) (_ret *Resampler, _err error) {
	logger.Tracef(ctx, "New: %s", out)
	defer func() { logger.Tracef(ctx, "/New: %s: %v", out, _err) }()

	if initialCapacity <= 0 {
		initialCapacity = 1024
	}

	fifo := astiav.AllocAudioFifo(
		out.SampleFormat,
		out.ChannelLayout.Channels(),
		initialCapacity,
	)
	if fifo == nil {
		return nil, fmt.Errorf("cannot alloc AudioFifo")
	}
	internal.SetFinalizerFree(ctx, fifo)

	swrCtx := astiav.AllocSoftwareResampleContext()
	if swrCtx == nil {
		return nil, fmt.Errorf("cannot alloc SoftwareResampleContext")
	}
	internal.SetFinalizerFree(ctx, swrCtx)

	return &Resampler{
		AudioFifo:               fifo,
		SoftwareResampleContext: swrCtx,
		FormatOutput:            out,
		resampledFrame:          pool.Frames.Get(),
	}, nil
}

func (r *Resampler) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()

	// the fifo and the resample context are freed by finalizers
	r.AudioFifo = nil
	r.SoftwareResampleContext = nil
	if r.resampledFrame != nil {
		pool.Frames.Put(r.resampledFrame)
		r.resampledFrame = nil
	}
	return nil
}

func (r *Resampler) String() string {
	return fmt.Sprintf("Resampler<%s>", r.FormatOutput)
}

// Buffered returns the amount of converted samples waiting in the fifo.
func (r *Resampler) Buffered() int {
	if r.AudioFifo == nil {
		return 0
	}
	return r.AudioFifo.Size()
}

// AllocateOutputFrame allocates a frame of FormatOutput able to hold
// nbSamples samples. Return it to pool.Frames when done.
func (r *Resampler) AllocateOutputFrame(
	ctx context.Context,
	nbSamples int,
) (_ret *astiav.Frame, _err error) {
	logger.Tracef(ctx, "AllocateOutputFrame: %d", nbSamples)
	defer func() { logger.Tracef(ctx, "/AllocateOutputFrame: %d: %v", nbSamples, _err) }()

	f := pool.Frames.Get()
	f.SetNbSamples(nbSamples)
	f.SetChannelLayout(r.FormatOutput.ChannelLayout)
	f.SetSampleFormat(r.FormatOutput.SampleFormat)
	f.SetSampleRate(r.FormatOutput.SampleRate)
	if err := f.AllocBuffer(0); err != nil {
		pool.Frames.Put(f)
		return nil, fmt.Errorf("cannot alloc buffer for output frame: %w", err)
	}
	return f, nil
}

// SendFrame converts the frame into the fifo. A nil frame drains the samples
// the resample context still holds back.
//
// The input format must stay the same for the whole lifetime of the Resampler.
func (r *Resampler) SendFrame(
	ctx context.Context,
	in *astiav.Frame,
) (_err error) {
	logger.Tracef(ctx, "SendFrame")
	defer func() { logger.Tracef(ctx, "/SendFrame: %v", _err) }()

	if in != nil {
		inFormat := PCMFormatFromFrame(in)
		switch {
		case r.FormatInput == nil:
			r.FormatInput = &inFormat
		case !r.FormatInput.Equal(inFormat):
			return fmt.Errorf("input frame format changed: %s != %s", inFormat, *r.FormatInput)
		}
	} else if r.FormatInput == nil {
		return nil
	}

	// an output frame without buffers is sized by libswresample itself
	out := r.resampledFrame
	out.Unref()
	out.SetChannelLayout(r.FormatOutput.ChannelLayout)
	out.SetSampleFormat(r.FormatOutput.SampleFormat)
	out.SetSampleRate(r.FormatOutput.SampleRate)

	if err := r.SoftwareResampleContext.ConvertFrame(in, out); err != nil {
		return fmt.Errorf("cannot convert frame: %w", err)
	}

	if nbSamples := out.NbSamples(); nbSamples == 0 {
		return nil
	}

	if _, err := r.AudioFifo.Write(out); err != nil {
		return fmt.Errorf("cannot write to AudioFifo: %w", err)
	}

	return nil
}

// ReceiveFrame fills outputFrame with exactly outputFrame.NbSamples() samples.
// It returns astiav.ErrEagain if not enough samples are buffered yet and
// astiav.ErrEof if nothing is buffered at all.
func (r *Resampler) ReceiveFrame(
	ctx context.Context,
	outputFrame *astiav.Frame,
) error {
	return r.receiveFrame(ctx, outputFrame, outputFrame.NbSamples())
}

// Flush is ReceiveFrame that also accepts a partially filled chunk, for the
// tail of a stream.
func (r *Resampler) Flush(
	ctx context.Context,
	outputFrame *astiav.Frame,
) error {
	return r.receiveFrame(ctx, outputFrame, 1)
}

func (r *Resampler) receiveFrame(
	ctx context.Context,
	outputFrame *astiav.Frame,
	minSize int,
) (_err error) {
	logger.Tracef(ctx, "receiveFrame: %d", minSize)
	defer func() { logger.Tracef(ctx, "/receiveFrame: %d: %v", minSize, _err) }()

	size := r.AudioFifo.Size()
	if size == 0 {
		return astiav.ErrEof
	}
	if size < minSize {
		return astiav.ErrEagain
	}

	if err := outputFrame.MakeWritable(); err != nil {
		return fmt.Errorf("unable to make the output frame writable: %w", err)
	}
	n, err := r.AudioFifo.Read(outputFrame)
	if err != nil {
		return fmt.Errorf("unable to read from AudioFifo: %w", err)
	}
	outputFrame.SetNbSamples(n)
	return nil
}
