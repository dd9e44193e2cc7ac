package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/asticode/go-astiav"
	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avpump/avconv"
	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/avpump/pool"
	"github.com/xaionaro-go/avpump/resampler"
	"github.com/xaionaro-go/avpump/types"
)

const (
	defaultFrameSize = 1024
)

type encoder struct {
	*libavCodec
	Config EncoderConfig

	inputFormat   resampler.PCMFormat
	frameSize     int
	basePTS       int64
	basePTSSet    bool
	samplesSent   int64
	pendingFrame  *astiav.Frame
	tailFlushed   bool
	drainSent     bool
	receivedEOF   bool
	bytesPerFrame int
}

var _ engine = (*encoder)(nil)

// NewEncoder returns a device encoding interleaved signed 16-bit PCM.
func NewEncoder(
	ctx context.Context,
	cfg EncoderConfig,
) (_ret *Codec, _err error) {
	cfg = cfg.WithDefaults()
	logger.Tracef(ctx, "NewEncoder: %s %dHz %dch %dbps", cfg.CodecName, cfg.SampleRate, cfg.ChannelCount, cfg.BitRate)
	defer func() { logger.Tracef(ctx, "/NewEncoder: %v", _err) }()

	outLayout, err := avconv.ChannelLayoutFromCount(cfg.ChannelCount)
	if err != nil {
		return nil, fmt.Errorf("invalid output channel count: %w", err)
	}
	inLayout, err := avconv.ChannelLayoutFromCount(cfg.inputChannelCount())
	if err != nil {
		return nil, fmt.Errorf("invalid input channel count: %w", err)
	}

	// CodecName is either a libav encoder name or a MIME type
	c, err := newLibAVCodec(ctx, true, avconv.CodecIDFromMIME(cfg.CodecName), cfg.CodecName)
	if err != nil {
		return nil, err
	}
	e := &encoder{
		libavCodec: c,
		Config:     cfg,
		inputFormat: resampler.PCMFormat{
			SampleFormat:  astiav.SampleFormatS16,
			SampleRate:    cfg.inputSampleRate(),
			ChannelLayout: inLayout,
		},
	}
	e.bytesPerFrame = e.inputFormat.BytesPerSample()
	defer func() {
		if _err != nil {
			_ = e.close(ctx)
		}
	}()

	cc := e.codecContext
	cc.SetChannelLayout(outLayout)
	cc.SetSampleRate(cfg.SampleRate)
	cc.SetBitRate(cfg.BitRate)
	sampleFormat := astiav.SampleFormatS16
	if sfs := e.codec.SampleFormats(); len(sfs) > 0 {
		sampleFormat = sfs[0]
	}
	cc.SetSampleFormat(sampleFormat)
	cc.SetTimeBase(astiav.NewRational(1, cfg.SampleRate))
	// the extradata goes to the container header instead of the stream
	cc.SetFlags(cc.Flags() | astiav.CodecContextFlags(astiav.CodecContextFlagGlobalHeader))

	var options *astiav.Dictionary
	if len(cfg.Options) > 0 {
		options = astiav.NewDictionary()
		defer options.Free()
		keys := make([]string, 0, len(cfg.Options))
		for key := range cfg.Options {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := options.Set(key, cfg.Options[key], 0); err != nil {
				return nil, fmt.Errorf("unable to set option '%s': %w", key, err)
			}
		}
	}
	if err := e.open(ctx, options); err != nil {
		return nil, err
	}

	e.frameSize = cc.FrameSize()
	if e.frameSize <= 0 {
		e.frameSize = defaultFrameSize
	}
	e.resampler, err = resampler.New(ctx, resampler.PCMFormat{
		SampleFormat:  sampleFormat,
		SampleRate:    cfg.SampleRate,
		ChannelLayout: outLayout,
	}, e.frameSize*2)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the resampler: %w", err)
	}
	logger.Debugf(ctx, "encoder '%s': %s, frame size %d", e.codec.Name(), e.resampler.FormatOutput, e.frameSize)

	return newCodec(fmt.Sprintf("encoder:%s", e.codec.Name()), e, cfg.SlotsConfig), nil
}

func (e *encoder) SendInput(
	ctx context.Context,
	data []byte,
	ptsMicros int64,
	_ types.BufferFlags,
) (_err error) {
	logger.Tracef(ctx, "SendInput: %d bytes, pts:%dus", len(data), ptsMicros)
	defer func() { logger.Tracef(ctx, "/SendInput: %v", _err) }()

	if e.pendingFrame != nil {
		if err := e.sendPendingFrame(ctx); err != nil {
			return err
		}
	}
	if len(data)%e.bytesPerFrame != 0 {
		return fmt.Errorf("the input size %d is not a multiple of %d (%s)", len(data), e.bytesPerFrame, e.inputFormat)
	}
	if !e.basePTSSet {
		e.basePTS = avconv.FromMicros(ptsMicros, e.codecContext.TimeBase())
		e.basePTSSet = true
	}

	f, err := e.inputFrame(ctx, data)
	if err != nil {
		return err
	}
	err = e.resampler.SendFrame(ctx, f)
	pool.Frames.Put(f)
	if err != nil {
		return fmt.Errorf("unable to resample the input: %w", err)
	}
	return e.sendFrames(ctx, false)
}

func (e *encoder) inputFrame(
	ctx context.Context,
	data []byte,
) (*astiav.Frame, error) {
	f := pool.Frames.Get()
	f.SetNbSamples(len(data) / e.bytesPerFrame)
	f.SetSampleFormat(e.inputFormat.SampleFormat)
	f.SetSampleRate(e.inputFormat.SampleRate)
	f.SetChannelLayout(e.inputFormat.ChannelLayout)
	if err := f.AllocBuffer(0); err != nil {
		pool.Frames.Put(f)
		return nil, fmt.Errorf("unable to allocate the input frame: %w", err)
	}
	if err := f.Data().SetBytes(data, 1); err != nil {
		pool.Frames.Put(f)
		return nil, fmt.Errorf("unable to set frame data from buffer: %w", err)
	}
	return f, nil
}

// sendFrames passes the resampled samples to the encoder chunked by its
// frame size. A partial chunk is sent only when flushing the tail.
func (e *encoder) sendFrames(
	ctx context.Context,
	tail bool,
) error {
	for {
		if e.pendingFrame == nil {
			f, err := e.resampler.AllocateOutputFrame(ctx, e.frameSize)
			if err != nil {
				return err
			}
			if tail {
				err = e.resampler.Flush(ctx, f)
			} else {
				err = e.resampler.ReceiveFrame(ctx, f)
			}
			switch {
			case err == nil:
			case errors.Is(err, astiav.ErrEagain), errors.Is(err, astiav.ErrEof):
				pool.Frames.Put(f)
				return nil
			default:
				pool.Frames.Put(f)
				return err
			}
			f.SetPts(e.basePTS + e.samplesSent)
			e.samplesSent += int64(f.NbSamples())
			e.pendingFrame = f
		}
		err := e.sendPendingFrame(ctx)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEagain):
			// the frame stays pending until the encoder returned some packets
			return nil
		default:
			return err
		}
	}
}

func (e *encoder) sendPendingFrame(ctx context.Context) error {
	if err := e.codecContext.SendFrame(e.pendingFrame); err != nil {
		if !errors.Is(err, astiav.ErrEagain) {
			logger.Errorf(ctx, "unable to send a frame to the encoder: %v", err)
		}
		return err
	}
	pool.Frames.Put(e.pendingFrame)
	e.pendingFrame = nil
	return nil
}

func (e *encoder) Drain(ctx context.Context) (_err error) {
	logger.Tracef(ctx, "Drain")
	defer func() { logger.Tracef(ctx, "/Drain: %v", _err) }()

	if e.drainSent {
		return nil
	}
	if !e.tailFlushed {
		if err := e.resampler.SendFrame(ctx, nil); err != nil {
			return fmt.Errorf("unable to flush the resampler: %w", err)
		}
		e.tailFlushed = true
	}
	if err := e.sendFrames(ctx, true); err != nil {
		return err
	}
	if e.pendingFrame != nil || e.resampler.Buffered() > 0 {
		return astiav.ErrEagain
	}
	if err := e.codecContext.SendFrame(nil); err != nil {
		return err
	}
	e.drainSent = true
	return nil
}

func (e *encoder) ReceiveOutput(
	ctx context.Context,
) (_data []byte, _info types.BufferInfo, _err error) {
	logger.Tracef(ctx, "ReceiveOutput")
	defer func() { logger.Tracef(ctx, "/ReceiveOutput: %d bytes, %s, %v", len(_data), _info, _err) }()

	if e.receivedEOF {
		return nil, types.BufferInfo{}, io.EOF
	}

	pkt := pool.Packets.Get()
	defer pool.Packets.Put(pkt)
	err := e.codecContext.ReceivePacket(pkt)
	if errors.Is(err, astiav.ErrEagain) && e.pendingFrame != nil {
		// there is room in the encoder now
		if err := e.sendFrames(ctx, e.tailFlushed); err != nil {
			return nil, types.BufferInfo{}, err
		}
		err = e.codecContext.ReceivePacket(pkt)
	}
	switch {
	case err == nil:
	case errors.Is(err, astiav.ErrEof):
		e.receivedEOF = true
		return nil, types.BufferInfo{}, io.EOF
	default:
		return nil, types.BufferInfo{}, err
	}

	data := bytes.Clone(pkt.Data())
	info := types.BufferInfo{
		Size:                   len(data),
		PresentationTimeMicros: avconv.Micros(pkt.Pts(), e.codecContext.TimeBase()),
	}
	if pkt.Flags().Has(astiav.PacketFlagKey) {
		info.Flags = info.Flags.Add(types.BufferFlagKeyFrame)
	}
	return data, info, nil
}

func (e *encoder) OutputFormat(ctx context.Context) (_ret *types.Format, _err error) {
	cp := astiav.AllocCodecParameters()
	if err := e.codecContext.ToCodecParameters(cp); err != nil {
		cp.Free()
		return nil, fmt.Errorf("unable to get the codec parameters: %w", err)
	}
	e.closer.Add(cp.Free)
	if logger.FromCtx(ctx).Level() >= logger.LevelTrace {
		logger.Tracef(ctx, "encoder output: %s", spew.Sdump(cp.CodecID(), cp.SampleRate(), cp.BitRate(), cp.ExtraData()))
	}
	return &types.Format{
		MIME:         avconv.MIMEType(e.codec.ID()),
		SampleRate:   e.codecContext.SampleRate(),
		ChannelCount: e.codecContext.ChannelLayout().Channels(),
		BitRate:      e.codecContext.BitRate(),
		Extradata:    bytes.Clone(cp.ExtraData()),
		Native:       cp,
	}, nil
}

func (e *encoder) Close(ctx context.Context) error {
	if e.pendingFrame != nil {
		pool.Frames.Put(e.pendingFrame)
		e.pendingFrame = nil
	}
	return e.close(ctx)
}
