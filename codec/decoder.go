package codec

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/avpump/avconv"
	"github.com/xaionaro-go/avpump/internal"
	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/avpump/pool"
	"github.com/xaionaro-go/avpump/resampler"
	"github.com/xaionaro-go/avpump/types"
)

type decoder struct {
	*libavCodec
	lastPTSMicros     int64
	resamplerFlushed  bool
	sampleRate        int
	channelCount      int
	receivedEOFFromCC bool
}

var _ engine = (*decoder)(nil)

// NewDecoder returns a device decoding samples of the given format into
// interleaved signed 16-bit PCM. More than MaxChannelCount channels are
// downmixed to stereo.
func NewDecoder(
	ctx context.Context,
	format *types.Format,
	cfg DecoderConfig,
) (_ret *Codec, _err error) {
	logger.Tracef(ctx, "NewDecoder: %s", format)
	defer func() { logger.Tracef(ctx, "/NewDecoder: %s: %v", format, _err) }()

	if format == nil {
		return nil, fmt.Errorf("the input format is not set")
	}
	if format.MediaType() != types.MediaTypeAudio {
		return nil, fmt.Errorf("only audio decoding is supported, got '%s'", format.MIME)
	}

	codecParameters, _ := format.Native.(*astiav.CodecParameters)
	var codecID astiav.CodecID
	if codecParameters != nil {
		codecID = codecParameters.CodecID()
	} else {
		codecID = avconv.CodecIDFromMIME(format.MIME)
	}

	c, err := newLibAVCodec(ctx, false, codecID, cfg.CodecName)
	if err != nil {
		return nil, err
	}
	d := &decoder{
		libavCodec:   c,
		sampleRate:   format.SampleRate,
		channelCount: min(format.ChannelCount, MaxChannelCount),
	}
	defer func() {
		if _err != nil {
			_ = d.close(ctx)
		}
	}()

	cc := d.codecContext
	if codecParameters != nil {
		if err := codecParameters.ToCodecContext(cc); err != nil {
			return nil, fmt.Errorf("unable to copy the codec parameters to the codec context: %w", err)
		}
	} else {
		if format.SampleRate > 0 {
			cc.SetSampleRate(format.SampleRate)
		}
		if format.ChannelCount > 0 {
			layout, err := avconv.ChannelLayoutFromCount(format.ChannelCount)
			if err != nil {
				return nil, err
			}
			cc.SetChannelLayout(layout)
		}
		if len(format.Extradata) > 0 {
			cc.SetExtraData(format.Extradata)
		}
	}
	cc.SetPktTimeBase(avconv.MicrosTimeBase())

	if err := d.open(ctx, nil); err != nil {
		return nil, err
	}

	if cfg.MaxInputSize <= 0 && format.MaxInputSize > 0 {
		cfg.MaxInputSize = format.MaxInputSize
	}
	if cfg.OutputSlotSize <= 0 {
		cfg.OutputSlotSize = MaxDecodedSize(format)
	}
	return newCodec(fmt.Sprintf("decoder:%s", d.codec.Name()), d, cfg.SlotsConfig), nil
}

func (d *decoder) SendInput(
	ctx context.Context,
	data []byte,
	ptsMicros int64,
	flags types.BufferFlags,
) (_err error) {
	logger.Tracef(ctx, "SendInput: %d bytes, pts:%dus", len(data), ptsMicros)
	defer func() { logger.Tracef(ctx, "/SendInput: %v", _err) }()

	pkt := pool.Packets.Get()
	defer pool.Packets.Put(pkt)
	if err := pkt.FromData(data); err != nil {
		return fmt.Errorf("unable to fill the packet: %w", err)
	}
	pkt.SetPts(ptsMicros)
	pkt.SetDts(ptsMicros)
	if flags.Has(types.BufferFlagKeyFrame) {
		pkt.SetFlags(pkt.Flags().Add(astiav.PacketFlagKey))
	}
	if err := d.codecContext.SendPacket(pkt); err != nil {
		return err
	}
	return nil
}

func (d *decoder) Drain(ctx context.Context) error {
	logger.Tracef(ctx, "Drain")
	return d.codecContext.SendPacket(nil)
}

func (d *decoder) ReceiveOutput(
	ctx context.Context,
) (_data []byte, _info types.BufferInfo, _err error) {
	logger.Tracef(ctx, "ReceiveOutput")
	defer func() { logger.Tracef(ctx, "/ReceiveOutput: %d bytes, %s, %v", len(_data), _info, _err) }()

	for {
		if d.receivedEOFFromCC {
			return d.flushResampler(ctx)
		}

		f := pool.Frames.Get()
		err := d.codecContext.ReceiveFrame(f)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEof):
			pool.Frames.Put(f)
			d.receivedEOFFromCC = true
			continue
		default:
			pool.Frames.Put(f)
			return nil, types.BufferInfo{}, err
		}

		data, err := d.convert(ctx, f)
		pool.Frames.Put(f)
		if err != nil {
			return nil, types.BufferInfo{}, err
		}
		if len(data) == 0 {
			// the resampler held everything back
			continue
		}
		return data, types.BufferInfo{Size: len(data), PresentationTimeMicros: d.lastPTSMicros}, nil
	}
}

func (d *decoder) convert(
	ctx context.Context,
	f *astiav.Frame,
) ([]byte, error) {
	if d.resampler == nil {
		layout, err := avconv.ChannelLayoutFromCount(f.ChannelLayout().Channels())
		if err != nil {
			logger.Debugf(ctx, "downmixing to stereo: %v", err)
			layout = astiav.ChannelLayoutStereo
		}
		r, err := resampler.New(ctx, resampler.PCMFormat{
			SampleFormat:  astiav.SampleFormatS16,
			SampleRate:    f.SampleRate(),
			ChannelLayout: layout,
		}, f.NbSamples())
		if err != nil {
			return nil, fmt.Errorf("unable to initialize the resampler: %w", err)
		}
		d.resampler = r
		d.sampleRate = f.SampleRate()
		d.channelCount = layout.Channels()
	}
	if pts := f.Pts(); !avconv.IsNoPTS(pts) {
		d.lastPTSMicros = pts
	}
	if err := d.resampler.SendFrame(ctx, f); err != nil {
		return nil, fmt.Errorf("unable to resample the decoded frame: %w", err)
	}
	return takeBuffered(ctx, d.resampler)
}

func (d *decoder) flushResampler(
	ctx context.Context,
) ([]byte, types.BufferInfo, error) {
	if d.resampler == nil || d.resamplerFlushed {
		return nil, types.BufferInfo{}, io.EOF
	}
	d.resamplerFlushed = true
	if err := d.resampler.SendFrame(ctx, nil); err != nil {
		return nil, types.BufferInfo{}, fmt.Errorf("unable to flush the resampler: %w", err)
	}
	data, err := takeBuffered(ctx, d.resampler)
	if err != nil {
		return nil, types.BufferInfo{}, err
	}
	if len(data) == 0 {
		return nil, types.BufferInfo{}, io.EOF
	}
	return data, types.BufferInfo{Size: len(data), PresentationTimeMicros: d.lastPTSMicros}, nil
}

func (d *decoder) OutputFormat(ctx context.Context) (*types.Format, error) {
	internal.Assert(ctx, d.codecContext != nil)
	sampleRate, channelCount := d.sampleRate, d.channelCount
	if sampleRate <= 0 {
		sampleRate = d.codecContext.SampleRate()
	}
	if channelCount <= 0 {
		channelCount = d.codecContext.ChannelLayout().Channels()
	}
	return &types.Format{
		MIME:         MIMETypeRawAudio,
		SampleRate:   sampleRate,
		ChannelCount: channelCount,
	}, nil
}

func (d *decoder) Close(ctx context.Context) error {
	return d.close(ctx)
}
