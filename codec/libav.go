package codec

import (
	"context"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/avpump/pool"
	"github.com/xaionaro-go/avpump/resampler"
)

// libavCodec holds the parts shared by the libav decoder and encoder.
type libavCodec struct {
	codec        *astiav.Codec
	codecContext *astiav.CodecContext
	resampler    *resampler.Resampler
	closer       *astikit.Closer
}

func findCodec(
	ctx context.Context,
	isEncoder bool,
	codecID astiav.CodecID,
	codecName string,
) (_ret *astiav.Codec) {
	logger.Tracef(ctx, "findCodec(ctx, %t, %s, '%s')", isEncoder, codecID, codecName)
	defer func() {
		logger.Tracef(ctx, "/findCodec(ctx, %t, %s, '%s'): %v", isEncoder, codecID, codecName, _ret)
	}()
	if isEncoder {
		if codecName != "" {
			if r := astiav.FindEncoderByName(codecName); r != nil {
				return r
			}
		}
		return astiav.FindEncoder(codecID)
	}
	if codecName != "" {
		if r := astiav.FindDecoderByName(codecName); r != nil {
			return r
		}
	}
	return astiav.FindDecoder(codecID)
}

func newLibAVCodec(
	ctx context.Context,
	isEncoder bool,
	codecID astiav.CodecID,
	codecName string,
) (_ret *libavCodec, _err error) {
	c := &libavCodec{
		closer: astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			_ = c.closer.Close()
		}
	}()

	c.codec = findCodec(ctx, isEncoder, codecID, codecName)
	if c.codec == nil {
		if codecID == astiav.CodecIDNone {
			return nil, fmt.Errorf("unable to find a codec using name '%s'", codecName)
		}
		return nil, fmt.Errorf("unable to find a codec using name '%s' or codec ID %v", codecName, codecID)
	}
	ctx = belt.WithField(ctx, "codec_id", c.codec.ID())
	logger.Tracef(ctx, "codec name: '%s' (%s)", c.codec.Name(), c.codec.ID())

	c.codecContext = astiav.AllocCodecContext(c.codec)
	if c.codecContext == nil {
		return nil, fmt.Errorf("unable to allocate codec context")
	}
	c.closer.Add(c.codecContext.Free)
	return c, nil
}

func (c *libavCodec) open(
	ctx context.Context,
	options *astiav.Dictionary,
) error {
	logger.Tracef(ctx, "c.codecContext.Open(%s, %#+v)", c.codec.Name(), options)
	if err := c.codecContext.Open(c.codec, options); err != nil {
		return fmt.Errorf("unable to open codec context: %w", err)
	}
	return nil
}

// frameBytes returns the samples of a packed-format frame.
func frameBytes(f *astiav.Frame) ([]byte, error) {
	const align = 1
	bufSize, err := f.SamplesBufferSize(align)
	if err != nil {
		return nil, fmt.Errorf("unable to get sample buffer size: %w", err)
	}
	buf := make([]byte, bufSize)
	if _, err := f.SamplesCopyToBuffer(buf, align); err != nil {
		return nil, fmt.Errorf("unable to copy samples to buffer: %w", err)
	}
	return buf, nil
}

// takeBuffered returns every sample waiting in the resampler as packed bytes.
func takeBuffered(
	ctx context.Context,
	r *resampler.Resampler,
) ([]byte, error) {
	buffered := r.Buffered()
	if buffered == 0 {
		return nil, nil
	}
	f, err := r.AllocateOutputFrame(ctx, buffered)
	if err != nil {
		return nil, err
	}
	defer pool.Frames.Put(f)
	if err := r.Flush(ctx, f); err != nil {
		return nil, fmt.Errorf("unable to take the resampled samples: %w", err)
	}
	return frameBytes(f)
}

func (c *libavCodec) close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "close")
	defer func() { logger.Debugf(ctx, "/close: %v", _err) }()
	if c.closer == nil {
		return nil
	}
	if c.resampler != nil {
		if err := c.resampler.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the resampler: %v", err)
		}
		c.resampler = nil
	}
	belt.Flush(ctx) // we want to flush the logs before a SEGFAULT-risky operation
	err := c.closer.Close()
	c.closer = nil
	c.codecContext = nil
	return err
}
