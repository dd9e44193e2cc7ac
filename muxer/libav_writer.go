package muxer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/avpump/avconv"
	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/avpump/pool"
	"github.com/xaionaro-go/avpump/types"
)

const (
	DefaultOutputFormat = "mp4"
)

// LibAVWriter is a ContainerWriter backed by libavformat.
type LibAVWriter struct {
	URL           string
	FormatContext *astiav.FormatContext

	closer    *astikit.Closer
	ioContext *astiav.IOContext
	timeBases []astiav.Rational
	started   bool
	closed    bool
}

var _ ContainerWriter = (*LibAVWriter)(nil)

// NewLibAVWriter allocates the output container. The format is guessed by
// the URL if formatName is empty; if it cannot be guessed, mp4 is used.
func NewLibAVWriter(
	ctx context.Context,
	url string,
	formatName string,
) (_ret *LibAVWriter, _err error) {
	logger.Debugf(ctx, "NewLibAVWriter(ctx, '%s', '%s')", url, formatName)
	defer func() { logger.Debugf(ctx, "/NewLibAVWriter(ctx, '%s', '%s'): %v", url, formatName, _err) }()

	w := &LibAVWriter{
		URL:    url,
		closer: astikit.NewCloser(),
	}
	defer func() {
		if _err != nil {
			_ = w.closer.Close()
		}
	}()

	formatContext, err := astiav.AllocOutputFormatContext(nil, formatName, url)
	if err != nil && formatName == "" {
		logger.Debugf(ctx, "unable to guess the output format by URL '%s', falling back to '%s': %v", url, DefaultOutputFormat, err)
		formatContext, err = astiav.AllocOutputFormatContext(nil, DefaultOutputFormat, url)
	}
	if err != nil {
		return nil, fmt.Errorf("allocating output format context failed using URL '%s': %w", url, err)
	}
	if formatContext == nil {
		return nil, fmt.Errorf("unable to allocate the output format context")
	}
	w.FormatContext = formatContext
	w.closer.Add(formatContext.Free)
	logger.Debugf(ctx, "output format name: '%s'", formatContext.OutputFormat().Name())

	if formatContext.OutputFormat().Flags().Has(astiav.IOFormatFlagNofile) {
		return w, nil
	}

	ioContext, err := astiav.OpenIOContext(
		url,
		astiav.NewIOContextFlags(astiav.IOContextFlagWrite),
		nil,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open IO context (URL: '%s'): %w", url, err)
	}
	w.ioContext = ioContext
	formatContext.SetPb(ioContext)
	return w, nil
}

func (w *LibAVWriter) AddTrack(
	ctx context.Context,
	format *types.Format,
) (_ret int, _err error) {
	logger.Debugf(ctx, "AddTrack(ctx, %s)", format)
	defer func() { logger.Debugf(ctx, "/AddTrack(ctx, %s): %d %v", format, _ret, _err) }()

	if w.started {
		return -1, fmt.Errorf("unable to add a track after the header is written")
	}
	codecParams, ok := format.Native.(*astiav.CodecParameters)
	if !ok {
		return -1, fmt.Errorf("the format %s has no libav codec parameters (got %T)", format, format.Native)
	}

	stream := w.FormatContext.NewStream(nil)
	if stream == nil {
		return -1, fmt.Errorf("unable to create a new stream")
	}
	if err := codecParams.Copy(stream.CodecParameters()); err != nil {
		return -1, fmt.Errorf("unable to copy the codec parameters: %w", err)
	}
	stream.CodecParameters().SetCodecTag(0)
	if format.SampleRate > 0 {
		stream.SetTimeBase(astiav.NewRational(1, format.SampleRate))
	}
	w.timeBases = append(w.timeBases, stream.TimeBase())
	return stream.Index(), nil
}

func (w *LibAVWriter) Start(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()
	if w.started {
		return nil
	}
	if err := w.FormatContext.WriteHeader(nil); err != nil {
		return fmt.Errorf("unable to write the header: %w", err)
	}
	w.started = true

	// the muxer may have changed the time bases while writing the header
	for i, stream := range w.FormatContext.Streams() {
		if i < len(w.timeBases) {
			w.timeBases[i] = stream.TimeBase()
		}
	}
	return nil
}

func (w *LibAVWriter) WriteSample(
	ctx context.Context,
	trackIndex int,
	data []byte,
	info types.BufferInfo,
) (_err error) {
	if !w.started {
		return ErrNotStarted
	}
	if trackIndex < 0 || trackIndex >= len(w.timeBases) {
		return fmt.Errorf("track #%d does not exist", trackIndex)
	}

	pkt := pool.Packets.Get()
	defer pool.Packets.Put(pkt)
	if err := pkt.FromData(data); err != nil {
		return fmt.Errorf("unable to fill the packet: %w", err)
	}
	pts := avconv.FromMicros(info.PresentationTimeMicros, w.timeBases[trackIndex])
	pkt.SetPts(pts)
	pkt.SetDts(pts)
	pkt.SetStreamIndex(trackIndex)
	if info.Flags.Has(types.BufferFlagKeyFrame) {
		pkt.SetFlags(pkt.Flags().Add(astiav.PacketFlagKey))
	}
	logger.Tracef(ctx, "writing %d bytes with pts %d into stream %d", len(data), pts, trackIndex)

	if err := w.FormatContext.WriteInterleavedFrame(pkt); err != nil {
		return fmt.Errorf("unable to write the packet (pts:%d, len:%d) to stream #%d: %w", pts, len(data), trackIndex, err)
	}
	return nil
}

func (w *LibAVWriter) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	if w.closed {
		return nil
	}
	w.closed = true

	var result []error
	if w.started {
		err := func() (_err error) {
			defer func() {
				if r := recover(); r != nil {
					_err = fmt.Errorf("got panic: %v:\n%s", r, debug.Stack())
				}
			}()
			return w.FormatContext.WriteTrailer()
		}()
		if err != nil {
			result = append(result, fmt.Errorf("unable to write the trailer: %w", err))
		}
	}
	if w.ioContext != nil {
		if err := w.ioContext.Close(); err != nil {
			result = append(result, fmt.Errorf("unable to close the IO context: %w", err))
		}
		w.ioContext = nil
	}
	if err := w.closer.Close(); err != nil {
		result = append(result, err)
	}
	w.FormatContext = nil
	return errors.Join(result...)
}
