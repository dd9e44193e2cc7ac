// Package demuxer reads compressed samples of the selected tracks of a
// container, one sample at a time.
package demuxer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/davecgh/go-spew/spew"
	"github.com/xaionaro-go/avpump/avconv"
	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/avpump/pool"
	"github.com/xaionaro-go/avpump/types"
	"github.com/xaionaro-go/secret"
)

const (
	DefaultMaxInputSize = 16384
)

type Config struct {
	CustomOptions types.DictionaryItems

	// DefaultMaxInputSize is reported for tracks the container says
	// nothing about.
	DefaultMaxInputSize int
}

// Input is a libav demuxer. It is not safe for concurrent use.
type Input struct {
	*astiav.FormatContext
	*astiav.Dictionary

	URL    string
	Config Config

	closer    *astikit.Closer
	selected  map[int]struct{}
	packet    *astiav.Packet
	loaded    bool
	exhausted bool
	readErr   error
	closed    bool
}

func Open(
	ctx context.Context,
	urlString string,
	authKey secret.String,
	cfg Config,
) (_ret *Input, _err error) {
	logger.Debugf(ctx, "Open: '%s'", urlString)
	defer func() { logger.Debugf(ctx, "/Open: '%s': %v", urlString, _err) }()

	if urlString == "" {
		return nil, fmt.Errorf("the provided URL is empty")
	}
	if cfg.DefaultMaxInputSize <= 0 {
		cfg.DefaultMaxInputSize = DefaultMaxInputSize
	}

	i := &Input{
		URL:      urlString,
		Config:   cfg,
		closer:   astikit.NewCloser(),
		selected: map[int]struct{}{},
	}
	defer func() {
		if _err != nil {
			_ = i.closer.Close()
		}
	}()

	var formatName string
	if len(cfg.CustomOptions) > 0 {
		i.Dictionary = astiav.NewDictionary()
		i.closer.Add(i.Dictionary.Free)
		for _, opt := range cfg.CustomOptions {
			if opt.Key == "f" {
				formatName = opt.Value
				logger.Debugf(ctx, "overriding input format to '%s'", opt.Value)
				continue
			}
			logger.Debugf(ctx, "input.Dictionary['%s'] = '%s'", opt.Key, opt.Value)
			if err := i.Dictionary.Set(opt.Key, opt.Value, 0); err != nil {
				return nil, fmt.Errorf("unable to set option '%s': %w", opt.Key, err)
			}
		}
	}

	var inputFormat *astiav.InputFormat
	if formatName != "" {
		inputFormat = astiav.FindInputFormat(formatName)
		if inputFormat == nil {
			return nil, fmt.Errorf("unable to find input format by name '%s'", formatName)
		}
	}

	i.FormatContext = astiav.AllocFormatContext()
	if i.FormatContext == nil {
		return nil, fmt.Errorf("unable to allocate a format context")
	}
	i.closer.Add(i.FormatContext.Free)

	urlWithSecret := urlString
	if authKey.Get() != "" {
		urlWithSecret += authKey.Get()
	}
	if err := i.FormatContext.OpenInput(urlWithSecret, inputFormat, i.Dictionary); err != nil {
		if authKey.Get() != "" {
			return nil, fmt.Errorf("unable to open input by URL '%s/<HIDDEN>': %w", urlString, err)
		}
		return nil, fmt.Errorf("unable to open input by URL '%s': %w", urlString, err)
	}
	i.closer.Add(i.FormatContext.CloseInput)

	if err := i.FormatContext.FindStreamInfo(nil); err != nil {
		return nil, fmt.Errorf("unable to get stream info: %w", err)
	}

	for _, stream := range i.FormatContext.Streams() {
		cp := stream.CodecParameters()
		logger.Debugf(ctx, "input stream #%d: %s", stream.Index(), spew.Sdump(cp.CodecID(), cp.MediaType(), cp.SampleRate(), cp.BitRate()))
	}

	i.packet = pool.Packets.Get()
	i.closer.Add(func() {
		pool.Packets.Put(i.packet)
		i.packet = nil
	})
	return i, nil
}

func (i *Input) String() string {
	return fmt.Sprintf("Input(%s)", i.URL)
}

func (i *Input) TrackCount() int {
	return len(i.FormatContext.Streams())
}

func (i *Input) stream(trackIndex int) (*astiav.Stream, error) {
	stream := avconv.StreamByIndex(i.FormatContext, trackIndex)
	if stream == nil {
		return nil, fmt.Errorf("there is no track #%d (have %d tracks)", trackIndex, i.TrackCount())
	}
	return stream, nil
}

// TrackFormat describes the track. The native codec parameters belong to
// the Input and are valid until Close.
func (i *Input) TrackFormat(trackIndex int) (*types.Format, error) {
	stream, err := i.stream(trackIndex)
	if err != nil {
		return nil, err
	}
	cp := stream.CodecParameters()
	return &types.Format{
		MIME:         trackMIMEType(cp),
		SampleRate:   cp.SampleRate(),
		ChannelCount: cp.ChannelLayout().Channels(),
		BitRate:      cp.BitRate(),
		MaxInputSize: i.maxInputSize(cp),
		Width:        cp.Width(),
		Height:       cp.Height(),
		Extradata:    bytes.Clone(cp.ExtraData()),
		Native:       cp,
	}, nil
}

func trackMIMEType(cp *astiav.CodecParameters) string {
	if mimeType := avconv.MIMEType(cp.CodecID()); mimeType != "" {
		return mimeType
	}
	switch cp.MediaType() {
	case astiav.MediaTypeAudio:
		return "audio/x-" + cp.CodecID().String()
	case astiav.MediaTypeVideo:
		return "video/x-" + cp.CodecID().String()
	default:
		return "application/x-" + cp.CodecID().String()
	}
}

func (i *Input) maxInputSize(cp *astiav.CodecParameters) int {
	if cp.MediaType() == astiav.MediaTypeVideo {
		// an uncompressed 4:2:0 picture is the upper bound of a sane encoder
		return max(i.Config.DefaultMaxInputSize, cp.Width()*cp.Height()*3/2)
	}
	return i.Config.DefaultMaxInputSize
}

func (i *Input) SelectTrack(trackIndex int) error {
	if _, err := i.stream(trackIndex); err != nil {
		return err
	}
	i.selected[trackIndex] = struct{}{}
	return nil
}

func (i *Input) UnselectTrack(trackIndex int) {
	delete(i.selected, trackIndex)
}

// SelectTracksByMIMEPrefix selects every track of the given kind ("audio/",
// "video/") and returns their indexes together with the largest sample size
// they may produce.
func (i *Input) SelectTracksByMIMEPrefix(
	ctx context.Context,
	prefix string,
) (_tracks []int, _maxInputSize int, _err error) {
	logger.Debugf(ctx, "SelectTracksByMIMEPrefix: '%s'", prefix)
	defer func() { logger.Debugf(ctx, "/SelectTracksByMIMEPrefix: '%s': %v %d %v", prefix, _tracks, _maxInputSize, _err) }()

	for trackIndex := 0; trackIndex < i.TrackCount(); trackIndex++ {
		format, err := i.TrackFormat(trackIndex)
		if err != nil {
			return nil, 0, err
		}
		if !strings.HasPrefix(format.MIME, prefix) {
			continue
		}
		if err := i.SelectTrack(trackIndex); err != nil {
			return nil, 0, err
		}
		_tracks = append(_tracks, trackIndex)
		_maxInputSize = max(_maxInputSize, format.MaxInputSize)
	}
	if len(_tracks) == 0 {
		return nil, 0, fmt.Errorf("there are no tracks with MIME type '%s*' in '%s'", prefix, i.URL)
	}
	return _tracks, _maxInputSize, nil
}

// load makes sure the cursor points to a sample of a selected track.
func (i *Input) load(ctx context.Context) {
	if i.loaded {
		return
	}
	i.loaded = true
	i.readNext(ctx)
}

func (i *Input) readNext(ctx context.Context) {
	if i.exhausted {
		return
	}
	for {
		i.packet.Unref()
		err := i.FormatContext.ReadFrame(i.packet)
		switch {
		case err == nil:
		case errors.Is(err, astiav.ErrEof):
			logger.Debugf(ctx, "%s: end of the input", i)
			i.exhausted = true
			return
		default:
			i.readErr = fmt.Errorf("unable to read a frame: %w", err)
			i.exhausted = true
			return
		}
		if _, ok := i.selected[i.packet.StreamIndex()]; ok {
			return
		}
	}
}

// ReadSample copies the current sample into buf. io.EOF means the input is
// exhausted; any other error means it is unreadable.
func (i *Input) ReadSample(ctx context.Context, buf []byte) (int, error) {
	if i.closed {
		return 0, fmt.Errorf("the input is closed")
	}
	i.load(ctx)
	if i.exhausted {
		if i.readErr != nil {
			return 0, i.readErr
		}
		return 0, io.EOF
	}
	data := i.packet.Data()
	if len(data) > len(buf) {
		return 0, fmt.Errorf("the sample of %d bytes does not fit into the buffer of %d bytes", len(data), len(buf))
	}
	return copy(buf, data), nil
}

func (i *Input) Advance(ctx context.Context) bool {
	if i.closed {
		return false
	}
	if !i.loaded {
		i.load(ctx)
	}
	i.readNext(ctx)
	return !i.exhausted
}

// SampleTime returns the timestamp of the current sample in microseconds,
// or -1 once the input is exhausted.
func (i *Input) SampleTime() int64 {
	if i.closed {
		return -1
	}
	i.load(context.Background())
	if i.exhausted {
		return -1
	}
	pts := i.packet.Pts()
	if avconv.IsNoPTS(pts) {
		pts = i.packet.Dts()
	}
	stream := avconv.StreamByIndex(i.FormatContext, i.packet.StreamIndex())
	if stream == nil {
		return -1
	}
	return avconv.Micros(pts, stream.TimeBase())
}

func (i *Input) SampleFlags() types.BufferFlags {
	if i.closed {
		return 0
	}
	i.load(context.Background())
	if i.exhausted {
		return 0
	}
	var flags types.BufferFlags
	if i.packet.Flags().Has(astiav.PacketFlagKey) {
		flags = flags.Add(types.BufferFlagKeyFrame)
	}
	return flags
}

// SampleTrackIndex returns the track of the current sample, or -1 once the
// input is exhausted.
func (i *Input) SampleTrackIndex() int {
	if i.closed {
		return -1
	}
	i.load(context.Background())
	if i.exhausted {
		return -1
	}
	return i.packet.StreamIndex()
}

// Close releases the demuxer. It is idempotent.
func (i *Input) Close(ctx context.Context) (_err error) {
	if i == nil || i.closed {
		return nil
	}
	logger.Debugf(ctx, "Close[%s]", i)
	defer func() { logger.Debugf(ctx, "/Close[%s]: %v", i, _err) }()
	i.closed = true
	return i.closer.Close()
}
