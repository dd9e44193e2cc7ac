package avpump

import (
	"context"
	"fmt"

	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/avpump/codec"
	"github.com/xaionaro-go/avpump/demuxer"
	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/avpump/muxer"
	"github.com/xaionaro-go/avpump/pump"
	"github.com/xaionaro-go/typing"
)

// Components are the collaborators driven by one run.
type Components struct {
	Source  pump.Source
	Decoder pump.CodecDevice
	Encoder pump.CodecDevice
	Muxer   pump.Muxer
}

// ComponentsFactory builds the collaborators of a run. On error it must
// release whatever it already built.
type ComponentsFactory func(ctx context.Context, cfg PipelineConfig) (*Components, error)

// NewLibAVComponents opens the input, selects its first track of
// cfg.MediaType and builds the libav decoder, encoder and output container
// for it.
func NewLibAVComponents(
	ctx context.Context,
	cfg PipelineConfig,
) (_ret *Components, _err error) {
	logger.Debugf(ctx, "NewLibAVComponents")
	defer func() { logger.Debugf(ctx, "/NewLibAVComponents: %v", _err) }()

	closer := astikit.NewCloser()
	defer func() {
		if _err != nil {
			if err := closer.Close(); err != nil {
				logger.Errorf(ctx, "unable to release the partially built components: %v", err)
			}
		}
	}()

	input, err := demuxer.Open(ctx, cfg.InputURL, cfg.InputAuthKey, demuxer.Config{
		CustomOptions:       cfg.InputOptions,
		DefaultMaxInputSize: cfg.Decoder.MaxInputSize,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open the input: %w", err)
	}
	closer.AddWithError(func() error { return input.Close(ctx) })

	mediaType := cfg.mediaType()
	tracks, maxInputSize, err := input.SelectTracksByMIMEPrefix(ctx, mediaType.MIMEPrefix())
	if err != nil {
		return nil, fmt.Errorf("unable to select the %s track: %w", mediaType, err)
	}
	for _, trackIndex := range tracks[1:] {
		logger.Warnf(ctx, "ignoring the extra %s track #%d", mediaType, trackIndex)
		input.UnselectTrack(trackIndex)
	}
	format, err := input.TrackFormat(tracks[0])
	if err != nil {
		return nil, err
	}
	logger.Infof(ctx, "pumping track #%d: %s", tracks[0], format)

	decoderCfg := cfg.Decoder
	decoderCfg.MaxInputSize = maxInputSize
	decoder, err := codec.NewDecoder(ctx, format, decoderCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the decoder: %w", err)
	}
	closer.AddWithError(func() error { return decoder.Close(ctx) })

	encoderCfg := cfg.Encoder
	// every decoded buffer has to fit into a single encoder input slot
	encoderCfg.MaxInputSize = max(encoderCfg.MaxInputSize, decoderCfg.OutputSlotSize, codec.MaxDecodedSize(format))
	if format.SampleRate > 0 && !encoderCfg.InputSampleRate.IsSet() {
		encoderCfg.InputSampleRate = typing.Opt(format.SampleRate)
	}
	if format.ChannelCount > 0 && !encoderCfg.InputChannelCount.IsSet() {
		encoderCfg.InputChannelCount = typing.Opt(min(format.ChannelCount, codec.MaxChannelCount))
	}
	encoder, err := codec.NewEncoder(ctx, encoderCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the encoder: %w", err)
	}
	closer.AddWithError(func() error { return encoder.Close(ctx) })

	writer, err := muxer.NewLibAVWriter(ctx, cfg.OutputURL, cfg.OutputFormat)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the output: %w", err)
	}

	return &Components{
		Source:  input,
		Decoder: decoder,
		Encoder: encoder,
		Muxer:   muxer.New(writer, cfg.OutputType),
	}, nil
}
