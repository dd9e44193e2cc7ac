package codec

import (
	"github.com/xaionaro-go/avpump/types"
	"github.com/xaionaro-go/typing"
)

const (
	DefaultInputSlots   = 4
	DefaultOutputSlots  = 4
	DefaultMaxInputSize = 16384

	MaxChannelCount = 2

	// MaxDecodedFrameSamples is the largest amount of samples per channel a
	// decoder is expected to emit at once (FLAC's largest block size).
	MaxDecodedFrameSamples = 65536

	bytesPerS16 = 2

	DefaultEncoderCodecName    = "aac"
	DefaultEncoderSampleRate   = 44100
	DefaultEncoderChannelCount = 2
	DefaultEncoderBitRate      = int64(128000)

	// MIMETypeRawAudio is the format of the decoded buffers: interleaved
	// signed 16-bit native-endian PCM.
	MIMETypeRawAudio = "audio/raw"
)

// SlotsConfig describes the buffer pools a Codec emulates.
type SlotsConfig struct {
	InputSlots  int `yaml:"input_slots,omitempty"`
	OutputSlots int `yaml:"output_slots,omitempty"`

	// MaxInputSize is the size of every input buffer.
	MaxInputSize int `yaml:"max_input_size,omitempty"`

	// OutputSlotSize is the initial size of every output buffer. The
	// output pool grows when a larger output arrives.
	OutputSlotSize int `yaml:"output_slot_size,omitempty"`
}

func (cfg SlotsConfig) withDefaults() SlotsConfig {
	if cfg.InputSlots <= 0 {
		cfg.InputSlots = DefaultInputSlots
	}
	if cfg.OutputSlots <= 0 {
		cfg.OutputSlots = DefaultOutputSlots
	}
	if cfg.MaxInputSize <= 0 {
		cfg.MaxInputSize = DefaultMaxInputSize
	}
	if cfg.OutputSlotSize <= 0 {
		cfg.OutputSlotSize = cfg.MaxInputSize
	}
	return cfg
}

// MaxDecodedSize returns the size of the largest raw buffer the decoder of
// format may emit at once.
func MaxDecodedSize(format *types.Format) int {
	channels := MaxChannelCount
	if format != nil && format.ChannelCount > 0 {
		channels = min(format.ChannelCount, MaxChannelCount)
	}
	result := MaxDecodedFrameSamples * channels * bytesPerS16
	if format != nil {
		// 8-bit PCM doubles in size when converted to S16
		result = max(result, 2*format.MaxInputSize)
	}
	return result
}

type DecoderConfig struct {
	SlotsConfig `yaml:",inline"`

	// CodecName forces a specific decoder instead of the default one for
	// the codec of the input.
	CodecName string `yaml:"codec_name,omitempty"`
}

type EncoderConfig struct {
	SlotsConfig `yaml:",inline"`

	CodecName    string            `yaml:"codec_name,omitempty"`
	SampleRate   int               `yaml:"sample_rate,omitempty"`
	ChannelCount int               `yaml:"channel_count,omitempty"`
	BitRate      int64             `yaml:"bit_rate,omitempty"`
	Options      map[string]string `yaml:"options,omitempty"`

	// InputSampleRate and InputChannelCount describe the PCM queued into
	// the encoder; unset means it already has the output rate and layout.
	InputSampleRate   typing.Optional[int] `yaml:"-"`
	InputChannelCount typing.Optional[int] `yaml:"-"`
}

// WithDefaults returns the config with every unset field set to the
// default encoder parameters (AAC-LC, 44.1kHz stereo, 128kbps).
func (cfg EncoderConfig) WithDefaults() EncoderConfig {
	cfg.SlotsConfig = cfg.SlotsConfig.withDefaults()
	if cfg.CodecName == "" {
		cfg.CodecName = DefaultEncoderCodecName
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultEncoderSampleRate
	}
	if cfg.ChannelCount <= 0 {
		cfg.ChannelCount = DefaultEncoderChannelCount
	}
	if cfg.BitRate <= 0 {
		cfg.BitRate = DefaultEncoderBitRate
	}
	return cfg
}

func (cfg EncoderConfig) inputSampleRate() int {
	if cfg.InputSampleRate.IsSet() {
		return cfg.InputSampleRate.Get()
	}
	return cfg.SampleRate
}

func (cfg EncoderConfig) inputChannelCount() int {
	if cfg.InputChannelCount.IsSet() {
		return cfg.InputChannelCount.Get()
	}
	return cfg.ChannelCount
}
