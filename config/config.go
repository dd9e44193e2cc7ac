// Package config is the YAML configuration of an avpump run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xaionaro-go/avpump"
	"github.com/xaionaro-go/avpump/codec"
	"github.com/xaionaro-go/avpump/transform"
	"github.com/xaionaro-go/avpump/types"
	"github.com/xaionaro-go/typing"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Input     InputConfig         `yaml:"input"`
	Output    OutputConfig        `yaml:"output"`
	Decoder   codec.DecoderConfig `yaml:"decoder,omitempty"`
	Encoder   codec.EncoderConfig `yaml:"encoder"`
	Transform TransformConfig     `yaml:"transform"`
	Pump      PumpConfig          `yaml:"pump"`
}

type InputConfig struct {
	URL     string                `yaml:"url"`
	AuthKey Secret                `yaml:"auth_key,omitempty"`
	Options types.DictionaryItems `yaml:"options,omitempty"`
}

type OutputConfig struct {
	URL string `yaml:"url"`

	// Format forces the container format; it is guessed from the URL if empty.
	Format string `yaml:"format,omitempty"`

	// Type is "audio-only" (default), "video-only" or "mixed".
	Type string `yaml:"type,omitempty"`
}

type TransformConfig struct {
	// Kind is "identity" (default), "volume" or "peak-normalize".
	Kind string  `yaml:"kind,omitempty"`
	Gain float64 `yaml:"gain,omitempty"`
}

type PumpConfig struct {
	PollTimeout time.Duration `yaml:"poll_timeout,omitempty"`

	// MediaType is the kind of the pumped track: "audio" (default) or "video".
	MediaType string `yaml:"media_type,omitempty"`

	ExitOnSourceExhausted bool `yaml:"exit_on_source_exhausted,omitempty"`
}

// Default returns the configuration with every default applied.
func Default() Config {
	var cfg Config
	cfg.setDefaults()
	return cfg
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open the config file '%s': %w", path, err)
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("unable to parse the config file '%s': %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML config. Unknown fields are rejected.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unable to decode: %w", err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	cfg.Encoder = cfg.Encoder.WithDefaults()
	if cfg.Output.Type == "" {
		cfg.Output.Type = types.OutputTypeAudioOnly.String()
	}
	if cfg.Transform.Kind == "" {
		cfg.Transform.Kind = transform.KindIdentity
	}
	if cfg.Pump.PollTimeout <= 0 {
		cfg.Pump.PollTimeout = avpump.DefaultPollTimeout
	}
	if cfg.Pump.MediaType == "" {
		cfg.Pump.MediaType = types.MediaTypeAudio.String()
	}
}

// Bytes returns the config as YAML; the auth key is hidden.
func (cfg Config) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(cfg); err != nil {
		return nil, fmt.Errorf("unable to encode: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("unable to finalize the encoding: %w", err)
	}
	return buf.Bytes(), nil
}

func (cfg Config) Validate() error {
	var errs []error
	if cfg.Input.URL == "" {
		errs = append(errs, fmt.Errorf("input.url is not set"))
	}
	if cfg.Output.URL == "" {
		errs = append(errs, fmt.Errorf("output.url is not set"))
	}
	outputType, err := types.ParseOutputType(cfg.Output.Type)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("output.type: %w", err))
	case outputType == types.OutputTypeMixed:
		errs = append(errs, fmt.Errorf("output.type: a single pump produces a single track, so '%s' can never start", outputType))
	}
	if _, err := types.ParseMediaType(cfg.Pump.MediaType); err != nil {
		errs = append(errs, fmt.Errorf("pump.media_type: %w", err))
	}
	if _, err := transform.Parse(cfg.Transform.Kind, cfg.Transform.Gain); err != nil {
		errs = append(errs, fmt.Errorf("transform: %w", err))
	}
	if cfg.Encoder.ChannelCount > 2 {
		errs = append(errs, fmt.Errorf("encoder.channel_count: only mono and stereo are supported, got %d", cfg.Encoder.ChannelCount))
	}
	return errors.Join(errs...)
}

// PipelineConfig converts the config to the parameters of a Pipeline.
func (cfg Config) PipelineConfig() (avpump.PipelineConfig, error) {
	if err := cfg.Validate(); err != nil {
		return avpump.PipelineConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	outputType, err := types.ParseOutputType(cfg.Output.Type)
	if err != nil {
		return avpump.PipelineConfig{}, err
	}
	mediaType, err := types.ParseMediaType(cfg.Pump.MediaType)
	if err != nil {
		return avpump.PipelineConfig{}, err
	}
	t, err := transform.Parse(cfg.Transform.Kind, cfg.Transform.Gain)
	if err != nil {
		return avpump.PipelineConfig{}, err
	}
	return avpump.PipelineConfig{
		InputURL:              cfg.Input.URL,
		InputAuthKey:          cfg.Input.AuthKey.String,
		InputOptions:          cfg.Input.Options,
		OutputURL:             cfg.Output.URL,
		OutputFormat:          cfg.Output.Format,
		OutputType:            outputType,
		MediaType:             typing.Opt(mediaType),
		Decoder:               cfg.Decoder,
		Encoder:               cfg.Encoder,
		Transform:             t,
		PollTimeout:           cfg.Pump.PollTimeout,
		ExitOnSourceExhausted: cfg.Pump.ExitOnSourceExhausted,
	}, nil
}
