package pump

import (
	"context"
	"time"

	"github.com/xaionaro-go/avpump/transform"
	"github.com/xaionaro-go/avpump/types"
	"github.com/xaionaro-go/typing"
)

const (
	DefaultPollTimeout = time.Microsecond
)

type Config struct {
	// PollTimeout bounds every dequeue call.
	PollTimeout time.Duration

	// MediaType is the role the encoded track is registered with;
	// audio if unset.
	MediaType typing.Optional[types.MediaType]

	// Transform is applied to every decoded payload; nil means identity.
	Transform transform.Transform

	// ExitOnSourceExhausted stops the run (without draining the codecs)
	// as soon as the end-of-stream marker is handed to the decoder and the
	// source has no further sample time.
	ExitOnSourceExhausted bool

	// OnStarted is called on the worker goroutine before the first iteration.
	OnStarted func(ctx context.Context)

	// OnCompleted is called exactly once after teardown, with the terminal error.
	OnCompleted func(ctx context.Context, err error)
}

func (cfg Config) withDefaults() Config {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if !cfg.MediaType.IsSet() {
		cfg.MediaType = typing.Opt(types.MediaTypeAudio)
	}
	if cfg.Transform == nil {
		cfg.Transform = transform.Identity{}
	}
	return cfg
}
