package avpump

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/avpump/codec"
	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/avpump/pump"
	"github.com/xaionaro-go/avpump/transform"
	"github.com/xaionaro-go/avpump/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/secret"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xsync"
)

const (
	DefaultPollTimeout = pump.DefaultPollTimeout
)

type PipelineConfig struct {
	InputURL     string
	InputAuthKey secret.String
	InputOptions types.DictionaryItems

	OutputURL    string
	OutputFormat string
	OutputType   types.OutputType

	// MediaType is the kind of the pumped track; audio if unset.
	MediaType typing.Optional[types.MediaType]

	Decoder   codec.DecoderConfig
	Encoder   codec.EncoderConfig
	Transform transform.Transform

	PollTimeout           time.Duration
	ExitOnSourceExhausted bool

	OnStarted   func(ctx context.Context)
	OnCompleted func(ctx context.Context, err error)

	// Factory builds the collaborators; NewLibAVComponents if nil.
	Factory ComponentsFactory
}

func (cfg PipelineConfig) mediaType() types.MediaType {
	if cfg.MediaType.IsSet() {
		return cfg.MediaType.Get()
	}
	return types.MediaTypeAudio
}

func (cfg PipelineConfig) Validate() error {
	if cfg.Factory == nil {
		if cfg.InputURL == "" {
			return fmt.Errorf("the input URL is not set")
		}
		if cfg.OutputURL == "" {
			return fmt.Errorf("the output URL is not set")
		}
	}
	mediaType := cfg.mediaType()
	if mediaType.MIMEPrefix() == "" {
		return fmt.Errorf("unsupported media type %s", mediaType)
	}
	if !cfg.OutputType.Expects(mediaType) {
		return fmt.Errorf("the output type %s does not carry %s", cfg.OutputType, mediaType)
	}
	if len(cfg.OutputType.ExpectedMediaTypes()) != 1 {
		return fmt.Errorf("the output type %s expects more than the single track a pipeline produces, so the output would never start", cfg.OutputType)
	}
	return nil
}

// Pipeline runs one pump on a background goroutine and exposes its state to
// the control goroutine.
type Pipeline struct {
	Config     PipelineConfig
	RunContext *pump.RunContext

	locker        xsync.Mutex
	scheduler     *pump.Scheduler
	err           *error
	startedChan   *closeChan
	completedChan *closeChan
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		Config:        cfg,
		RunContext:    pump.NewRunContext(),
		startedChan:   newCloseChan("started"),
		completedChan: newCloseChan("completed"),
	}
}

func (p *Pipeline) String() string {
	return fmt.Sprintf("Pipeline(%s -> %s)", p.Config.InputURL, p.Config.OutputURL)
}

// Start builds the components and launches the worker goroutine. The run
// lasts until it completes, Stop is called or ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()

	return xsync.DoA1R1(ctx, &p.locker, p.startLocked, ctx)
}

func (p *Pipeline) startLocked(ctx context.Context) error {
	if p.scheduler != nil {
		return fmt.Errorf("the pipeline was already started")
	}
	if err := p.Config.Validate(); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}

	factory := p.Config.Factory
	if factory == nil {
		factory = NewLibAVComponents
	}
	components, err := factory(ctx, p.Config)
	if err != nil {
		return fmt.Errorf("unable to build the pipeline components: %w", err)
	}

	p.scheduler = pump.NewScheduler(
		components.Source,
		components.Decoder,
		components.Encoder,
		components.Muxer,
		pump.Config{
			PollTimeout:           p.Config.PollTimeout,
			MediaType:             typing.Opt(p.Config.mediaType()),
			Transform:             p.Config.Transform,
			ExitOnSourceExhausted: p.Config.ExitOnSourceExhausted,
			OnStarted: func(ctx context.Context) {
				p.startedChan.Close(ctx)
				if p.Config.OnStarted != nil {
					p.Config.OnStarted(ctx)
				}
			},
			OnCompleted: func(ctx context.Context, err error) {
				xatomic.StorePointer(&p.err, &err)
				if p.Config.OnCompleted != nil {
					p.Config.OnCompleted(ctx, err)
				}
			},
		},
	)

	scheduler := p.scheduler
	observability.Go(ctx, func(ctx context.Context) {
		defer p.completedChan.Close(ctx)
		if err := scheduler.Run(ctx, p.RunContext); err != nil {
			logger.Errorf(ctx, "%s failed: %v", p, err)
		}
	})
	return nil
}

// Stop asks the worker to stop at the top of its next iteration. It does
// not wait; see Wait.
func (p *Pipeline) Stop(ctx context.Context) {
	logger.Debugf(ctx, "Stop")
	p.RunContext.RequestStop()
}

func (p *Pipeline) Status() types.RunStatus {
	return p.RunContext.Status()
}

// Stats returns the counters of the run, or nil if it was not started.
func (p *Pipeline) Stats(ctx context.Context) *pump.Stats {
	return xsync.DoR1(ctx, &p.locker, func() *pump.Stats {
		if p.scheduler == nil {
			return nil
		}
		return &p.scheduler.Stats
	})
}

// Err returns the error the run ended with.
func (p *Pipeline) Err() error {
	errPtr := xatomic.LoadPointer(&p.err)
	if errPtr == nil {
		return nil
	}
	return *errPtr
}

// StartedChan is closed once the worker entered the loop.
func (p *Pipeline) StartedChan() <-chan struct{} {
	return p.startedChan.Chan()
}

// CompletedChan is closed once the worker finished the teardown.
func (p *Pipeline) CompletedChan() <-chan struct{} {
	return p.completedChan.Chan()
}

// Wait blocks until the run is over and returns its error.
func (p *Pipeline) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.completedChan.Chan():
		return p.Err()
	}
}
