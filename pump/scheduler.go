// Package pump drives a Source, a decoder, a transform, an encoder and a
// Muxer from a single goroutine, without ever blocking on any of them.
package pump

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/avpump/types"
)

// Scheduler is a single-use run of the pump loop.
type Scheduler struct {
	Source  Source
	Decoder CodecDevice
	Encoder CodecDevice
	Muxer   Muxer
	Config  Config
	Stats   Stats

	decoderInput  [][]byte
	decoderOutput [][]byte
	encoderInput  [][]byte
	encoderOutput [][]byte

	pendingSlot types.SlotIndex
	pendingInfo types.BufferInfo

	sourceEOS   bool
	decodeEOS   bool
	pipelineEOS bool

	decoderFormat      *types.Format
	encoderFormat      *types.Format
	encoderFormatKnown bool
	trackIndex         int

	teardownOnce sync.Once
	teardownErr  error
}

func NewScheduler(
	source Source,
	decoder CodecDevice,
	encoder CodecDevice,
	muxer Muxer,
	cfg Config,
) *Scheduler {
	return &Scheduler{
		Source:      source,
		Decoder:     decoder,
		Encoder:     encoder,
		Muxer:       muxer,
		Config:      cfg.withDefaults(),
		pendingSlot: types.SlotIndexNone,
		trackIndex:  -1,
	}
}

// Run executes the loop until the end-of-stream marker reaches the muxer,
// a stop is requested, ctx is cancelled or a fatal error occurs. Teardown
// always follows. A Scheduler can be run only once.
func (s *Scheduler) Run(
	ctx context.Context,
	rc *RunContext,
) (_err error) {
	logger.Debugf(ctx, "Run")
	defer func() { logger.Debugf(ctx, "/Run: %v", _err) }()

	if !rc.compareAndSwapStatus(types.RunStatusInitialized, types.RunStatusStarted) {
		return fmt.Errorf("the run is already in status %s", rc.Status())
	}

	finalStatus := types.RunStatusStopped
	defer func() {
		if err := s.Close(ctx); err != nil {
			logger.Errorf(ctx, "teardown failed: %v", err)
			if _err == nil {
				_err = fmt.Errorf("unable to tear down the pipeline: %w", err)
				finalStatus = types.RunStatusStopped
			}
		}
		rc.status.Store(int32(finalStatus))
		logger.Infof(ctx, "the run ended with status %s: %s", finalStatus, &s.Stats)
		if s.Config.OnCompleted != nil {
			s.Config.OnCompleted(ctx, _err)
		}
	}()

	s.decoderInput = s.Decoder.InputBuffers(ctx)
	s.decoderOutput = s.Decoder.OutputBuffers(ctx)
	s.encoderInput = s.Encoder.InputBuffers(ctx)
	s.encoderOutput = s.Encoder.OutputBuffers(ctx)

	if s.Config.OnStarted != nil {
		s.Config.OnStarted(ctx)
	}

	for {
		if rc.IsStopRequested() {
			logger.Debugf(ctx, "stop requested")
			return nil
		}
		if err := ctx.Err(); err != nil {
			logger.Debugf(ctx, "context is closed: %v", err)
			return nil
		}

		progressed, err := s.iterate(ctx)
		if err != nil {
			return err
		}

		if s.pipelineEOS {
			finalStatus = types.RunStatusCompleted
			return nil
		}
		if s.Config.ExitOnSourceExhausted && s.sourceEOS && s.Source.SampleTime() < 0 {
			logger.Debugf(ctx, "the source is exhausted")
			return nil
		}
		if !progressed {
			runtime.Gosched()
		}
	}
}

func (s *Scheduler) iterate(ctx context.Context) (bool, error) {
	var progressed bool
	for _, phase := range []func(context.Context) (bool, error){
		s.extractToDecoder,
		s.decoderToPending,
		s.pendingToEncoder,
		s.encoderToMuxer,
	} {
		ok, err := phase(ctx)
		if err != nil {
			return false, err
		}
		progressed = progressed || ok
	}
	return progressed, nil
}

// gateOpen holds back new work once the encoder output format is known
// and until the muxer has started, so that no encoded sample has to wait
// for the container.
func (s *Scheduler) gateOpen() bool {
	return !s.encoderFormatKnown || s.Muxer.IsStarted()
}

// PendingSlot returns the decoder output slot waiting for an encoder input
// slot, or types.SlotIndexNone.
func (s *Scheduler) PendingSlot() types.SlotIndex {
	return s.pendingSlot
}

// EndOfStream returns the three end-of-stream flags: the marker was queued
// into the decoder, handed to the encoder, and written to the muxer.
func (s *Scheduler) EndOfStream() (source, decode, pipeline bool) {
	return s.sourceEOS, s.decodeEOS, s.pipelineEOS
}
