package pump

import (
	"context"
	"errors"

	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/xcontext"
)

// Close releases the Source, both codec devices and the Muxer. Every step is
// attempted even if a previous one failed. Only the first call does anything.
func (s *Scheduler) Close(ctx context.Context) error {
	s.teardownOnce.Do(func() {
		s.teardownErr = s.teardown(xcontext.DetachDone(ctx))
	})
	return s.teardownErr
}

func (s *Scheduler) teardown(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "teardown")
	defer func() { logger.Debugf(ctx, "/teardown: %v", _err) }()

	// the closer runs the functions in the reverse order of adding them
	closer := astikit.NewCloser()
	closer.AddWithError(func() error {
		return s.Muxer.Finish(ctx)
	})
	closer.AddWithError(func() error {
		return errors.Join(s.Encoder.Stop(ctx), s.Encoder.Close(ctx))
	})
	closer.AddWithError(func() error {
		return errors.Join(s.Decoder.Stop(ctx), s.Decoder.Close(ctx))
	})
	closer.AddWithError(func() error {
		return s.Source.Close(ctx)
	})
	return closer.Close()
}
