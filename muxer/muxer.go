// Package muxer collects encoded tracks and starts the output container only
// once every track the output is expected to carry is known.
package muxer

import (
	"context"
	"errors"
	"fmt"

	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/avpump/types"
	"go.uber.org/atomic"
)

var ErrNotStarted = errors.New("the muxer is not started")

// ContainerWriter is the container backend behind a Muxer.
type ContainerWriter interface {
	// AddTrack declares a track and returns its index; it is only called
	// before Start.
	AddTrack(ctx context.Context, format *types.Format) (int, error)

	// Start writes the container header.
	Start(ctx context.Context) error

	WriteSample(ctx context.Context, trackIndex int, data []byte, info types.BufferInfo) error

	// Close finalizes the container if it was started and releases
	// the resources.
	Close(ctx context.Context) error
}

type Muxer struct {
	Writer     ContainerWriter
	OutputType types.OutputType

	tracks   map[types.MediaType]int
	started  atomic.Bool
	finished bool

	SamplesWritten atomic.Uint64
	SamplesSkipped atomic.Uint64
	BytesWritten   atomic.Uint64
}

func New(
	writer ContainerWriter,
	outputType types.OutputType,
) *Muxer {
	return &Muxer{
		Writer:     writer,
		OutputType: outputType,
		tracks:     map[types.MediaType]int{},
	}
}

func (m *Muxer) String() string {
	return fmt.Sprintf("Muxer(%s)", m.OutputType)
}

// RegisterTrack declares the track of the given role. The container is
// started as soon as the last expected role is registered.
func (m *Muxer) RegisterTrack(
	ctx context.Context,
	role types.MediaType,
	format *types.Format,
) (_ret int, _err error) {
	logger.Debugf(ctx, "RegisterTrack(ctx, %s, %s)", role, format)
	defer func() { logger.Debugf(ctx, "/RegisterTrack(ctx, %s, %s): %d %v", role, format, _ret, _err) }()

	if m.finished {
		return -1, fmt.Errorf("the muxer is already finished")
	}
	if !m.OutputType.Expects(role) {
		return -1, fmt.Errorf("output type %s does not expect a %s track", m.OutputType, role)
	}
	if idx, ok := m.tracks[role]; ok {
		return -1, fmt.Errorf("the %s track is already registered as #%d", role, idx)
	}

	idx, err := m.Writer.AddTrack(ctx, format)
	if err != nil {
		return -1, fmt.Errorf("unable to add the %s track: %w", role, err)
	}
	m.tracks[role] = idx

	if err := m.tryStart(ctx); err != nil {
		return idx, err
	}
	return idx, nil
}

func (m *Muxer) tryStart(ctx context.Context) error {
	for _, role := range m.OutputType.ExpectedMediaTypes() {
		if _, ok := m.tracks[role]; !ok {
			logger.Debugf(ctx, "not starting the muxer yet: no %s track", role)
			return nil
		}
	}
	if err := m.Writer.Start(ctx); err != nil {
		return fmt.Errorf("unable to start the container: %w", err)
	}
	m.started.Store(true)
	logger.Debugf(ctx, "the muxer is started with %d tracks", len(m.tracks))
	return nil
}

func (m *Muxer) IsStarted() bool {
	return m.started.Load()
}

// TrackIndex returns the index of the track registered for the role.
func (m *Muxer) TrackIndex(role types.MediaType) (int, bool) {
	idx, ok := m.tracks[role]
	return idx, ok
}

// WriteSample forwards the sample to the container. Empty samples (for
// example a bare end-of-stream marker) are accepted but not forwarded.
func (m *Muxer) WriteSample(
	ctx context.Context,
	trackIndex int,
	data []byte,
	info types.BufferInfo,
) error {
	if !m.IsStarted() {
		return ErrNotStarted
	}
	if m.finished {
		return fmt.Errorf("the muxer is already finished")
	}
	if len(data) == 0 {
		m.SamplesSkipped.Inc()
		logger.Tracef(ctx, "skipping an empty sample: %s", info)
		return nil
	}
	if err := m.Writer.WriteSample(ctx, trackIndex, data, info); err != nil {
		return fmt.Errorf("unable to write a sample into track #%d: %w", trackIndex, err)
	}
	m.SamplesWritten.Inc()
	m.BytesWritten.Add(uint64(len(data)))
	return nil
}

// Finish closes the container. Calling it again does nothing.
func (m *Muxer) Finish(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Finish")
	defer func() { logger.Debugf(ctx, "/Finish: %v", _err) }()
	if m.finished {
		return nil
	}
	m.finished = true
	if err := m.Writer.Close(ctx); err != nil {
		return fmt.Errorf("unable to close the container writer: %w", err)
	}
	return nil
}
