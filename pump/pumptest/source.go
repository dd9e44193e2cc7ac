// Package pumptest provides deterministic in-memory collaborators for
// exercising the pump without libav.
package pumptest

import (
	"context"
	"fmt"
	"io"

	"github.com/xaionaro-go/avpump/types"
)

type Sample struct {
	Data       []byte
	TimeMicros int64
	Flags      types.BufferFlags
}

// Samples generates count samples of size bytes each, spaced by step
// microseconds; the payload of sample i is filled with byte(i+1).
func Samples(count, size int, step int64) []Sample {
	result := make([]Sample, 0, count)
	for i := 0; i < count; i++ {
		data := make([]byte, size)
		for j := range data {
			data[j] = byte(i + 1)
		}
		result = append(result, Sample{
			Data:       data,
			TimeMicros: int64(i) * step,
			Flags:      types.BufferFlags(types.BufferFlagKeyFrame),
		})
	}
	return result
}

// Source serves Samples in order.
type Source struct {
	Samples []Sample

	// ReadError, if set, is returned by every ReadSample call once
	// FailAfter samples were read.
	ReadError error

	// FailAfter makes Advance report no further samples once that many
	// samples were read while ReadError is set, as a demuxer does when the
	// container breaks mid-stream.
	FailAfter int

	// OnRead is called after every successful read with the amount of
	// samples read so far.
	OnRead func(reads int)

	Reads      int
	CloseCount int

	pos int
}

func NewSource(samples ...Sample) *Source {
	return &Source{Samples: samples}
}

func (s *Source) ReadSample(_ context.Context, buf []byte) (int, error) {
	if s.failing() {
		return 0, s.ReadError
	}
	if s.pos >= len(s.Samples) {
		return 0, io.EOF
	}
	data := s.Samples[s.pos].Data
	if len(buf) < len(data) {
		return 0, fmt.Errorf("buffer is too small: %d < %d", len(buf), len(data))
	}
	n := copy(buf, data)
	s.Reads++
	if s.OnRead != nil {
		s.OnRead(s.Reads)
	}
	return n, nil
}

func (s *Source) failing() bool {
	return s.ReadError != nil && s.Reads >= s.FailAfter
}

func (s *Source) Advance(context.Context) bool {
	if s.pos < len(s.Samples) {
		s.pos++
	}
	if s.failing() {
		return false
	}
	return s.pos < len(s.Samples)
}

func (s *Source) SampleTime() int64 {
	if s.pos >= len(s.Samples) {
		return -1
	}
	return s.Samples[s.pos].TimeMicros
}

func (s *Source) SampleFlags() types.BufferFlags {
	if s.pos >= len(s.Samples) {
		return 0
	}
	return s.Samples[s.pos].Flags
}

func (s *Source) Close(context.Context) error {
	s.CloseCount++
	return nil
}
