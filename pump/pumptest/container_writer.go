package pumptest

import (
	"bytes"
	"context"
	"fmt"

	"github.com/xaionaro-go/avpump/types"
)

type WrittenSample struct {
	TrackIndex int
	Data       []byte
	Info       types.BufferInfo
}

// ContainerWriter records everything written into it.
type ContainerWriter struct {
	Tracks     []*types.Format
	Samples    []WrittenSample
	StartCount int
	CloseCount int

	// StartError, if set, is returned by Start.
	StartError error
}

func (w *ContainerWriter) AddTrack(_ context.Context, format *types.Format) (int, error) {
	if w.StartCount > 0 {
		return -1, fmt.Errorf("already started")
	}
	w.Tracks = append(w.Tracks, format)
	return len(w.Tracks) - 1, nil
}

func (w *ContainerWriter) Start(context.Context) error {
	if w.StartError != nil {
		return w.StartError
	}
	w.StartCount++
	return nil
}

func (w *ContainerWriter) WriteSample(_ context.Context, trackIndex int, data []byte, info types.BufferInfo) error {
	if w.StartCount == 0 {
		return fmt.Errorf("not started")
	}
	if w.CloseCount > 0 {
		return fmt.Errorf("closed")
	}
	w.Samples = append(w.Samples, WrittenSample{
		TrackIndex: trackIndex,
		Data:       bytes.Clone(data),
		Info:       info,
	})
	return nil
}

func (w *ContainerWriter) Close(context.Context) error {
	w.CloseCount++
	return nil
}
