package muxer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avpump/pump/pumptest"
	"github.com/xaionaro-go/avpump/types"
)

var (
	audioFormat = &types.Format{MIME: "audio/mp4a-latm", SampleRate: 44100, ChannelCount: 2}
	videoFormat = &types.Format{MIME: "video/avc", Width: 640, Height: 480}
)

func TestMuxerStartsWhenAllTracksAreRegistered(t *testing.T) {
	for _, order := range [][]types.MediaType{
		{types.MediaTypeAudio, types.MediaTypeVideo},
		{types.MediaTypeVideo, types.MediaTypeAudio},
	} {
		t.Run(fmt.Sprint(order), func(t *testing.T) {
			ctx := context.Background()
			writer := &pumptest.ContainerWriter{}
			m := New(writer, types.OutputTypeMixed)

			_, err := m.RegisterTrack(ctx, order[0], formatOf(order[0]))
			require.NoError(t, err)
			require.False(t, m.IsStarted())
			require.Zero(t, writer.StartCount)

			_, err = m.RegisterTrack(ctx, order[1], formatOf(order[1]))
			require.NoError(t, err)
			require.True(t, m.IsStarted())
			require.Equal(t, 1, writer.StartCount)

			audioIdx, ok := m.TrackIndex(types.MediaTypeAudio)
			require.True(t, ok)
			videoIdx, ok := m.TrackIndex(types.MediaTypeVideo)
			require.True(t, ok)
			require.NotEqual(t, audioIdx, videoIdx)
		})
	}
}

func formatOf(mediaType types.MediaType) *types.Format {
	if mediaType == types.MediaTypeVideo {
		return videoFormat
	}
	return audioFormat
}

func TestMuxerWriteBeforeStart(t *testing.T) {
	ctx := context.Background()
	writer := &pumptest.ContainerWriter{}
	m := New(writer, types.OutputTypeMixed)

	idx, err := m.RegisterTrack(ctx, types.MediaTypeAudio, audioFormat)
	require.NoError(t, err)

	err = m.WriteSample(ctx, idx, []byte{1, 2, 3}, types.BufferInfo{Size: 3})
	require.ErrorIs(t, err, ErrNotStarted)
	require.Empty(t, writer.Samples)
}

func TestMuxerRegisterValidation(t *testing.T) {
	ctx := context.Background()
	m := New(&pumptest.ContainerWriter{}, types.OutputTypeAudioOnly)

	_, err := m.RegisterTrack(ctx, types.MediaTypeVideo, videoFormat)
	require.Error(t, err)

	_, err = m.RegisterTrack(ctx, types.MediaTypeAudio, audioFormat)
	require.NoError(t, err)

	_, err = m.RegisterTrack(ctx, types.MediaTypeAudio, audioFormat)
	require.Error(t, err)
}

func TestMuxerStartFailure(t *testing.T) {
	ctx := context.Background()
	writer := &pumptest.ContainerWriter{StartError: fmt.Errorf("disk is full")}
	m := New(writer, types.OutputTypeAudioOnly)

	_, err := m.RegisterTrack(ctx, types.MediaTypeAudio, audioFormat)
	require.ErrorContains(t, err, "disk is full")
	require.False(t, m.IsStarted())
}

func TestMuxerWriteAndFinish(t *testing.T) {
	ctx := context.Background()
	writer := &pumptest.ContainerWriter{}
	m := New(writer, types.OutputTypeAudioOnly)

	idx, err := m.RegisterTrack(ctx, types.MediaTypeAudio, audioFormat)
	require.NoError(t, err)

	require.NoError(t, m.WriteSample(ctx, idx, []byte{1, 2}, types.BufferInfo{Size: 2, PresentationTimeMicros: 10}))
	require.NoError(t, m.WriteSample(ctx, idx, nil, types.BufferInfo{Flags: types.BufferFlags(types.BufferFlagEndOfStream)}))
	require.Len(t, writer.Samples, 1)
	require.Equal(t, uint64(1), m.SamplesWritten.Load())
	require.Equal(t, uint64(1), m.SamplesSkipped.Load())
	require.Equal(t, uint64(2), m.BytesWritten.Load())

	require.NoError(t, m.Finish(ctx))
	require.NoError(t, m.Finish(ctx))
	require.Equal(t, 1, writer.CloseCount)

	require.Error(t, m.WriteSample(ctx, idx, []byte{1}, types.BufferInfo{Size: 1}))
	require.Len(t, writer.Samples, 1)
}

func TestMuxerFinishWithoutStart(t *testing.T) {
	writer := &pumptest.ContainerWriter{}
	m := New(writer, types.OutputTypeMixed)
	require.NoError(t, m.Finish(context.Background()))
	require.Equal(t, 1, writer.CloseCount)
	require.Empty(t, writer.Samples)
}
