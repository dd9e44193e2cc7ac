package muxer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avpump/types"
)

func TestLibAVWriterRequiresNativeParameters(t *testing.T) {
	ctx := context.Background()
	w, err := NewLibAVWriter(ctx, filepath.Join(t.TempDir(), "out.m4a"), "")
	require.NoError(t, err)

	_, err = w.AddTrack(ctx, &types.Format{MIME: "audio/mp4a-latm", SampleRate: 44100, ChannelCount: 2})
	require.Error(t, err)

	require.ErrorIs(t, w.WriteSample(ctx, 0, []byte{1}, types.BufferInfo{Size: 1}), ErrNotStarted)
	require.NoError(t, w.Close(ctx))
	require.NoError(t, w.Close(ctx))
}

func TestLibAVWriterForcedFormat(t *testing.T) {
	ctx := context.Background()
	w, err := NewLibAVWriter(ctx, filepath.Join(t.TempDir(), "out.bin"), "adts")
	require.NoError(t, err)
	require.Equal(t, "adts", w.FormatContext.OutputFormat().Name())
	require.NoError(t, w.Close(ctx))
}
