package demuxer

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avpump/internal/testmedia"
	"github.com/xaionaro-go/avpump/types"
	"github.com/xaionaro-go/secret"
)

func writeTestWAV(t *testing.T, sampleRate, channels, samples int) (string, []byte) {
	t.Helper()
	pcm := testmedia.SinePCM(sampleRate, channels, samples)
	path := filepath.Join(t.TempDir(), "tone.wav")
	require.NoError(t, testmedia.WriteWAV(path, sampleRate, channels, pcm))
	return path, pcm
}

func TestInputReadsSelectedTrack(t *testing.T) {
	ctx := context.Background()
	path, pcm := writeTestWAV(t, 8000, 1, 8000)

	in, err := Open(ctx, path, secret.New(""), Config{})
	require.NoError(t, err)
	defer in.Close(ctx)

	require.Equal(t, 1, in.TrackCount())
	format, err := in.TrackFormat(0)
	require.NoError(t, err)
	require.Equal(t, "audio/raw", format.MIME)
	require.Equal(t, types.MediaTypeAudio, format.MediaType())
	require.Equal(t, 8000, format.SampleRate)
	require.Equal(t, 1, format.ChannelCount)
	require.Equal(t, DefaultMaxInputSize, format.MaxInputSize)
	require.NotNil(t, format.Native)

	_, _, err = in.SelectTracksByMIMEPrefix(ctx, "video/")
	require.Error(t, err)

	tracks, maxInputSize, err := in.SelectTracksByMIMEPrefix(ctx, "audio/")
	require.NoError(t, err)
	require.Equal(t, []int{0}, tracks)
	require.Equal(t, DefaultMaxInputSize, maxInputSize)

	buf := make([]byte, maxInputSize)
	total := 0
	lastTime := int64(-1)
	for {
		n, err := in.ReadSample(ctx, buf)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Equal(t, 0, in.SampleTrackIndex())
		require.Greater(t, in.SampleTime(), lastTime)
		lastTime = in.SampleTime()
		total += n
		if !in.Advance(ctx) {
			break
		}
	}
	require.Equal(t, len(pcm), total)
	require.Equal(t, int64(-1), in.SampleTime())
	require.Equal(t, -1, in.SampleTrackIndex())
	require.False(t, in.Advance(ctx))

	_, err = in.ReadSample(ctx, buf)
	require.ErrorIs(t, err, io.EOF)
}

func TestInputWithoutSelectedTracksIsEmpty(t *testing.T) {
	ctx := context.Background()
	path, _ := writeTestWAV(t, 8000, 2, 800)

	in, err := Open(ctx, path, secret.New(""), Config{})
	require.NoError(t, err)
	defer in.Close(ctx)

	_, err = in.ReadSample(ctx, make([]byte, 1024))
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, int64(-1), in.SampleTime())
}

func TestInputTooSmallBuffer(t *testing.T) {
	ctx := context.Background()
	path, _ := writeTestWAV(t, 8000, 2, 8000)

	in, err := Open(ctx, path, secret.New(""), Config{})
	require.NoError(t, err)
	defer in.Close(ctx)
	require.NoError(t, in.SelectTrack(0))

	_, err = in.ReadSample(ctx, make([]byte, 1))
	require.Error(t, err)
	require.NotErrorIs(t, err, io.EOF)
}

func TestInputOpenErrors(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, "", secret.New(""), Config{})
	require.Error(t, err)

	_, err = Open(ctx, filepath.Join(t.TempDir(), "missing.wav"), secret.New("hunter2"), Config{})
	require.Error(t, err)
	require.NotContains(t, err.Error(), "hunter2")

	path, _ := writeTestWAV(t, 8000, 1, 80)
	_, err = Open(ctx, path, secret.New(""), Config{
		CustomOptions: types.DictionaryItems{{Key: "f", Value: "no-such-format"}},
	})
	require.Error(t, err)

	in, err := Open(ctx, path, secret.New(""), Config{})
	require.NoError(t, err)
	defer in.Close(ctx)
	require.Error(t, in.SelectTrack(5))
	_, err = in.TrackFormat(5)
	require.Error(t, err)
}

func TestInputCloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path, _ := writeTestWAV(t, 8000, 1, 80)

	in, err := Open(ctx, path, secret.New(""), Config{})
	require.NoError(t, err)
	require.NoError(t, in.Close(ctx))
	require.NoError(t, in.Close(ctx))
	require.False(t, in.Advance(ctx))
	require.Equal(t, int64(-1), in.SampleTime())
}
