package resampler

import (
	"context"
	"testing"

	"github.com/asticode/go-astiav"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avpump/pool"
)

func s16Stereo(sampleRate int) PCMFormat {
	return PCMFormat{
		SampleFormat:  astiav.SampleFormatS16,
		SampleRate:    sampleRate,
		ChannelLayout: astiav.ChannelLayoutStereo,
	}
}

func TestPCMFormatFromFrame(t *testing.T) {
	fr := pool.Frames.Get()
	defer pool.Frames.Put(fr)
	fr.SetSampleFormat(astiav.SampleFormatS16)
	fr.SetSampleRate(44100)
	fr.SetChannelLayout(astiav.ChannelLayoutMono)

	got := PCMFormatFromFrame(fr)
	require.True(t, PCMFormat{
		SampleFormat:  astiav.SampleFormatS16,
		SampleRate:    44100,
		ChannelLayout: astiav.ChannelLayoutMono,
	}.Equal(got))
	require.Equal(t, 2, got.BytesPerSample())
	require.Equal(t, 4, s16Stereo(8000).BytesPerSample())
}

func TestResamplerAllocateOutputFrame(t *testing.T) {
	ctx := context.Background()
	format := s16Stereo(48000)
	r, err := New(ctx, format, 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Close(ctx)) })

	out, err := r.AllocateOutputFrame(ctx, 16)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Frames.Put(out) })

	require.Equal(t, 16, out.NbSamples())
	require.Equal(t, format.SampleFormat, out.SampleFormat())
	require.Equal(t, format.SampleRate, out.SampleRate())
	require.True(t, format.ChannelLayout.Equal(out.ChannelLayout()))
}

func TestResamplerChunking(t *testing.T) {
	ctx := context.Background()
	format := s16Stereo(48000)
	r, err := New(ctx, format, 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Close(ctx)) })

	out, err := r.AllocateOutputFrame(ctx, 8)
	require.NoError(t, err)
	defer pool.Frames.Put(out)

	require.ErrorIs(t, r.ReceiveFrame(ctx, out), astiav.ErrEof)

	writeSamples(t, r, 4)
	require.ErrorIs(t, r.ReceiveFrame(ctx, out), astiav.ErrEagain)

	writeSamples(t, r, 8)
	require.Equal(t, 12, r.Buffered())
	require.NoError(t, r.ReceiveFrame(ctx, out))
	require.Equal(t, 8, out.NbSamples())

	tail, err := r.AllocateOutputFrame(ctx, 8)
	require.NoError(t, err)
	defer pool.Frames.Put(tail)
	require.NoError(t, r.Flush(ctx, tail))
	require.Equal(t, 4, tail.NbSamples())

	require.ErrorIs(t, r.ReceiveFrame(ctx, out), astiav.ErrEof)
}

func TestResamplerSendFrameFormatChange(t *testing.T) {
	ctx := context.Background()
	r, err := New(ctx, s16Stereo(48000), 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Close(ctx)) })

	firstFrame := buildPCMFrame(t, s16Stereo(44100), 4)
	defer pool.Frames.Put(firstFrame)
	secondFrame := buildPCMFrame(t, s16Stereo(48000), 4)
	defer pool.Frames.Put(secondFrame)

	require.NoError(t, r.SendFrame(ctx, firstFrame))
	require.NotNil(t, r.FormatInput)
	require.True(t, s16Stereo(44100).Equal(*r.FormatInput))

	err = r.SendFrame(ctx, secondFrame)
	require.Error(t, err)
	require.Contains(t, err.Error(), "input frame format changed")
}

func TestResamplerFlushWithoutInput(t *testing.T) {
	ctx := context.Background()
	r, err := New(ctx, s16Stereo(48000), 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, r.Close(ctx)) })

	require.NoError(t, r.SendFrame(ctx, nil))
	require.Zero(t, r.Buffered())
}

func writeSamples(t *testing.T, r *Resampler, samples int) {
	t.Helper()
	pcmFrame := buildPCMFrame(t, r.FormatOutput, samples)
	defer pool.Frames.Put(pcmFrame)
	_, err := r.AudioFifo.Write(pcmFrame)
	require.NoError(t, err)
}

func buildPCMFrame(t *testing.T, format PCMFormat, samples int) *astiav.Frame {
	t.Helper()
	fr := pool.Frames.Get()
	fr.SetSampleFormat(format.SampleFormat)
	fr.SetSampleRate(format.SampleRate)
	fr.SetChannelLayout(format.ChannelLayout)
	fr.SetNbSamples(samples)
	require.NoError(t, fr.AllocBuffer(0))
	return fr
}
