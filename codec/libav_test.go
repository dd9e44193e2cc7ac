package codec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avpump/internal/testmedia"
	"github.com/xaionaro-go/avpump/types"
)

type deviceOutput struct {
	Format  *types.Format
	Samples [][]byte
	Infos   []types.BufferInfo
}

// runDevice feeds the inputs (the last one with the end-of-stream flag)
// and collects every output until the end-of-stream output.
func runDevice(
	t *testing.T,
	ctx context.Context,
	c *Codec,
	inputs [][]byte,
	durationMicros int64,
) deviceOutput {
	t.Helper()
	var out deviceOutput
	next := 0
	for iteration := 0; iteration < 100000; iteration++ {
		if next <= len(inputs) {
			slot, status, err := c.DequeueInputSlot(ctx, 0)
			require.NoError(t, err)
			if status == types.DequeueStatusSlot {
				var info types.BufferInfo
				if next < len(inputs) {
					n := copy(c.InputBuffers(ctx)[slot], inputs[next])
					info.Set(0, n, int64(next)*durationMicros, types.BufferFlags(types.BufferFlagKeyFrame))
				} else {
					info.Set(0, 0, int64(next)*durationMicros, types.BufferFlags(types.BufferFlagEndOfStream))
				}
				require.NoError(t, c.QueueInputSlot(ctx, slot, info))
				next++
			}
		}

		var info types.BufferInfo
		slot, status, err := c.DequeueOutputSlot(ctx, 0, &info)
		require.NoError(t, err)
		switch status {
		case types.DequeueStatusFormatChanged:
			require.Nil(t, out.Format)
			out.Format, err = c.OutputFormat(ctx)
			require.NoError(t, err)
		case types.DequeueStatusSlot:
			payload, err := info.Payload(c.OutputBuffers(ctx)[slot])
			require.NoError(t, err)
			if len(payload) > 0 {
				out.Samples = append(out.Samples, append([]byte(nil), payload...))
				out.Infos = append(out.Infos, info)
			}
			require.NoError(t, c.ReleaseOutputSlot(ctx, slot, false))
			if info.IsEndOfStream() {
				return out
			}
		}
	}
	t.Fatal("the device never reached the end of the stream")
	return out
}

func TestLibAVEncodeDecode(t *testing.T) {
	ctx := context.Background()

	const (
		sampleRate = 44100
		channels   = 2
		chunk      = 2048
	)
	pcm := testmedia.SinePCM(sampleRate, channels, sampleRate/2)
	var inputs [][]byte
	for offset := 0; offset < len(pcm); offset += chunk * channels * 2 {
		end := min(offset+chunk*channels*2, len(pcm))
		inputs = append(inputs, pcm[offset:end])
	}

	enc, err := NewEncoder(ctx, EncoderConfig{})
	require.NoError(t, err)
	defer enc.Close(ctx)

	encoded := runDevice(t, ctx, enc, inputs, chunk*1_000_000/sampleRate)
	require.NotNil(t, encoded.Format)
	require.Equal(t, "audio/mp4a-latm", encoded.Format.MIME)
	require.Equal(t, sampleRate, encoded.Format.SampleRate)
	require.Equal(t, channels, encoded.Format.ChannelCount)
	require.NotEmpty(t, encoded.Format.Extradata)
	require.NotEmpty(t, encoded.Samples)
	for idx := 1; idx < len(encoded.Infos); idx++ {
		require.GreaterOrEqual(t, encoded.Infos[idx].PresentationTimeMicros, encoded.Infos[idx-1].PresentationTimeMicros)
	}

	dec, err := NewDecoder(ctx, encoded.Format, DecoderConfig{})
	require.NoError(t, err)
	defer dec.Close(ctx)
	for _, buf := range dec.OutputBuffers(ctx) {
		require.Len(t, buf, MaxDecodedSize(encoded.Format))
	}

	decoded := runDevice(t, ctx, dec, encoded.Samples, 1024*1_000_000/sampleRate)
	require.NotNil(t, decoded.Format)
	require.Equal(t, MIMETypeRawAudio, decoded.Format.MIME)
	require.Equal(t, sampleRate, decoded.Format.SampleRate)
	require.Equal(t, channels, decoded.Format.ChannelCount)

	total := 0
	for _, sample := range decoded.Samples {
		require.Zero(t, len(sample)%(channels*2))
		total += len(sample)
	}
	// AAC adds priming samples and pads the last frame
	require.GreaterOrEqual(t, total, len(pcm)*9/10)
}

func TestNewDecoderRejectsVideo(t *testing.T) {
	_, err := NewDecoder(context.Background(), &types.Format{MIME: "video/avc"}, DecoderConfig{})
	require.Error(t, err)
}

func TestNewEncoderRejectsUnknownCodec(t *testing.T) {
	_, err := NewEncoder(context.Background(), EncoderConfig{CodecName: "no-such-codec"})
	require.Error(t, err)
}
