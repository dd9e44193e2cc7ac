package avpump

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avpump/muxer"
	"github.com/xaionaro-go/avpump/pump/pumptest"
	"github.com/xaionaro-go/avpump/transform"
	"github.com/xaionaro-go/avpump/types"
	"github.com/xaionaro-go/typing"
	"go.uber.org/goleak"
)

type fakeComponents struct {
	Source  *pumptest.Source
	Decoder *pumptest.Device
	Encoder *pumptest.Device
	Writer  *pumptest.ContainerWriter

	FactoryCalls int
}

func newFakeComponents(samples []pumptest.Sample) *fakeComponents {
	return &fakeComponents{
		Source: pumptest.NewSource(samples...),
		Decoder: pumptest.NewDevice("decoder", &types.Format{
			MIME:         "audio/raw",
			SampleRate:   44100,
			ChannelCount: 2,
		}),
		Encoder: pumptest.NewDevice("encoder", &types.Format{
			MIME:         "audio/mp4a-latm",
			SampleRate:   44100,
			ChannelCount: 2,
		}),
		Writer: &pumptest.ContainerWriter{},
	}
}

func (c *fakeComponents) Factory(_ context.Context, cfg PipelineConfig) (*Components, error) {
	c.FactoryCalls++
	return &Components{
		Source:  c.Source,
		Decoder: c.Decoder,
		Encoder: c.Encoder,
		Muxer:   muxer.New(c.Writer, cfg.OutputType),
	}, nil
}

func testConfig(c *fakeComponents) PipelineConfig {
	return PipelineConfig{
		OutputType: types.OutputTypeAudioOnly,
		Factory:    c.Factory,
	}
}

func waitTimeout(t *testing.T, p *Pipeline) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.Wait(ctx)
}

func TestPipelineCompletes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	c := newFakeComponents(pumptest.Samples(10, 16, 1000))
	var completedCount int
	var completedErr error
	cfg := testConfig(c)
	cfg.OnCompleted = func(_ context.Context, err error) {
		completedCount++
		completedErr = err
	}
	p := NewPipeline(cfg)
	require.Equal(t, types.RunStatusInitialized, p.Status())
	require.Nil(t, p.Stats(ctx))

	require.NoError(t, p.Start(ctx))
	require.NoError(t, waitTimeout(t, p))

	require.Equal(t, types.RunStatusCompleted, p.Status())
	require.NoError(t, p.Err())
	require.Equal(t, 1, completedCount)
	require.NoError(t, completedErr)
	require.Len(t, c.Writer.Samples, 10)
	for i, sample := range c.Writer.Samples {
		require.Equal(t, int64(i)*1000, sample.Info.PresentationTimeMicros, fmt.Sprintf("sample #%d", i))
	}
	require.Equal(t, 1, c.Writer.CloseCount)
	require.Equal(t, 1, c.Source.CloseCount)

	stats := p.Stats(ctx)
	require.NotNil(t, stats)
	require.Equal(t, uint64(10), stats.Written.Load())

	select {
	case <-p.StartedChan():
	default:
		t.Fatal("the started chan is not closed")
	}
}

func TestPipelineStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	c := newFakeComponents(pumptest.Samples(100, 16, 1000))
	reached := make(chan struct{})
	release := make(chan struct{})
	c.Source.OnRead = func(reads int) {
		if reads == 2 {
			close(reached)
			<-release
		}
	}
	p := NewPipeline(testConfig(c))
	require.NoError(t, p.Start(ctx))

	<-reached
	require.Equal(t, types.RunStatusStarted, p.Status())
	p.Stop(ctx)
	close(release)

	require.NoError(t, waitTimeout(t, p))
	require.Equal(t, types.RunStatusStopped, p.Status())
	require.Equal(t, 2, c.Source.Reads)
	require.Equal(t, 1, c.Decoder.CloseCount)
	require.Equal(t, 1, c.Encoder.CloseCount)
}

func TestPipelineApplyTransform(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	samples := pumptest.Samples(3, 16, 1000)
	c := newFakeComponents(samples)
	cfg := testConfig(c)
	cfg.Transform = transform.NewVolume(0)
	p := NewPipeline(cfg)
	require.NoError(t, p.Start(ctx))
	require.NoError(t, waitTimeout(t, p))

	require.Len(t, c.Writer.Samples, 3)
	for _, sample := range c.Writer.Samples {
		require.Equal(t, make([]byte, 16), sample.Data)
	}
}

func TestPipelineSourceError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	c := newFakeComponents(pumptest.Samples(3, 16, 1000))
	c.Source.ReadError = fmt.Errorf("connection reset")
	p := NewPipeline(testConfig(c))
	require.NoError(t, p.Start(ctx))

	err := waitTimeout(t, p)
	require.Error(t, err)
	require.Contains(t, err.Error(), "connection reset")
	require.Equal(t, err, p.Err())
	require.Equal(t, types.RunStatusStopped, p.Status())
}

func TestPipelineSourceFailsMidStream(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	c := newFakeComponents(pumptest.Samples(10, 16, 1000))
	c.Source.ReadError = fmt.Errorf("invalid data found when processing input")
	c.Source.FailAfter = 4
	var errInHook error
	cfg := testConfig(c)
	var p *Pipeline
	cfg.OnCompleted = func(context.Context, error) {
		errInHook = p.Err()
	}
	p = NewPipeline(cfg)
	require.NoError(t, p.Start(ctx))

	err := waitTimeout(t, p)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid data")
	require.Equal(t, err, errInHook)
	require.Equal(t, types.RunStatusStopped, p.Status())
	require.LessOrEqual(t, len(c.Writer.Samples), 4)
	for _, sample := range c.Writer.Samples {
		require.False(t, sample.Info.IsEndOfStream())
	}
}

func TestPipelineStartTwice(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	ctx := context.Background()

	c := newFakeComponents(pumptest.Samples(1, 16, 1000))
	p := NewPipeline(testConfig(c))
	require.NoError(t, p.Start(ctx))
	require.Error(t, p.Start(ctx))
	require.NoError(t, waitTimeout(t, p))
	require.Equal(t, 1, c.FactoryCalls)
}

func TestPipelineFactoryError(t *testing.T) {
	ctx := context.Background()

	cfg := PipelineConfig{
		OutputType: types.OutputTypeAudioOnly,
		Factory: func(context.Context, PipelineConfig) (*Components, error) {
			return nil, fmt.Errorf("no such file")
		},
	}
	p := NewPipeline(cfg)
	err := p.Start(ctx)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no such file")
	require.Equal(t, types.RunStatusInitialized, p.Status())
}

func TestPipelineWaitCancelled(t *testing.T) {
	p := NewPipeline(PipelineConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Wait(ctx), context.Canceled)
}

func TestPipelineConfigValidate(t *testing.T) {
	valid := PipelineConfig{
		InputURL:   "in.wav",
		OutputURL:  "out.m4a",
		OutputType: types.OutputTypeAudioOnly,
	}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*PipelineConfig){
		"no input":      func(cfg *PipelineConfig) { cfg.InputURL = "" },
		"no output":     func(cfg *PipelineConfig) { cfg.OutputURL = "" },
		"mixed output":  func(cfg *PipelineConfig) { cfg.OutputType = types.OutputTypeMixed },
		"video output":  func(cfg *PipelineConfig) { cfg.OutputType = types.OutputTypeVideoOnly },
		"unknown media": func(cfg *PipelineConfig) { cfg.MediaType = typing.Opt(types.MediaTypeUnknown) },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
