package transform

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avpump/logger"
	"github.com/xaionaro-go/xsync"
)

const (
	DefaultNormalizeTargetPeak = 0.9
	DefaultNormalizeMaxGain    = 4.0
)

// PeakNormalize amplifies the stream so that the loudest sample seen so far
// reaches TargetPeak, never amplifying by more than MaxGain.
type PeakNormalize struct {
	TargetPeak float64
	MaxGain    float64
	MaxSeen    float64
	Locker     xsync.Mutex
}

var _ Transform = (*PeakNormalize)(nil)

func NewPeakNormalize(
	targetPeak float64,
	maxGain float64,
) (*PeakNormalize, error) {
	if targetPeak <= 0 || targetPeak > 1 {
		return nil, fmt.Errorf("targetPeak must be in (0,1], got %v", targetPeak)
	}
	return &PeakNormalize{
		TargetPeak: targetPeak,
		MaxGain:    maxGain,
	}, nil
}

func (n *PeakNormalize) String() string {
	return fmt.Sprintf("PeakNormalize(TargetPeak=%v, MaxGain=%v; MaxSeen=%v)", n.TargetPeak, n.MaxGain, n.GetMaxSeen(context.Background()))
}

// GetMaxSeen returns the loudest sample seen so far, as a fraction of the
// full scale.
func (n *PeakNormalize) GetMaxSeen(ctx context.Context) float64 {
	return xsync.DoR1(ctx, &n.Locker, func() float64 {
		return n.MaxSeen
	})
}

func (n *PeakNormalize) Apply(
	ctx context.Context,
	src []byte,
) (_ret []byte, _err error) {
	logger.Tracef(ctx, "Apply: %d", len(src))
	defer func() { logger.Tracef(ctx, "/Apply: %d: %v", len(src), _err) }()
	if err := checkS16(src); err != nil {
		return nil, err
	}
	return xsync.DoA1R1(ctx, &n.Locker, n.apply, src), nil
}

func (n *PeakNormalize) apply(src []byte) []byte {
	if peak := peakS16(src); peak > n.MaxSeen {
		n.MaxSeen = peak
	}

	gain := 1.0
	if n.MaxSeen > 0 {
		gain = n.TargetPeak / n.MaxSeen
		if n.MaxGain > 0 && gain > n.MaxGain {
			gain = n.MaxGain
		}
	}

	dst := make([]byte, len(src))
	applyGainS16(dst, src, gain)
	return dst
}

// Reset forgets the loudest sample seen so far.
func (n *PeakNormalize) Reset(ctx context.Context) {
	n.Locker.Do(ctx, func() {
		n.MaxSeen = 0
	})
}
