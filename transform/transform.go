// Package transform provides the per-buffer functions applied to decoded
// audio before it is re-encoded.
//
// Every Transform operates on interleaved signed 16-bit PCM in the host
// byte order, which is what the decode-role devices emit.
package transform

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Transform is a pure function over one decoded payload. The result must be
// owned by the caller and be exactly as long as src.
type Transform interface {
	fmt.Stringer
	Apply(ctx context.Context, src []byte) ([]byte, error)
}

const (
	KindIdentity      = "identity"
	KindVolume        = "volume"
	KindPeakNormalize = "peak-normalize"
)

const (
	DefaultVolumeGain = 1.0
)

// Parse builds a Transform by its kind name. gain is the volume factor for
// "volume" and the max gain for "peak-normalize"; zero means the default
// (DefaultVolumeGain and DefaultNormalizeMaxGain respectively). It is
// ignored for other kinds.
func Parse(kind string, gain float64) (Transform, error) {
	if math.IsNaN(gain) || math.IsInf(gain, 0) {
		return nil, fmt.Errorf("gain must be a finite number, got %v", gain)
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "none", KindIdentity:
		return Identity{}, nil
	case KindVolume:
		if gain < 0 {
			return nil, fmt.Errorf("volume gain must not be negative, got %v", gain)
		}
		if gain == 0 {
			gain = DefaultVolumeGain
		}
		return NewVolume(gain), nil
	case KindPeakNormalize, "normalize":
		if gain < 0 {
			return nil, fmt.Errorf("max gain must not be negative, got %v", gain)
		}
		if gain == 0 {
			gain = DefaultNormalizeMaxGain
		}
		return NewPeakNormalize(DefaultNormalizeTargetPeak, gain)
	default:
		return nil, fmt.Errorf("unknown transform kind '%s'", kind)
	}
}
