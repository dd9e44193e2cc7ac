package transform

import (
	"encoding/binary"
	"fmt"
	"math"
)

const bytesPerS16 = 2

func checkS16(src []byte) error {
	if len(src)%bytesPerS16 != 0 {
		return fmt.Errorf("the length of an S16 payload must be even, got %d", len(src))
	}
	return nil
}

func peakS16(buf []byte) float64 {
	const full = 32768.0
	maxAbs := int32(0)
	for i := 0; i+1 < len(buf); i += bytesPerS16 {
		v := int32(int16(binary.NativeEndian.Uint16(buf[i:])))
		if v < 0 {
			v = -v
		}
		if v > maxAbs {
			maxAbs = v
		}
	}
	return float64(maxAbs) / full
}

// applyGainS16 writes src scaled by gain into dst, saturating at the S16 range.
func applyGainS16(dst, src []byte, gain float64) {
	const lo, hi = -32768.0, 32767.0
	for i := 0; i+1 < len(src); i += bytesPerS16 {
		v := float64(int16(binary.NativeEndian.Uint16(src[i:])))
		out := math.Round(clampF64(v*gain, lo, hi))
		binary.NativeEndian.PutUint16(dst[i:], uint16(int16(out)))
	}
}

func clampF64(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
