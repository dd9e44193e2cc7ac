// Package avconv converts between libav values and the plain values used
// across avpump (microsecond timestamps, MIME types, channel counts).
package avconv

import (
	"math"
	"time"

	"github.com/asticode/go-astiav"
)

const (
	// see https://ffmpeg.org/doxygen/trunk/group__lavu__time.html#ga2eaefe702f95f619ea6f2d08afa01be1
	avNoPTSValue = uint64(0x8000000000000000)
)

const (
	noDuration = time.Duration(math.MinInt64)
)

func init() {
	if avNoPTSValue != uint64(any(int64(math.MinInt64)).(int64)) { // to bypass the compiler check
		panic("avNoPTSValue changed")
	}
}

// MicrosTimeBase is the time base of every timestamp crossing a device boundary.
func MicrosTimeBase() astiav.Rational {
	return astiav.NewRational(1, 1_000_000)
}

// IsNoPTS reports whether t is libav's "no timestamp" marker.
func IsNoPTS(t int64) bool {
	return uint64(t) == avNoPTSValue
}

// Micros converts t (expressed in timeBase) to microseconds.
// A missing timestamp becomes 0: the poll contract has no notion of it.
func Micros(t int64, timeBase astiav.Rational) int64 {
	if IsNoPTS(t) {
		return 0
	}
	if timeBase.Num() == 0 || timeBase.Den() == 0 {
		return t
	}
	return astiav.RescaleQ(t, timeBase, MicrosTimeBase())
}

// FromMicros converts microseconds to a timestamp expressed in timeBase.
func FromMicros(us int64, timeBase astiav.Rational) int64 {
	if timeBase.Num() == 0 || timeBase.Den() == 0 {
		return us
	}
	return astiav.RescaleQ(us, MicrosTimeBase(), timeBase)
}

func Duration(t int64, timeBase astiav.Rational) time.Duration {
	if IsNoPTS(t) {
		return noDuration
	}

	return time.Duration(float64(t) * timeBase.Float64() * float64(time.Second))
}
