package transform

import (
	"context"
	"fmt"

	"go.uber.org/atomic"
)

// Volume multiplies every sample by Gain. Gain may be changed from any
// goroutine; the next Apply picks up the new value.
type Volume struct {
	Gain atomic.Float64
}

var _ Transform = (*Volume)(nil)

func NewVolume(gain float64) *Volume {
	v := &Volume{}
	v.Gain.Store(gain)
	return v
}

func (v *Volume) String() string {
	return fmt.Sprintf("Volume(%v)", v.Gain.Load())
}

func (v *Volume) SetGain(gain float64) {
	v.Gain.Store(gain)
}

func (v *Volume) Apply(_ context.Context, src []byte) ([]byte, error) {
	if err := checkS16(src); err != nil {
		return nil, err
	}
	dst := make([]byte, len(src))
	gain := v.Gain.Load()
	if gain == 1 {
		copy(dst, src)
		return dst, nil
	}
	applyGainS16(dst, src, gain)
	return dst, nil
}
