package pump

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"go.uber.org/atomic"
)

type Stats struct {
	Extracted    atomic.Uint64
	Decoded      atomic.Uint64
	Encoded      atomic.Uint64
	Written      atomic.Uint64
	WrittenBytes atomic.Uint64
}

func (s *Stats) String() string {
	return fmt.Sprintf(
		"extracted:%d decoded:%d encoded:%d written:%d (%s)",
		s.Extracted.Load(),
		s.Decoded.Load(),
		s.Encoded.Load(),
		s.Written.Load(),
		humanize.Bytes(s.WrittenBytes.Load()),
	)
}
