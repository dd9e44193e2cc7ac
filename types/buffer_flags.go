// buffer_flags.go defines the flag bits attached to every buffer exchanged between stages.

package types

import (
	"fmt"
	"strings"
)

type BufferFlag uint32

// The values match the bits used by Android MediaCodec, so that dumps are
// comparable between implementations.
const (
	BufferFlagKeyFrame    = BufferFlag(0x1)
	BufferFlagCodecConfig = BufferFlag(0x2)
	BufferFlagEndOfStream = BufferFlag(0x4)
)

func (f BufferFlag) String() string {
	switch f {
	case BufferFlagKeyFrame:
		return "key_frame"
	case BufferFlagCodecConfig:
		return "codec_config"
	case BufferFlagEndOfStream:
		return "end_of_stream"
	default:
		return fmt.Sprintf("BufferFlag(0x%X)", uint32(f))
	}
}

type BufferFlags uint32

func (f BufferFlags) Has(flag BufferFlag) bool {
	return f&BufferFlags(flag) != 0
}

func (f BufferFlags) Add(flag BufferFlag) BufferFlags {
	return f | BufferFlags(flag)
}

func (f BufferFlags) Remove(flag BufferFlag) BufferFlags {
	return f &^ BufferFlags(flag)
}

func (f BufferFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	rest := f
	for _, flag := range []BufferFlag{
		BufferFlagKeyFrame,
		BufferFlagCodecConfig,
		BufferFlagEndOfStream,
	} {
		if f.Has(flag) {
			parts = append(parts, flag.String())
			rest = rest.Remove(flag)
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%X", uint32(rest)))
	}
	return strings.Join(parts, "|")
}
