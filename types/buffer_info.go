// buffer_info.go defines BufferInfo, the descriptor of a single buffer.

package types

import (
	"fmt"
)

// BufferInfo describes the valid region of a buffer and its sample metadata.
type BufferInfo struct {
	Offset                 int
	Size                   int
	PresentationTimeMicros int64
	Flags                  BufferFlags
}

func (i *BufferInfo) Set(
	offset int,
	size int,
	presentationTimeMicros int64,
	flags BufferFlags,
) {
	i.Offset = offset
	i.Size = size
	i.PresentationTimeMicros = presentationTimeMicros
	i.Flags = flags
}

func (i BufferInfo) IsEndOfStream() bool {
	return i.Flags.Has(BufferFlagEndOfStream)
}

func (i BufferInfo) IsCodecConfig() bool {
	return i.Flags.Has(BufferFlagCodecConfig)
}

// Payload returns the valid region of buf described by the info.
func (i BufferInfo) Payload(buf []byte) ([]byte, error) {
	if i.Offset < 0 || i.Size < 0 || i.Offset+i.Size > len(buf) {
		return nil, fmt.Errorf("buffer region [%d:%d] is out of the buffer of size %d", i.Offset, i.Offset+i.Size, len(buf))
	}
	return buf[i.Offset : i.Offset+i.Size], nil
}

func (i BufferInfo) String() string {
	return fmt.Sprintf("BufferInfo{offset:%d, size:%d, pts:%dus, flags:%s}", i.Offset, i.Size, i.PresentationTimeMicros, i.Flags)
}
