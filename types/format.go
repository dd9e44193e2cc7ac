// format.go defines Format, the description of a stream a device consumes or produces.

package types

import (
	"fmt"
)

type Format struct {
	MIME         string
	SampleRate   int
	ChannelCount int
	BitRate      int64
	MaxInputSize int
	Width        int
	Height       int
	Extradata    []byte

	// Native is a backend-specific description of the same stream
	// (for example *astiav.CodecParameters). Backends that understand it
	// prefer it over the plain fields.
	Native any
}

func (f *Format) MediaType() MediaType {
	if f == nil {
		return MediaTypeUnknown
	}
	return MediaTypeFromMIME(f.MIME)
}

func (f *Format) String() string {
	if f == nil {
		return "Format(nil)"
	}
	switch f.MediaType() {
	case MediaTypeVideo:
		return fmt.Sprintf("Format{%s %dx%d, %dbps}", f.MIME, f.Width, f.Height, f.BitRate)
	default:
		return fmt.Sprintf("Format{%s %dHz %dch, %dbps}", f.MIME, f.SampleRate, f.ChannelCount, f.BitRate)
	}
}
