// media_type.go defines the MediaType enum and its methods.

package types

import (
	"fmt"
	"strings"
)

// MediaType values are numerically equal to libav's AVMediaType.
type MediaType int

const (
	MediaTypeUnknown = MediaType(-0x1)
	MediaTypeVideo   = MediaType(0x0)
	MediaTypeAudio   = MediaType(0x1)
)

const (
	MIMEPrefixAudio = "audio/"
	MIMEPrefixVideo = "video/"
)

func MediaTypes() []MediaType {
	return []MediaType{
		MediaTypeVideo,
		MediaTypeAudio,
	}
}

func MediaTypeFromMIME(mime string) MediaType {
	mime = strings.ToLower(mime)
	switch {
	case strings.HasPrefix(mime, MIMEPrefixAudio):
		return MediaTypeAudio
	case strings.HasPrefix(mime, MIMEPrefixVideo):
		return MediaTypeVideo
	default:
		return MediaTypeUnknown
	}
}

func ParseMediaType(s string) (MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio":
		return MediaTypeAudio, nil
	case "video":
		return MediaTypeVideo, nil
	}
	return MediaTypeUnknown, fmt.Errorf("unknown media type '%s'", s)
}

// MIMEPrefix returns the prefix used to select tracks of this type.
func (t MediaType) MIMEPrefix() string {
	switch t {
	case MediaTypeAudio:
		return MIMEPrefixAudio
	case MediaTypeVideo:
		return MIMEPrefixVideo
	default:
		return ""
	}
}

func (t MediaType) String() string {
	switch t {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	case MediaTypeUnknown:
		return "unknown"
	default:
		return "MediaType(" + fmt.Sprintf("%d", int(t)) + ")"
	}
}
