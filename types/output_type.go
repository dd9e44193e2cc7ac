// output_type.go defines which tracks an output container is expected to carry.

package types

import (
	"fmt"
	"strings"
)

type OutputType int

const (
	OutputTypeMixed = OutputType(iota)
	OutputTypeVideoOnly
	OutputTypeAudioOnly
)

func ParseOutputType(s string) (OutputType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mixed":
		return OutputTypeMixed, nil
	case "video-only", "video":
		return OutputTypeVideoOnly, nil
	case "audio-only", "audio", "":
		return OutputTypeAudioOnly, nil
	}
	return 0, fmt.Errorf("unknown output type '%s'", s)
}

// ExpectedMediaTypes returns the roles that must be registered before the
// container may be started.
func (t OutputType) ExpectedMediaTypes() []MediaType {
	switch t {
	case OutputTypeMixed:
		return []MediaType{MediaTypeAudio, MediaTypeVideo}
	case OutputTypeVideoOnly:
		return []MediaType{MediaTypeVideo}
	case OutputTypeAudioOnly:
		return []MediaType{MediaTypeAudio}
	default:
		return nil
	}
}

func (t OutputType) Expects(mediaType MediaType) bool {
	for _, expected := range t.ExpectedMediaTypes() {
		if expected == mediaType {
			return true
		}
	}
	return false
}

func (t OutputType) String() string {
	switch t {
	case OutputTypeMixed:
		return "mixed"
	case OutputTypeVideoOnly:
		return "video-only"
	case OutputTypeAudioOnly:
		return "audio-only"
	default:
		return fmt.Sprintf("OutputType(%d)", int(t))
	}
}

func (t OutputType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *OutputType) UnmarshalText(b []byte) error {
	v, err := ParseOutputType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
