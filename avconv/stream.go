package avconv

import (
	"fmt"

	"github.com/asticode/go-astiav"
)

func StreamByIndex(
	fmtCtx *astiav.FormatContext,
	streamIndex int,
) *astiav.Stream {
	for _, stream := range fmtCtx.Streams() {
		if stream.Index() == streamIndex {
			return stream
		}
	}
	return nil
}

// ChannelLayoutFromCount returns the default layout for the given amount
// of interleaved channels.
func ChannelLayoutFromCount(channels int) (astiav.ChannelLayout, error) {
	switch channels {
	case 1:
		return astiav.ChannelLayoutMono, nil
	case 2:
		return astiav.ChannelLayoutStereo, nil
	default:
		return astiav.ChannelLayout{}, fmt.Errorf("unsupported amount of channels: %d", channels)
	}
}
