package avconv

import (
	"slices"
	"strings"

	"github.com/asticode/go-astiav"
)

// MIMEType returns the MIME type reported for streams encoded with the given
// codec. It follows Android's MediaFormat naming ("audio/mp4a-latm",
// "video/avc"), falling back to IANA names, and returns "" if unknown.
func MIMEType(codecID astiav.CodecID) string {
	if mimeType := androidMIMEType(codecID); mimeType != "" {
		return mimeType
	}
	if mimeTypes := ianaMIMETypes(codecID); len(mimeTypes) > 0 {
		return mimeTypes[0]
	}
	return ""
}

// MIMETypes returns every known name of the codec's MIME type.
func MIMETypes(codecID astiav.CodecID) []string {
	result := ianaMIMETypes(codecID)
	if androidMIMEType := androidMIMEType(codecID); androidMIMEType != "" {
		if !slices.Contains(result, androidMIMEType) {
			return append(result, androidMIMEType)
		}
	}
	return result
}

// CodecIDFromMIME is the reverse of MIMEType. The lookup is case-insensitive;
// astiav.CodecIDNone is returned for unknown types.
func CodecIDFromMIME(mimeType string) astiav.CodecID {
	for _, codecID := range knownCodecIDs {
		for _, candidate := range MIMETypes(codecID) {
			if strings.EqualFold(candidate, mimeType) {
				return codecID
			}
		}
	}
	return astiav.CodecIDNone
}

// the order matters for ambiguous MIME types: the first match wins.
var knownCodecIDs = []astiav.CodecID{
	astiav.CodecIDAac,
	astiav.CodecIDMp3,
	astiav.CodecIDMp2,
	astiav.CodecIDOpus,
	astiav.CodecIDVorbis,
	astiav.CodecIDFlac,
	astiav.CodecIDAc3,
	astiav.CodecIDAmrNb,
	astiav.CodecIDAmrWb,
	astiav.CodecIDPcmMulaw,
	astiav.CodecIDPcmAlaw,
	astiav.CodecIDPcmS16Le,
	astiav.CodecIDH264,
	astiav.CodecIDHevc,
	astiav.CodecIDAv1,
	astiav.CodecIDMpeg4,
	astiav.CodecIDMpeg2Video,
	astiav.CodecIDVp8,
	astiav.CodecIDVp9,
	astiav.CodecIDH263,
}

func ianaMIMETypes(codecID astiav.CodecID) []string {
	switch codecID {
	case astiav.CodecIDH264:
		return []string{"video/H264"}
	case astiav.CodecIDHevc:
		return []string{"video/H265", "video/HEVC"}
	case astiav.CodecIDAv1:
		return []string{"video/AV1"}
	case astiav.CodecIDMpeg4:
		return []string{"video/mp4v-es"}
	case astiav.CodecIDMpeg2Video:
		return []string{"video/mpeg"}
	case astiav.CodecIDVp8:
		return []string{"video/VP8"}
	case astiav.CodecIDVp9:
		return []string{"video/VP9"}
	case astiav.CodecIDH263:
		return []string{"video/H263"}
	case astiav.CodecIDAac, astiav.CodecIDAacLatm:
		return []string{"audio/mp4a-latm"}
	case astiav.CodecIDMp2, astiav.CodecIDMp3:
		return []string{"audio/mpeg"}
	case astiav.CodecIDOpus:
		return []string{"audio/opus"}
	case astiav.CodecIDVorbis:
		return []string{"audio/vorbis"}
	case astiav.CodecIDFlac:
		return []string{"audio/flac"}
	case astiav.CodecIDAc3:
		return []string{"audio/ac3"}
	case astiav.CodecIDPcmMulaw:
		return []string{"audio/PCMU"}
	case astiav.CodecIDPcmAlaw:
		return []string{"audio/PCMA"}
	case astiav.CodecIDPcmS16Le, astiav.CodecIDPcmS16Be:
		return []string{"audio/L16"}
	}
	return nil
}

func androidMIMEType(codecID astiav.CodecID) string {
	switch codecID {
	case astiav.CodecIDH264:
		return "video/avc"
	case astiav.CodecIDHevc:
		return "video/hevc"
	case astiav.CodecIDAv1:
		return "video/av01"
	case astiav.CodecIDMpeg4:
		return "video/mp4v-es"
	case astiav.CodecIDMpeg2Video:
		return "video/mpeg2"
	case astiav.CodecIDVp8:
		return "video/x-vnd.on2.vp8"
	case astiav.CodecIDVp9:
		return "video/x-vnd.on2.vp9"
	case astiav.CodecIDH263:
		return "video/3gpp"
	case astiav.CodecIDAac, astiav.CodecIDAacLatm:
		return "audio/mp4a-latm"
	case astiav.CodecIDMp3:
		return "audio/mpeg"
	case astiav.CodecIDOpus:
		return "audio/opus"
	case astiav.CodecIDVorbis:
		return "audio/vorbis"
	case astiav.CodecIDFlac:
		return "audio/flac"
	case astiav.CodecIDAc3:
		return "audio/ac3"
	case astiav.CodecIDAmrNb:
		return "audio/3gpp"
	case astiav.CodecIDAmrWb:
		return "audio/amr-wb"
	case astiav.CodecIDPcmMulaw:
		return "audio/g711-mlaw"
	case astiav.CodecIDPcmAlaw:
		return "audio/g711-alaw"
	case astiav.CodecIDPcmS16Le, astiav.CodecIDPcmS16Be,
		astiav.CodecIDPcmS32Le, astiav.CodecIDPcmS32Be,
		astiav.CodecIDPcmF32Le, astiav.CodecIDPcmF32Be:
		return "audio/raw"
	}
	return ""
}
