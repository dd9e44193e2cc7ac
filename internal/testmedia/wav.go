// Package testmedia generates small media files for tests.
package testmedia

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// SinePCM returns interleaved signed 16-bit native-endian samples of a
// 440Hz tone, the same value in every channel.
func SinePCM(sampleRate, channels, samples int) []byte {
	buf := make([]byte, samples*channels*2)
	for i := 0; i < samples; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		for ch := 0; ch < channels; ch++ {
			binary.NativeEndian.PutUint16(buf[(i*channels+ch)*2:], uint16(v))
		}
	}
	return buf
}

// WriteWAV writes a canonical 16-bit PCM WAV file.
func WriteWAV(
	path string,
	sampleRate int,
	channels int,
	pcm []byte,
) error {
	blockAlign := channels * 2
	header := make([]byte, 0, 44)
	header = append(header, "RIFF"...)
	header = binary.LittleEndian.AppendUint32(header, uint32(36+len(pcm)))
	header = append(header, "WAVEfmt "...)
	header = binary.LittleEndian.AppendUint32(header, 16)
	header = binary.LittleEndian.AppendUint16(header, 1) // PCM
	header = binary.LittleEndian.AppendUint16(header, uint16(channels))
	header = binary.LittleEndian.AppendUint32(header, uint32(sampleRate))
	header = binary.LittleEndian.AppendUint32(header, uint32(sampleRate*blockAlign))
	header = binary.LittleEndian.AppendUint16(header, uint16(blockAlign))
	header = binary.LittleEndian.AppendUint16(header, 16)
	header = append(header, "data"...)
	header = binary.LittleEndian.AppendUint32(header, uint32(len(pcm)))

	// WAV is little-endian, SinePCM is native-endian
	data := make([]byte, len(pcm))
	for i := 0; i+1 < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(data[i:], binary.NativeEndian.Uint16(pcm[i:]))
	}

	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return fmt.Errorf("unable to write '%s': %w", path, err)
	}
	return nil
}
