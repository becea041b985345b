// Package audio frames raw PCM blobs as WAV streams on download.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// HeaderSize is the length of the canonical RIFF/WAVE header.
const HeaderSize = 44

// Format describes the PCM layout of stored audio.
type Format struct {
	SampleRate    int
	BitsPerSample int
	Channels      int
}

// DefaultFormat matches what the recorder firmware sends.
var DefaultFormat = Format{SampleRate: 16000, BitsPerSample: 16, Channels: 1}

// Validate reports whether f can be described by a PCM WAV header.
func (f Format) Validate() error {
	switch {
	case f.SampleRate <= 0:
		return fmt.Errorf("sample rate must be positive")
	case f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 || f.BitsPerSample > 32:
		return fmt.Errorf("bits per sample must be 8, 16, 24 or 32")
	case f.Channels <= 0 || f.Channels > 8:
		return fmt.Errorf("channels must be between 1 and 8")
	}
	return nil
}

func (f Format) blockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// Header returns the WAV header for dataLen bytes of PCM payload.
func Header(f Format, dataLen int64) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if dataLen < 0 || dataLen > math.MaxUint32-(HeaderSize-8) {
		return nil, fmt.Errorf("payload of %d bytes does not fit a WAV container", dataLen)
	}

	h := make([]byte, HeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(dataLen)+HeaderSize-8)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(f.SampleRate*f.blockAlign()))
	binary.LittleEndian.PutUint16(h[32:34], uint16(f.blockAlign()))
	binary.LittleEndian.PutUint16(h[34:36], uint16(f.BitsPerSample))
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataLen))
	return h, nil
}

// Filename swaps the extension of name for .wav.
func Filename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "audio.wav"
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	return name + ".wav"
}
