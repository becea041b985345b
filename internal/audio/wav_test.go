package audio

import (
	"encoding/binary"
	"testing"
)

func TestHeaderLayout(t *testing.T) {
	h, err := Header(DefaultFormat, 32000)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if len(h) != HeaderSize {
		t.Fatalf("expected %d bytes, got %d", HeaderSize, len(h))
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" || string(h[12:16]) != "fmt " || string(h[36:40]) != "data" {
		t.Fatalf("unexpected chunk tags: %q", h)
	}

	le := binary.LittleEndian
	checks := []struct {
		name string
		got  uint32
		want uint32
	}{
		{name: "riff size", got: le.Uint32(h[4:8]), want: 32000 + 36},
		{name: "fmt size", got: le.Uint32(h[16:20]), want: 16},
		{name: "audio format", got: uint32(le.Uint16(h[20:22])), want: 1},
		{name: "channels", got: uint32(le.Uint16(h[22:24])), want: 1},
		{name: "sample rate", got: le.Uint32(h[24:28]), want: 16000},
		{name: "byte rate", got: le.Uint32(h[28:32]), want: 32000},
		{name: "block align", got: uint32(le.Uint16(h[32:34])), want: 2},
		{name: "bits per sample", got: uint32(le.Uint16(h[34:36])), want: 16},
		{name: "data size", got: le.Uint32(h[40:44]), want: 32000},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s: got %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestHeaderRejectsInvalidFormat(t *testing.T) {
	for _, f := range []Format{
		{SampleRate: 0, BitsPerSample: 16, Channels: 1},
		{SampleRate: 16000, BitsPerSample: 12, Channels: 1},
		{SampleRate: 16000, BitsPerSample: 16, Channels: 0},
	} {
		if _, err := Header(f, 10); err == nil {
			t.Fatalf("expected error for %#v", f)
		}
	}
	if _, err := Header(DefaultFormat, -1); err == nil {
		t.Fatal("expected error for negative length")
	}
}

func TestFilename(t *testing.T) {
	tests := map[string]string{
		"audio_20260101_120000.raw": "audio_20260101_120000.wav",
		"noext":                     "noext.wav",
		".hidden":                   ".hidden.wav",
		"":                          "audio.wav",
	}
	for in, want := range tests {
		if got := Filename(in); got != want {
			t.Fatalf("Filename(%q) = %q, want %q", in, got, want)
		}
	}
}
