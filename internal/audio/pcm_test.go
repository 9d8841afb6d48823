// ABOUTME: Tests for PCM conversion helpers
// ABOUTME: Covers little-endian encoding, clipping, and bit-depth reduction
package audio

import (
	"bytes"
	"math"
	"testing"
)

func TestInt16BytesLittleEndian(t *testing.T) {
	got := Int16Bytes([]int16{0x0102, -2}, nil)
	want := []byte{0x02, 0x01, 0xFE, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestInt16BytesReusesBuffer(t *testing.T) {
	dst := make([]byte, 0, 16)
	got := Int16Bytes([]int16{1, 2, 3}, dst)
	if len(got) != 6 {
		t.Fatalf("expected 6 bytes, got %d", len(got))
	}
	if cap(got) != 16 {
		t.Errorf("expected buffer reuse, cap %d", cap(got))
	}
}

func TestFloat32BytesClips(t *testing.T) {
	got := Float32Bytes([]float32{2.0, -2.0}, nil)
	hi := int16(int16(got[1])<<8 | int16(got[0]))
	lo := int16(int16(got[3])<<8 | int16(got[2]))
	if hi != math.MaxInt16 {
		t.Errorf("expected positive clip to %d, got %d", math.MaxInt16, hi)
	}
	if lo != math.MinInt16 {
		t.Errorf("expected negative clip to %d, got %d", math.MinInt16, lo)
	}
}

func TestFloat32BytesZero(t *testing.T) {
	got := Float32Bytes([]float32{0}, nil)
	if !bytes.Equal(got, []byte{0, 0}) {
		t.Errorf("expected silence, got %v", got)
	}
}

func TestInt32BytesDropsLowBits(t *testing.T) {
	got := Int32Bytes([]int32{0x12340000, -0x10000}, nil)
	want := []byte{0x34, 0x12, 0xFF, 0xFF}
	if !bytes.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFormatByteRate(t *testing.T) {
	f := Format{SampleRate: 44100, Channels: 2, BitDepth: 16}
	if f.BlockAlign() != 4 {
		t.Errorf("expected block align 4, got %d", f.BlockAlign())
	}
	if f.ByteRate() != 176400 {
		t.Errorf("expected byte rate 176400, got %d", f.ByteRate())
	}
	if f.MimeType() != "audio/L16;rate=44100;channels=2" {
		t.Errorf("unexpected mime type %q", f.MimeType())
	}
}

func TestFormatValid(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		want   bool
	}{
		{"cd stereo", Format{44100, 2, 16}, true},
		{"mono 48k", Format{48000, 1, 16}, true},
		{"24 bit not served", Format{44100, 2, 24}, false},
		{"zero rate", Format{0, 2, 16}, false},
		{"zero channels", Format{44100, 0, 16}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.format.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
