// ABOUTME: Audio format and frame definitions
// ABOUTME: Shared types for the capture -> broadcast -> stream pipeline
package audio

import "fmt"

// Format describes the PCM layout of the live stream. It is fixed for the
// lifetime of the capture pipeline; changing the device means tearing the
// whole pipeline down and rebuilding it, because the format is baked into
// the WAV header already sent to connected renderers.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat is what we ask the capture device for when the user has not
// picked anything else.
var DefaultFormat = Format{
	SampleRate: 44100,
	Channels:   2,
	BitDepth:   16,
}

// BlockAlign returns the size in bytes of one multi-channel sample frame.
func (f Format) BlockAlign() int {
	return f.Channels * f.BitDepth / 8
}

// ByteRate returns the stream rate in bytes per second.
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// MimeType returns the RFC 2586 content type for the raw PCM stream.
func (f Format) MimeType() string {
	return fmt.Sprintf("audio/L%d;rate=%d;channels=%d", f.BitDepth, f.SampleRate, f.Channels)
}

// Valid reports whether the format is something the pipeline can serve.
// Only 16-bit output is produced; higher-depth devices are down-converted
// during capture.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0 && f.BitDepth == 16
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%d-bit/%dch", f.SampleRate, f.BitDepth, f.Channels)
}
