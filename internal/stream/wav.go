// ABOUTME: Synthetic streaming WAV header
// ABOUTME: Length fields are maxed out because the live stream has no end
package stream

import (
	"encoding/binary"

	"github.com/hearcast/hearcast/internal/audio"
)

// HeaderSize is the size of the canonical RIFF/fmt/data header.
const HeaderSize = 44

// streamDataSize is what we claim the data chunk holds. Renderers must
// tolerate an oversized length on live streams; this is the established
// trick for WAV without a known duration.
const streamDataSize = 0xFFFFFFFF - HeaderSize

// WAVHeader renders the 44-byte header for a live PCM stream in the given
// format. Sent once per connection, before any audio bytes.
func WAVHeader(f audio.Format) []byte {
	h := make([]byte, HeaderSize)
	le := binary.LittleEndian

	copy(h[0:4], "RIFF")
	le.PutUint32(h[4:8], streamDataSize+36)
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	le.PutUint32(h[16:20], 16) // PCM fmt chunk size
	le.PutUint16(h[20:22], 1)  // audio format: linear PCM
	le.PutUint16(h[22:24], uint16(f.Channels))
	le.PutUint32(h[24:28], uint32(f.SampleRate))
	le.PutUint32(h[28:32], uint32(f.ByteRate()))
	le.PutUint16(h[32:34], uint16(f.BlockAlign()))
	le.PutUint16(h[34:36], uint16(f.BitDepth))

	copy(h[36:40], "data")
	le.PutUint32(h[40:44], streamDataSize)
	return h
}
