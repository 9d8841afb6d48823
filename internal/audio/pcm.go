// ABOUTME: PCM sample conversion helpers
// ABOUTME: Normalizes capture formats down to little-endian 16-bit PCM
package audio

import "math"

// Int16Bytes encodes interleaved int16 samples as little-endian PCM bytes.
// dst is reused when large enough.
func Int16Bytes(src []int16, dst []byte) []byte {
	if cap(dst) < len(src)*2 {
		dst = make([]byte, len(src)*2)
	}
	dst = dst[:len(src)*2]
	for i, v := range src {
		u := uint16(v)
		dst[2*i] = byte(u)
		dst[2*i+1] = byte(u >> 8)
	}
	return dst
}

// Float32Bytes converts normalized float32 samples ([-1, 1]) to 16-bit PCM
// bytes, clipping out-of-range values.
func Float32Bytes(src []float32, dst []byte) []byte {
	if cap(dst) < len(src)*2 {
		dst = make([]byte, len(src)*2)
	}
	dst = dst[:len(src)*2]
	for i, v := range src {
		s := int32(v * 32768)
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		u := uint16(int16(s))
		dst[2*i] = byte(u)
		dst[2*i+1] = byte(u >> 8)
	}
	return dst
}

// Int32Bytes down-converts 32-bit PCM samples to 16-bit PCM bytes by
// dropping the low 16 bits. Used for devices that only open at 24/32 bit.
func Int32Bytes(src []int32, dst []byte) []byte {
	if cap(dst) < len(src)*2 {
		dst = make([]byte, len(src)*2)
	}
	dst = dst[:len(src)*2]
	for i, v := range src {
		u := uint16(int16(v >> 16))
		dst[2*i] = byte(u)
		dst[2*i+1] = byte(u >> 8)
	}
	return dst
}
