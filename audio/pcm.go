// Package audio provides sample-format handling and adaptive resampling
// for the audiowire pipeline.
//
// The core engine moves fixed-size PCM frames; this package owns the
// byte-level sample encoding at the wire boundary, the codec boundary
// for interoperating with Opus senders, and the resampler the playback
// controller drives to compensate for clock drift between endpoints.
package audio

import (
	"encoding/binary"
	"fmt"
)

// BytesPerSample is the wire size of one PCM sample (signed 16-bit).
const BytesPerSample = 2

// MarshalPCM16 converts interleaved int16 samples to big-endian bytes.
func MarshalPCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.BigEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

// UnmarshalPCM16 converts big-endian bytes back to interleaved int16
// samples.
func UnmarshalPCM16(data []byte) ([]int16, error) {
	if len(data)%BytesPerSample != 0 {
		return nil, fmt.Errorf("PCM payload length %d is not a multiple of %d", len(data), BytesPerSample)
	}

	samples := make([]int16, len(data)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.BigEndian.Uint16(data[i*BytesPerSample:]))
	}
	return samples, nil
}
