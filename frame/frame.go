// Package frame provides audio frame slicing for the audiowire pipeline.
//
// The slicer converts an application-supplied stream of interleaved PCM
// samples into fixed-size frames tagged with a monotonic sequence number
// and a capture timestamp. Frames are the unit every downstream stage
// (FEC encoding, packetization, reordering, playback) operates on.
package frame

import (
	"errors"
)

// ErrInvalidFrameSize indicates a frame size of zero or one that is not
// a multiple of the channel count.
var ErrInvalidFrameSize = errors.New("invalid frame size")

// Frame is one fixed-size slice of the audio stream.
//
// Samples are interleaved by channel. A Frame is immutable once created:
// no pipeline stage modifies Samples after the slicer emits it.
type Frame struct {
	// Seq is the monotonic frame sequence number, unique per stream.
	Seq uint32

	// Timestamp is the capture timestamp in sample ticks (per channel,
	// sender clock).
	Timestamp uint32

	// Channels is the number of interleaved channels (1=mono, 2=stereo).
	Channels int

	// Samples holds exactly the configured frame size of interleaved
	// samples.
	Samples []int16
}

// Duration returns the frame length in sample ticks per channel.
func (f *Frame) Duration() uint32 {
	if f.Channels == 0 {
		return 0
	}
	return uint32(len(f.Samples) / f.Channels)
}
