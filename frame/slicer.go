package frame

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// SlicerConfig holds configuration for creating a slicer.
type SlicerConfig struct {
	FrameSize int    // Samples per frame, all channels interleaved
	Channels  int    // Number of audio channels (1=mono, 2=stereo)
	StartSeq  uint32 // First sequence number to assign
}

// Slicer converts arbitrary-length sample buffers into fixed-size frames.
//
// A short remainder is buffered until enough samples accumulate to
// complete a frame; the slicer never emits a partial frame. Sequence
// numbers start at StartSeq and increment by one per frame, never
// reused. The capture timestamp advances by the per-channel frame
// duration for every emitted frame.
type Slicer struct {
	mu        sync.Mutex
	frameSize int
	channels  int
	pending   []int16
	nextSeq   uint32
	nextTS    uint32
}

// NewSlicer creates a new frame slicer.
//
// Parameters:
//   - config: Slicer configuration
//
// Returns:
//   - *Slicer: New slicer instance
//   - error: ErrInvalidFrameSize if the frame size is zero or not a
//     multiple of the channel count
func NewSlicer(config SlicerConfig) (*Slicer, error) {
	if config.Channels < 1 {
		return nil, fmt.Errorf("%w: channel count must be at least 1, got %d",
			ErrInvalidFrameSize, config.Channels)
	}
	if config.FrameSize <= 0 || config.FrameSize%config.Channels != 0 {
		return nil, fmt.Errorf("%w: frame size %d is not a positive multiple of %d channels",
			ErrInvalidFrameSize, config.FrameSize, config.Channels)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "NewSlicer",
		"frame_size": config.FrameSize,
		"channels":   config.Channels,
		"start_seq":  config.StartSeq,
	}).Info("Creating new frame slicer")

	return &Slicer{
		frameSize: config.FrameSize,
		channels:  config.Channels,
		pending:   make([]int16, 0, config.FrameSize),
		nextSeq:   config.StartSeq,
	}, nil
}

// Write appends samples to the slicer and returns every frame completed
// by this call.
//
// The sample buffer may have any length that is a multiple of the
// channel count. Returned frames own their sample slices; the caller
// may reuse the input buffer immediately.
//
// Parameters:
//   - samples: Interleaved PCM samples
//
// Returns:
//   - []*Frame: Frames completed by this write, in sequence order
//   - error: ErrInvalidFrameSize if the buffer length is not a multiple
//     of the channel count
func (s *Slicer) Write(samples []int16) ([]*Frame, error) {
	if len(samples)%s.channels != 0 {
		return nil, fmt.Errorf("%w: buffer length %d is not a multiple of %d channels",
			ErrInvalidFrameSize, len(samples), s.channels)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, samples...)

	var frames []*Frame
	for len(s.pending) >= s.frameSize {
		buf := make([]int16, s.frameSize)
		copy(buf, s.pending[:s.frameSize])
		s.pending = s.pending[s.frameSize:]

		f := &Frame{
			Seq:       s.nextSeq,
			Timestamp: s.nextTS,
			Channels:  s.channels,
			Samples:   buf,
		}
		s.nextSeq++
		s.nextTS += uint32(s.frameSize / s.channels)
		frames = append(frames, f)
	}

	if len(frames) > 0 {
		logrus.WithFields(logrus.Fields{
			"function":  "Slicer.Write",
			"frames":    len(frames),
			"first_seq": frames[0].Seq,
			"pending":   len(s.pending),
		}).Debug("Sliced sample buffer into frames")
	}

	return frames, nil
}

// Pending returns the number of buffered samples awaiting a full frame.
func (s *Slicer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// NextSeq returns the sequence number the next completed frame will carry.
func (s *Slicer) NextSeq() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq
}
