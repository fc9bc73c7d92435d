// Package playback implements the receiver's playback buffer and timing
// controller.
//
// The reorder window produces in-order frames (and gap markers); the
// buffer holds them near a target occupancy, and the controller serves
// the application's pull-based reads: silence on underrun, trimming on
// overrun, and adaptive resampling to track sender/receiver clock drift.
package playback

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Entry is one ready-to-emit frame in the playback buffer.
//
// Gap entries play as silence of one frame.
type Entry struct {
	Seq       uint32
	Timestamp uint32
	Samples   []int16
	Gap       bool
}

// BufferConfig holds configuration for creating a playback buffer.
type BufferConfig struct {
	// TargetFrames is the occupancy the controller steers toward.
	TargetFrames int

	// LowWatermark marks the occupancy below which reads report
	// underrun pressure. Defaults to TargetFrames/2.
	LowWatermark int

	// HighWatermark marks the occupancy above which the oldest frames
	// are trimmed. Defaults to TargetFrames*2.
	HighWatermark int
}

// BufferStats is a snapshot of buffer counters.
type BufferStats struct {
	FramesPushed  uint64
	FramesRead    uint64
	FramesTrimmed uint64
	GapsRead      uint64
}

// Buffer is the receiver-owned ring of ready-to-emit frames.
//
// The reorder window is the producer and the timing controller the
// consumer; a single mutex guards the handoff and is never held across
// blocking operations.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	target  int
	low     int
	high    int
	stats   BufferStats
}

// NewBuffer creates a playback buffer.
func NewBuffer(cfg BufferConfig) *Buffer {
	if cfg.TargetFrames < 1 {
		cfg.TargetFrames = 1
	}
	if cfg.LowWatermark <= 0 {
		cfg.LowWatermark = cfg.TargetFrames / 2
	}
	if cfg.HighWatermark <= 0 {
		cfg.HighWatermark = cfg.TargetFrames * 2
	}
	if cfg.HighWatermark <= cfg.TargetFrames {
		cfg.HighWatermark = cfg.TargetFrames + 1
	}

	logrus.WithFields(logrus.Fields{
		"function":       "NewBuffer",
		"target_frames":  cfg.TargetFrames,
		"low_watermark":  cfg.LowWatermark,
		"high_watermark": cfg.HighWatermark,
	}).Info("Creating new playback buffer")

	return &Buffer{
		entries: make([]Entry, 0, cfg.HighWatermark),
		target:  cfg.TargetFrames,
		low:     cfg.LowWatermark,
		high:    cfg.HighWatermark,
	}
}

// Push appends one in-order frame, trimming the oldest frames when the
// high watermark is exceeded. The most recent audio is preserved.
func (b *Buffer) Push(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, e)
	b.stats.FramesPushed++

	if len(b.entries) > b.high {
		trim := len(b.entries) - b.target
		b.entries = append(b.entries[:0], b.entries[trim:]...)
		b.stats.FramesTrimmed += uint64(trim)

		logrus.WithFields(logrus.Fields{
			"function":  "Buffer.Push",
			"trimmed":   trim,
			"occupancy": len(b.entries),
		}).Warn("Playback buffer overrun, trimmed oldest frames")
	}
}

// Pop removes and returns the oldest frame.
func (b *Buffer) Pop() (Entry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) == 0 {
		return Entry{}, false
	}

	e := b.entries[0]
	b.entries = b.entries[1:]
	b.stats.FramesRead++
	if e.Gap {
		b.stats.GapsRead++
	}
	return e, true
}

// Len returns the current occupancy in frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Target returns the configured target occupancy in frames.
func (b *Buffer) Target() int { return b.target }

// LowWatermark returns the configured low watermark in frames.
func (b *Buffer) LowWatermark() int { return b.low }

// HighWatermark returns the configured high watermark in frames.
func (b *Buffer) HighWatermark() int { return b.high }

// Stats returns a snapshot of buffer counters.
func (b *Buffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
