package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiowire/audio"
)

// ControllerConfig holds configuration for creating a timing controller.
type ControllerConfig struct {
	// FrameSize is the stream frame size in interleaved samples; gap
	// markers play as exactly this much silence.
	FrameSize int

	// Channels is the number of interleaved channels.
	Channels int

	// SampleRate is the stream sample rate in Hz, used for read pacing.
	SampleRate uint32

	// Buffer configures the playback buffer occupancy targets.
	Buffer BufferConfig

	// Drift configures the clock-drift estimator.
	Drift DriftConfig

	// Resampler applies the drift estimate to the played-out stream.
	// Nil disables drift compensation.
	Resampler audio.Resampler

	// AutomaticTiming makes the controller pace reads from its own
	// clock. When disabled the application supplies its own timing and
	// reads return immediately.
	AutomaticTiming bool
}

// ControllerStats is a snapshot of controller counters.
type ControllerStats struct {
	Reads      uint64
	Underruns  uint64
	Occupancy  int
	DriftScale float64
	Buffer     BufferStats
}

// Controller serves the application's pull-based frame reads.
//
// Reads never block beyond one frame duration: an empty or still
// prebuffering playback buffer yields a zero-filled frame instead of
// stalling, preserving real-time pacing.
type Controller struct {
	mu        sync.Mutex
	frameSize int
	channels  int
	rate      uint32
	buffer    *Buffer
	drift     *DriftEstimator
	resampler audio.Resampler
	automatic bool
	pending   []int16
	started   bool
	nextDue   time.Time
	reads     uint64
	underruns uint64
}

// NewController creates a playback timing controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Channels < 1 {
		return nil, fmt.Errorf("channel count must be at least 1, got %d", cfg.Channels)
	}
	if cfg.SampleRate == 0 {
		return nil, fmt.Errorf("sample rate cannot be zero")
	}
	if cfg.FrameSize <= 0 || cfg.FrameSize%cfg.Channels != 0 {
		return nil, fmt.Errorf("frame size %d is not a positive multiple of %d channels",
			cfg.FrameSize, cfg.Channels)
	}

	logrus.WithFields(logrus.Fields{
		"function":         "NewController",
		"channels":         cfg.Channels,
		"sample_rate":      cfg.SampleRate,
		"target_frames":    cfg.Buffer.TargetFrames,
		"automatic_timing": cfg.AutomaticTiming,
		"drift_enabled":    cfg.Resampler != nil,
	}).Info("Creating new playback timing controller")

	return &Controller{
		frameSize: cfg.FrameSize,
		channels:  cfg.Channels,
		rate:      cfg.SampleRate,
		buffer:    NewBuffer(cfg.Buffer),
		drift:     NewDriftEstimator(cfg.Drift),
		resampler: cfg.Resampler,
		automatic: cfg.AutomaticTiming,
	}, nil
}

// Push hands one in-order frame (or gap marker) to the playback buffer.
// Called by the receive pipeline; never blocks.
func (c *Controller) Push(e Entry) {
	c.buffer.Push(e)
}

// Read fills buf with the next interleaved samples.
//
// The buffer is always filled completely: with audio when available,
// with silence while prebuffering or on underrun. With automatic timing
// enabled the call sleeps until the frame is due, never longer than one
// frame duration.
//
// Parameters:
//   - buf: Caller-allocated sample buffer; length must be a positive
//     multiple of the channel count
//
// Returns:
//   - error: Only argument errors; starvation is not an error
func (c *Controller) Read(buf []int16) error {
	if len(buf) == 0 || len(buf)%c.channels != 0 {
		return fmt.Errorf("read buffer length %d is not a positive multiple of %d channels",
			len(buf), c.channels)
	}

	c.pace(len(buf))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.reads++

	occupancy := c.buffer.Len()
	scale, updated := c.drift.Observe(occupancy, c.buffer.Target())
	if updated && c.resampler != nil {
		c.resampler.SetScale(scale)
	}

	// Prebuffer: emit silence until occupancy first reaches the low
	// watermark, so playback starts with headroom against jitter.
	if !c.started {
		if occupancy < c.buffer.LowWatermark() {
			zero(buf)
			return nil
		}
		c.started = true
	}

	for len(c.pending) < len(buf) {
		entry, ok := c.buffer.Pop()
		if !ok {
			c.underruns++
			logrus.WithFields(logrus.Fields{
				"function": "Controller.Read",
				"pending":  len(c.pending),
				"needed":   len(buf),
			}).Debug("Playback underrun, padding with silence")
			break
		}
		c.pending = append(c.pending, c.entrySamples(entry)...)
	}

	n := copy(buf, c.pending)
	zero(buf[n:])
	c.pending = c.pending[:copy(c.pending, c.pending[n:])]

	return nil
}

// Occupancy returns the playback buffer occupancy in frames.
func (c *Controller) Occupancy() int {
	return c.buffer.Len()
}

// DriftScale returns the current clock-ratio estimate.
func (c *Controller) DriftScale() float64 {
	return c.drift.Scale()
}

// Stats returns a snapshot of controller counters.
func (c *Controller) Stats() ControllerStats {
	c.mu.Lock()
	reads := c.reads
	underruns := c.underruns
	c.mu.Unlock()

	return ControllerStats{
		Reads:      reads,
		Underruns:  underruns,
		Occupancy:  c.buffer.Len(),
		DriftScale: c.drift.Scale(),
		Buffer:     c.buffer.Stats(),
	}
}

// pace sleeps until the next frame is due when automatic timing is on.
// The sleep is capped at one frame duration so reads stay real-time.
func (c *Controller) pace(samples int) {
	if !c.automatic {
		return
	}

	frameDur := time.Duration(samples/c.channels) * time.Second / time.Duration(c.rate)

	c.mu.Lock()
	now := time.Now()
	if c.nextDue.IsZero() || c.nextDue.Before(now.Add(-frameDur)) {
		c.nextDue = now
	}
	wait := c.nextDue.Sub(now)
	c.nextDue = c.nextDue.Add(frameDur)
	c.mu.Unlock()

	if wait > 0 {
		if wait > frameDur {
			wait = frameDur
		}
		time.Sleep(wait)
	}
}

// entrySamples converts a buffer entry to playable samples, applying
// drift resampling to real audio. Gaps play as exactly one stream frame
// of silence so downstream timing stays sample-accurate.
func (c *Controller) entrySamples(e Entry) []int16 {
	if e.Gap || len(e.Samples) == 0 {
		return make([]int16, c.frameSize)
	}
	if c.resampler == nil {
		return e.Samples
	}

	out, err := c.resampler.Resample(e.Samples)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Controller.entrySamples",
			"seq":      e.Seq,
			"error":    err.Error(),
		}).Warn("Resampling failed, playing frame unmodified")
		return e.Samples
	}
	return out
}

func zero(buf []int16) {
	for i := range buf {
		buf[i] = 0
	}
}
