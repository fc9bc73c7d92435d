package audio

import (
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

// Profile selects the resampler quality/latency tradeoff.
type Profile int

const (
	// ProfileDisabled bypasses resampling entirely; drift compensation
	// is unavailable.
	ProfileDisabled Profile = iota
	// ProfileFast favors low CPU cost.
	ProfileFast
	// ProfileDefault balances quality and cost.
	ProfileDefault
	// ProfileHigh favors quality.
	ProfileHigh
)

// String returns a human-readable profile name.
func (p Profile) String() string {
	switch p {
	case ProfileDisabled:
		return "disabled"
	case ProfileFast:
		return "fast"
	case ProfileDefault:
		return "default"
	case ProfileHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Resampler converts a sample stream between clock domains.
//
// The playback controller adjusts the scale around 1.0 to stretch or
// compress the stream by the estimated sender/receiver clock ratio.
// Implementations must keep scale changes small and smooth; abrupt
// jumps cause audible artifacts.
type Resampler interface {
	// Resample converts one batch of interleaved samples. Output length
	// varies with the current scale.
	Resample(input []int16) ([]int16, error)

	// SetScale updates the clock-ratio scale (input frames consumed per
	// output frame). A scale above 1.0 drains the stream faster.
	SetScale(scale float64)

	// Scale returns the current clock-ratio scale.
	Scale() float64
}

// ResamplerConfig holds configuration for creating a resampler.
type ResamplerConfig struct {
	InputRate  uint32  // Input sample rate in Hz
	OutputRate uint32  // Output sample rate in Hz
	Channels   int     // Number of audio channels (1=mono, 2=stereo)
	Profile    Profile // Quality profile
}

// LinearResampler converts sample rates using stateful linear
// interpolation.
//
// Linear interpolation gives good quality for voice at low cost and
// needs no external dependencies. The fractional read position and the
// final frame of each batch carry over between calls so the output is
// continuous across batch boundaries.
type LinearResampler struct {
	mu        sync.Mutex
	baseRatio float64
	scale     float64
	channels  int
	profile   Profile
	pos       float64
	lastFrame []int16
}

// NewResampler creates a new linear resampler.
//
// Parameters:
//   - config: Resampler configuration
//
// Returns:
//   - *LinearResampler: New resampler instance
//   - error: Any error that occurred during initialization
func NewResampler(config ResamplerConfig) (*LinearResampler, error) {
	if config.InputRate == 0 || config.OutputRate == 0 {
		return nil, fmt.Errorf("invalid sample rates: input=%d, output=%d",
			config.InputRate, config.OutputRate)
	}
	if config.Channels < 1 || config.Channels > 2 {
		return nil, fmt.Errorf("unsupported channel count: %d (must be 1 or 2)", config.Channels)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewResampler",
		"input_rate":  config.InputRate,
		"output_rate": config.OutputRate,
		"channels":    config.Channels,
		"profile":     config.Profile.String(),
	}).Info("Creating new audio resampler")

	return &LinearResampler{
		baseRatio: float64(config.InputRate) / float64(config.OutputRate),
		scale:     1.0,
		channels:  config.Channels,
		profile:   config.Profile,
		lastFrame: make([]int16, config.Channels),
	}, nil
}

// SetScale updates the clock-ratio scale applied on top of the base
// rate conversion.
func (r *LinearResampler) SetScale(scale float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scale = scale
}

// Scale returns the current clock-ratio scale.
func (r *LinearResampler) Scale() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scale
}

// Resample converts one batch of interleaved samples.
func (r *LinearResampler) Resample(input []int16) ([]int16, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("empty input samples")
	}
	if len(input)%r.channels != 0 {
		return nil, fmt.Errorf("input samples (%d) not aligned to channel count (%d)",
			len(input), r.channels)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	step := r.baseRatio * r.scale
	if step == 1.0 && r.pos == 0 {
		out := make([]int16, len(input))
		copy(out, input)
		copy(r.lastFrame, input[len(input)-r.channels:])
		return out, nil
	}

	inputFrames := len(input) / r.channels
	out := make([]int16, 0, int(float64(len(input))/step)+r.channels)

	for ; r.pos < float64(inputFrames-1); r.pos += step {
		idx := int(math.Floor(r.pos))
		frac := r.pos - float64(idx)
		for ch := 0; ch < r.channels; ch++ {
			var s0 int16
			if idx < 0 {
				s0 = r.lastFrame[ch]
			} else {
				s0 = input[idx*r.channels+ch]
			}
			s1 := input[(idx+1)*r.channels+ch]
			out = append(out, int16(math.Round(float64(s0)*(1.0-frac)+float64(s1)*frac)))
		}
	}

	r.pos -= float64(inputFrames)
	copy(r.lastFrame, input[len(input)-r.channels:])

	return out, nil
}
