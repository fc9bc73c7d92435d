package playback

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// DriftConfig defines drift-compensation parameters.
//
// Conservative defaults follow the react-quickly/recover-slowly rule:
// the scale moves in small, slew-limited steps so playback never jumps
// audibly. All values are deployment tuning knobs.
type DriftConfig struct {
	// Gain scales the occupancy error into a scale correction
	// (default: 0.01).
	Gain float64

	// MaxScale and MinScale clamp the clock-ratio scale to half a
	// percent either way (defaults: 1.005 and 0.995).
	MaxScale float64
	MinScale float64

	// MaxStep limits the per-update scale change (default: 0.0005).
	MaxStep float64

	// UpdateInterval is the number of reads between estimate updates
	// (default: 16).
	UpdateInterval int
}

// DefaultDriftConfig returns configuration with conservative defaults.
func DefaultDriftConfig() DriftConfig {
	return DriftConfig{
		Gain:           0.01,
		MaxScale:       1.005,
		MinScale:       0.995,
		MaxStep:        0.0005,
		UpdateInterval: 16,
	}
}

// DriftEstimator maintains the running receiver/sender clock-ratio
// estimate from playback-buffer occupancy observations.
//
// It is the one-way feedback path from the controller to the resampler;
// the reorder window never reads it. The estimate is never reset except
// at stream restart.
type DriftEstimator struct {
	mu    sync.Mutex
	cfg   DriftConfig
	scale float64
	reads int
}

// NewDriftEstimator creates a drift estimator.
func NewDriftEstimator(cfg DriftConfig) *DriftEstimator {
	def := DefaultDriftConfig()
	if cfg.Gain <= 0 {
		cfg.Gain = def.Gain
	}
	if cfg.MaxScale <= 1.0 {
		cfg.MaxScale = def.MaxScale
	}
	if cfg.MinScale <= 0 || cfg.MinScale >= 1.0 {
		cfg.MinScale = def.MinScale
	}
	if cfg.MaxStep <= 0 {
		cfg.MaxStep = def.MaxStep
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = def.UpdateInterval
	}

	return &DriftEstimator{cfg: cfg, scale: 1.0}
}

// Observe records one read-time occupancy sample and, every
// UpdateInterval reads, nudges the scale estimate toward draining the
// occupancy error.
//
// Returns:
//   - float64: Current scale
//   - bool: Whether the estimate was updated by this observation
func (d *DriftEstimator) Observe(occupancy, target int) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reads++
	if d.reads < d.cfg.UpdateInterval {
		return d.scale, false
	}
	d.reads = 0

	if target < 1 {
		target = 1
	}
	errorRatio := float64(occupancy-target) / float64(target)

	// Occupancy above target: consume input faster (scale up). The
	// step is slew-limited so the ratio varies smoothly.
	desired := 1.0 + d.cfg.Gain*errorRatio
	step := desired - d.scale
	if step > d.cfg.MaxStep {
		step = d.cfg.MaxStep
	} else if step < -d.cfg.MaxStep {
		step = -d.cfg.MaxStep
	}
	d.scale += step

	if d.scale > d.cfg.MaxScale {
		d.scale = d.cfg.MaxScale
	} else if d.scale < d.cfg.MinScale {
		d.scale = d.cfg.MinScale
	}

	logrus.WithFields(logrus.Fields{
		"function":  "DriftEstimator.Observe",
		"occupancy": occupancy,
		"target":    target,
		"scale":     d.scale,
	}).Debug("Updated clock drift estimate")

	return d.scale, true
}

// Scale returns the current clock-ratio estimate.
func (d *DriftEstimator) Scale() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scale
}
