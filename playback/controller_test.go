package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/audiowire/audio"
)

const (
	testFrameSize = 8 // 4 stereo sample pairs
	testChannels  = 2
)

func newTestController(t *testing.T, target int) *Controller {
	t.Helper()
	c, err := NewController(ControllerConfig{
		FrameSize:  testFrameSize,
		Channels:   testChannels,
		SampleRate: 48000,
		Buffer:     BufferConfig{TargetFrames: target},
	})
	require.NoError(t, err)
	return c
}

func audioEntry(seq uint32, value int16) Entry {
	samples := make([]int16, testFrameSize)
	for i := range samples {
		samples[i] = value
	}
	return Entry{Seq: seq, Samples: samples}
}

func TestControllerConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  ControllerConfig
	}{
		{"zero channels", ControllerConfig{FrameSize: 8, SampleRate: 48000}},
		{"zero sample rate", ControllerConfig{FrameSize: 8, Channels: 2}},
		{"zero frame size", ControllerConfig{Channels: 2, SampleRate: 48000}},
		{"frame size not multiple of channels", ControllerConfig{FrameSize: 7, Channels: 2, SampleRate: 48000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewController(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestControllerReadRejectsBadBuffer(t *testing.T) {
	c := newTestController(t, 2)

	assert.Error(t, c.Read(nil))
	assert.Error(t, c.Read(make([]int16, 7)))
}

func TestControllerPrebuffersSilence(t *testing.T) {
	c := newTestController(t, 4) // low watermark 2

	c.Push(audioEntry(0, 1000))

	// One frame buffered, below the low watermark: silence, and the
	// buffered audio stays untouched.
	buf := make([]int16, testFrameSize)
	require.NoError(t, c.Read(buf))
	for _, s := range buf {
		assert.Equal(t, int16(0), s)
	}
	assert.Equal(t, 1, c.Occupancy())

	// Reaching the watermark starts playback.
	c.Push(audioEntry(1, 2000))
	require.NoError(t, c.Read(buf))
	assert.Equal(t, int16(1000), buf[0])
}

func TestControllerFillsCompletelyAndPadsOnUnderrun(t *testing.T) {
	c := newTestController(t, 1)

	c.Push(audioEntry(0, 500))

	// Ask for a frame and a half: the second half must be silence.
	buf := make([]int16, testFrameSize+testFrameSize/2)
	require.NoError(t, c.Read(buf))

	for i := 0; i < testFrameSize; i++ {
		assert.Equal(t, int16(500), buf[i])
	}
	for i := testFrameSize; i < len(buf); i++ {
		assert.Equal(t, int16(0), buf[i])
	}

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Underruns)
}

func TestControllerCarriesPendingAcrossReads(t *testing.T) {
	c := newTestController(t, 1)

	c.Push(audioEntry(0, 100))
	c.Push(audioEntry(1, 200))

	// Half-frame reads must consume the stream seamlessly.
	buf := make([]int16, testFrameSize/2)
	var got []int16
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Read(buf))
		got = append(got, buf...)
	}

	for i := 0; i < testFrameSize; i++ {
		assert.Equal(t, int16(100), got[i])
	}
	for i := testFrameSize; i < 2*testFrameSize; i++ {
		assert.Equal(t, int16(200), got[i])
	}
}

func TestControllerGapPlaysExactlyOneFrameOfSilence(t *testing.T) {
	// Target 3 keeps all three entries under the high watermark so the
	// read sees the full audio-gap-audio sequence.
	c := newTestController(t, 3)

	c.Push(audioEntry(0, 100))
	c.Push(Entry{Seq: 1, Gap: true})
	c.Push(audioEntry(2, 300))

	buf := make([]int16, 3*testFrameSize)
	require.NoError(t, c.Read(buf))

	for i := 0; i < testFrameSize; i++ {
		assert.Equal(t, int16(100), buf[i])
	}
	for i := testFrameSize; i < 2*testFrameSize; i++ {
		assert.Equal(t, int16(0), buf[i], "gap sample %d", i)
	}
	for i := 2 * testFrameSize; i < 3*testFrameSize; i++ {
		assert.Equal(t, int16(300), buf[i])
	}
}

func TestControllerAppliesDriftScaleToResampler(t *testing.T) {
	r, err := audio.NewResampler(audio.ResamplerConfig{
		InputRate:  48000,
		OutputRate: 48000,
		Channels:   testChannels,
	})
	require.NoError(t, err)

	c, err := NewController(ControllerConfig{
		FrameSize:  testFrameSize,
		Channels:   testChannels,
		SampleRate: 48000,
		Buffer:     BufferConfig{TargetFrames: 1},
		Drift:      DriftConfig{UpdateInterval: 1, Gain: 0.01, MaxStep: 0.01},
		Resampler:  r,
	})
	require.NoError(t, err)

	// Occupancy far above target pushes the scale up; the controller
	// must forward the new estimate to the resampler.
	for i := 0; i < 10; i++ {
		c.Push(audioEntry(uint32(i), 1))
	}
	buf := make([]int16, testFrameSize)
	require.NoError(t, c.Read(buf))

	assert.Greater(t, r.Scale(), 1.0)
	assert.Equal(t, c.DriftScale(), r.Scale())
}

func TestControllerOccupancyConvergesToTarget(t *testing.T) {
	const target = 16

	r, err := audio.NewResampler(audio.ResamplerConfig{
		InputRate:  48000,
		OutputRate: 48000,
		Channels:   testChannels,
	})
	require.NoError(t, err)

	c, err := NewController(ControllerConfig{
		FrameSize:  testFrameSize,
		Channels:   testChannels,
		SampleRate: 48000,
		Buffer:     BufferConfig{TargetFrames: target},
		Drift:      DefaultDriftConfig(),
		Resampler:  r,
	})
	require.NoError(t, err)

	// Start half full, then run a balanced push/read workload. The
	// drift loop must pull occupancy up to the target and settle the
	// scale back at unity, without ever trimming or underrunning.
	var seq uint32
	for ; seq < target/2; seq++ {
		c.Push(audioEntry(seq, 1))
	}

	buf := make([]int16, testFrameSize)
	for i := 0; i < 20000; i++ {
		c.Push(audioEntry(seq, 1))
		seq++
		require.NoError(t, c.Read(buf))
	}

	assert.InDelta(t, target, c.Occupancy(), 3, "occupancy must settle near the target")
	assert.InDelta(t, 1.0, c.DriftScale(), 0.005, "scale must settle near unity")

	stats := c.Stats()
	assert.Equal(t, uint64(0), stats.Underruns, "occupancy must stay above empty")
	assert.Equal(t, uint64(0), stats.Buffer.FramesTrimmed, "occupancy must stay under the high watermark")
}

func TestControllerAutomaticTimingPacesReads(t *testing.T) {
	c, err := NewController(ControllerConfig{
		FrameSize:       4,
		Channels:        2,
		SampleRate:      1000, // 2ms per 4-sample stereo frame
		Buffer:          BufferConfig{TargetFrames: 1},
		AutomaticTiming: true,
	})
	require.NoError(t, err)

	buf := make([]int16, 4)
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, c.Read(buf))
	}
	elapsed := time.Since(start)

	// First read is immediate; four more are paced at 2ms each.
	assert.GreaterOrEqual(t, elapsed, 6*time.Millisecond)
	assert.Less(t, elapsed, 100*time.Millisecond, "reads must never stall")
}

func TestControllerManualTimingReturnsImmediately(t *testing.T) {
	c := newTestController(t, 1)

	buf := make([]int16, testFrameSize)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, c.Read(buf))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
