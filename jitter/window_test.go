package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/audiowire/fec"
)

const testFrameTicks = 128

func newTestWindow(t *testing.T, sourceCount, repairCount, deadline int) *Window {
	t.Helper()

	var scheme fec.Scheme
	if repairCount > 0 {
		rs, err := fec.NewReedSolomonScheme(sourceCount, repairCount)
		require.NoError(t, err)
		scheme = rs
	} else {
		scheme = fec.NewNoneScheme()
	}

	w, err := NewWindow(Config{
		Scheme:         scheme,
		DeadlineBlocks: deadline,
		MaxBlocks:      deadline * 4,
		FrameTicks:     testFrameTicks,
	})
	require.NoError(t, err)
	return w
}

func framePayload(seq uint32) []byte {
	return []byte{byte(seq), byte(seq >> 8), 0xaa, 0xbb}
}

// encodeTestBlock produces the repair shards the sender would have
// computed for a block of consecutive frames.
func encodeTestBlock(t *testing.T, scheme fec.Scheme, firstSeq uint32) [][]byte {
	t.Helper()
	source := make([][]byte, scheme.SourceCount())
	for i := range source {
		source[i] = framePayload(firstSeq + uint32(i))
	}
	repairs, err := scheme.Encode(source)
	require.NoError(t, err)
	return repairs
}

func TestWindowInOrderDelivery(t *testing.T) {
	w := newTestWindow(t, 4, 2, 2)

	var emitted []Emitted
	for seq := uint32(0); seq < 8; seq++ {
		emitted = append(emitted, w.PushSource(seq, seq*testFrameTicks, framePayload(seq))...)
	}

	require.Len(t, emitted, 8)
	for i, e := range emitted {
		assert.Equal(t, uint32(i), e.Seq)
		assert.Equal(t, uint32(i)*testFrameTicks, e.Timestamp)
		assert.False(t, e.Gap)
		assert.Equal(t, framePayload(e.Seq), e.Payload)
	}

	stats := w.Stats()
	assert.Equal(t, uint64(2), stats.BlocksComplete)
	assert.Equal(t, uint64(0), stats.BlocksLost)
}

func TestWindowReordersWithinBlock(t *testing.T) {
	w := newTestWindow(t, 4, 2, 2)

	order := []uint32{2, 0, 3, 1}
	var emitted []Emitted
	for _, seq := range order {
		emitted = append(emitted, w.PushSource(seq, seq*testFrameTicks, framePayload(seq))...)
	}

	require.Len(t, emitted, 4)
	for i, e := range emitted {
		assert.Equal(t, uint32(i), e.Seq, "delivery must be in ascending order")
	}
}

func TestWindowRecoversMissingSourceFrames(t *testing.T) {
	const sourceCount, repairCount = 4, 2
	w := newTestWindow(t, sourceCount, repairCount, 2)

	scheme, err := fec.NewReedSolomonScheme(sourceCount, repairCount)
	require.NoError(t, err)
	repairs := encodeTestBlock(t, scheme, 0)

	// Drop frames 1 and 2; deliver the rest plus both repair shards.
	var emitted []Emitted
	emitted = append(emitted, w.PushSource(0, 0, framePayload(0))...)
	emitted = append(emitted, w.PushSource(3, 3*testFrameTicks, framePayload(3))...)
	emitted = append(emitted, w.PushRepair(0, 0, 0, repairs[0])...)
	assert.Empty(t, emitted, "three of four shards is not yet recoverable")

	emitted = append(emitted, w.PushRepair(0, 1, 0, repairs[1])...)
	require.Len(t, emitted, 4)
	for i, e := range emitted {
		assert.Equal(t, uint32(i), e.Seq)
		assert.False(t, e.Gap)
		assert.Equal(t, framePayload(e.Seq), e.Payload, "recovered frame %d must match original", i)
		assert.Equal(t, uint32(i)*testFrameTicks, e.Timestamp)
	}

	stats := w.Stats()
	assert.Equal(t, uint64(1), stats.BlocksDecoded)
	assert.Equal(t, uint64(0), stats.BlocksLost)
}

func TestWindowLostBlockEmitsGaps(t *testing.T) {
	const sourceCount, repairCount = 4, 1
	w := newTestWindow(t, sourceCount, repairCount, 1)

	// Block 0 loses frames 1 and 2 with only one repair shard: beyond
	// the erasure bound. Block 1 arriving complete forces the deadline.
	var emitted []Emitted
	emitted = append(emitted, w.PushSource(0, 0, framePayload(0))...)
	emitted = append(emitted, w.PushSource(3, 3*testFrameTicks, framePayload(3))...)
	for seq := uint32(4); seq < 8; seq++ {
		emitted = append(emitted, w.PushSource(seq, seq*testFrameTicks, framePayload(seq))...)
	}

	require.Len(t, emitted, 8)
	gapSeqs := map[uint32]bool{1: true, 2: true}
	for i, e := range emitted {
		assert.Equal(t, uint32(i), e.Seq)
		assert.Equal(t, uint32(i)*testFrameTicks, e.Timestamp, "gap timestamps stay sample-accurate")
		if gapSeqs[e.Seq] {
			assert.True(t, e.Gap, "seq %d must be a gap marker", e.Seq)
			assert.Nil(t, e.Payload)
		} else {
			assert.False(t, e.Gap)
			assert.Equal(t, framePayload(e.Seq), e.Payload)
		}
	}

	stats := w.Stats()
	assert.Equal(t, uint64(1), stats.BlocksLost)
	assert.Equal(t, uint64(2), stats.GapsEmitted)
}

func TestWindowWhollyLostBlock(t *testing.T) {
	w := newTestWindow(t, 2, 1, 1)

	// Block 0 arrives, block 1 vanishes entirely, block 2 arrives.
	var emitted []Emitted
	emitted = append(emitted, w.PushSource(0, 0, framePayload(0))...)
	emitted = append(emitted, w.PushSource(1, testFrameTicks, framePayload(1))...)
	emitted = append(emitted, w.PushSource(4, 4*testFrameTicks, framePayload(4))...)
	emitted = append(emitted, w.PushSource(5, 5*testFrameTicks, framePayload(5))...)

	require.Len(t, emitted, 6)
	assert.True(t, emitted[2].Gap)
	assert.True(t, emitted[3].Gap)
	assert.Equal(t, uint32(2), emitted[2].Seq)
	assert.Equal(t, uint32(3), emitted[3].Seq)
	// Synthesized timestamps continue the timeline.
	assert.Equal(t, uint32(2)*testFrameTicks, emitted[2].Timestamp)
	assert.Equal(t, uint32(3)*testFrameTicks, emitted[3].Timestamp)
}

func TestWindowIgnoresDuplicatesAndLatePackets(t *testing.T) {
	w := newTestWindow(t, 2, 1, 1)

	w.PushSource(0, 0, framePayload(0))
	w.PushSource(0, 0, framePayload(0))
	assert.Equal(t, uint64(1), w.Stats().Duplicates)

	// Finish block 0 and force it out with block 1.
	w.PushSource(1, testFrameTicks, framePayload(1))
	w.PushSource(2, 2*testFrameTicks, framePayload(2))

	// Block 0 is retired; its packets are now late.
	emitted := w.PushSource(0, 0, framePayload(0))
	assert.Empty(t, emitted)
	assert.Equal(t, uint64(1), w.Stats().LatePackets)
}

func TestWindowNoFECSingleFrameBlocks(t *testing.T) {
	w := newTestWindow(t, 1, 0, 2)

	// Frames 0,1,3,4: frame 2 lost, forced out as a gap once frame 4
	// puts it past the two-block deadline. Frames 3 and 4 follow
	// immediately since single-frame blocks complete on arrival.
	var emitted []Emitted
	for _, seq := range []uint32{0, 1, 3, 4} {
		emitted = append(emitted, w.PushSource(seq, seq*testFrameTicks, framePayload(seq))...)
	}

	require.Len(t, emitted, 5)
	for i, e := range emitted {
		assert.Equal(t, uint32(i), e.Seq)
		assert.Equal(t, e.Seq == 2, e.Gap)
	}
	assert.Equal(t, 0, w.Pending())
}

func TestWindowSpanBoundForcesEviction(t *testing.T) {
	scheme, err := fec.NewReedSolomonScheme(2, 1)
	require.NoError(t, err)

	w, err := NewWindow(Config{
		Scheme:         scheme,
		DeadlineBlocks: 100, // effectively disabled
		MaxBlocks:      3,
		FrameTicks:     testFrameTicks,
	})
	require.NoError(t, err)

	// Block 0 stays incomplete while far newer blocks arrive; the span
	// bound must evict it regardless of the deadline.
	w.PushSource(0, 0, framePayload(0))
	emitted := w.PushSource(4, 4*testFrameTicks, framePayload(4))
	assert.Empty(t, emitted, "span of two blocks is within the bound")

	emitted = w.PushSource(6, 6*testFrameTicks, framePayload(6))
	require.NotEmpty(t, emitted, "span overflow must force out the oldest block")
	assert.Equal(t, uint32(0), emitted[0].Seq)
	assert.False(t, emitted[0].Gap)
	assert.Equal(t, uint32(1), emitted[1].Seq)
	assert.True(t, emitted[1].Gap)
}

func TestWindowFlush(t *testing.T) {
	w := newTestWindow(t, 2, 1, 2)

	w.PushSource(0, 0, framePayload(0))
	emitted := w.Flush()

	require.Len(t, emitted, 2)
	assert.False(t, emitted[0].Gap)
	assert.True(t, emitted[1].Gap)
	assert.Equal(t, 0, w.Pending())
}

func TestWindowFlushStale(t *testing.T) {
	w := newTestWindow(t, 2, 1, 2)

	w.PushSource(0, 0, framePayload(0))

	emitted := w.FlushStale(time.Hour)
	assert.Empty(t, emitted, "fresh blocks must not be flushed")

	emitted = w.FlushStale(0)
	require.Len(t, emitted, 2)
	assert.Equal(t, 0, w.Pending())
}

func TestWindowStartsMidStream(t *testing.T) {
	w := newTestWindow(t, 2, 1, 1)

	// First packet seen is from block 50; earlier blocks never existed
	// for this receiver.
	var emitted []Emitted
	emitted = append(emitted, w.PushSource(100, 0, framePayload(100))...)
	emitted = append(emitted, w.PushSource(101, testFrameTicks, framePayload(101))...)

	require.Len(t, emitted, 2)
	assert.Equal(t, uint32(100), emitted[0].Seq)

	// A straggler from block 49 is late, not a new window start.
	assert.Empty(t, w.PushSource(99, 0, framePayload(99)))
	assert.Equal(t, uint64(1), w.Stats().LatePackets)
}

func TestBlockStateString(t *testing.T) {
	assert.Equal(t, "open", BlockOpen.String())
	assert.Equal(t, "complete", BlockComplete.String())
	assert.Equal(t, "decoded", BlockDecoded.String())
	assert.Equal(t, "lost", BlockLost.String())
	assert.Equal(t, "retired", BlockRetired.String())
}
