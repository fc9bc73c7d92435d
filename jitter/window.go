package jitter

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiowire/fec"
)

// Emitted is one in-order frame handed to the playback stage.
//
// Gap entries mark sequence positions whose audio was unrecoverable;
// Payload is nil for them. Timestamps are synthesized for gaps and
// recovered frames so the stream timeline stays continuous.
type Emitted struct {
	Seq       uint32
	Timestamp uint32
	Payload   []byte
	Gap       bool
}

// Config holds configuration for creating a reorder window.
type Config struct {
	// Scheme is the erasure code shared with the sender. Use
	// fec.NewNoneScheme() when FEC is disabled; every frame then forms
	// its own single-shard block.
	Scheme fec.Scheme

	// DeadlineBlocks is how many subsequent blocks may arrive before a
	// still-incomplete block is force-finalized. This bounds recovery
	// latency.
	DeadlineBlocks int

	// MaxBlocks bounds the window span in block indices; the oldest
	// block is force-finalized when an arrival would exceed it. The
	// span bound caps memory and applies regardless of DeadlineBlocks.
	MaxBlocks int

	// FrameTicks is the capture-timestamp advance per frame, used to
	// synthesize timestamps for gaps and recovered frames.
	FrameTicks uint32
}

// DefaultDeadlineBlocks and DefaultMaxBlocks are deployment tuning
// defaults; both are configuration, not algorithm constants.
const (
	DefaultDeadlineBlocks = 2
	DefaultMaxBlocks      = 8
)

// Stats is a snapshot of window counters.
type Stats struct {
	BlocksComplete uint64
	BlocksDecoded  uint64
	BlocksLost     uint64
	GapsEmitted    uint64
	LatePackets    uint64
	Duplicates     uint64
	InvalidShards  uint64
	DecodeFailures uint64
}

// Window is the receiver's reorder and loss-recovery buffer.
//
// Producers feed it parsed source and repair packets in arrival order;
// every push returns the frames (and gap markers) that became ready for
// playback, strictly in ascending sequence order.
type Window struct {
	mu       sync.Mutex
	cfg      Config
	scheme   fec.Scheme
	blocks   map[uint32]*blockAssembler
	started  bool
	nextEmit uint32
	highest  uint32
	lastTS   uint32
	hasTS    bool
	stats    Stats
}

// NewWindow creates a reorder window.
//
// Parameters:
//   - cfg: Window configuration; zero deadline/span fields take defaults
//
// Returns:
//   - *Window: New window instance
//   - error: Any configuration error
func NewWindow(cfg Config) (*Window, error) {
	if cfg.Scheme == nil {
		return nil, fmt.Errorf("%w: scheme cannot be nil", fec.ErrInvalidFECConfig)
	}
	if cfg.DeadlineBlocks <= 0 {
		cfg.DeadlineBlocks = DefaultDeadlineBlocks
	}
	if cfg.MaxBlocks <= 0 {
		cfg.MaxBlocks = DefaultMaxBlocks
	}

	logrus.WithFields(logrus.Fields{
		"function":        "NewWindow",
		"source_count":    cfg.Scheme.SourceCount(),
		"repair_count":    cfg.Scheme.RepairCount(),
		"deadline_blocks": cfg.DeadlineBlocks,
		"max_blocks":      cfg.MaxBlocks,
	}).Info("Creating new reorder window")

	return &Window{
		cfg:    cfg,
		scheme: cfg.Scheme,
		blocks: make(map[uint32]*blockAssembler),
	}, nil
}

// PushSource adds a received source frame and returns any frames that
// became ready for in-order playback.
func (w *Window) PushSource(seq, timestamp uint32, payload []byte) []Emitted {
	sourceCount := uint32(w.scheme.SourceCount())
	blockIndex := seq / sourceCount
	slot := int(seq % sourceCount)

	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.admit(blockIndex)
	if !ok {
		return nil
	}

	if !b.addSource(slot, timestamp, payload) {
		w.stats.Duplicates++
		return nil
	}

	w.tryDecode(b)
	return w.advance()
}

// PushRepair adds a received repair shard and returns any frames that
// became ready for in-order playback.
func (w *Window) PushRepair(blockIndex uint32, slot uint8, timestamp uint32, payload []byte) []Emitted {
	if int(slot) >= w.scheme.RepairCount() {
		w.mu.Lock()
		w.stats.InvalidShards++
		w.mu.Unlock()
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.admit(blockIndex)
	if !ok {
		return nil
	}

	if !b.addRepair(int(slot), timestamp, payload) {
		w.stats.Duplicates++
		return nil
	}

	w.tryDecode(b)
	return w.advance()
}

// Flush force-finalizes every pending block, recovering what it can and
// emitting gaps for the rest. Used at stream teardown.
func (w *Window) Flush() []Emitted {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []Emitted
	for len(w.blocks) > 0 {
		out = append(out, w.finalize(w.nextEmit)...)
		w.nextEmit++
	}
	return out
}

// FlushStale force-finalizes blocks that have been pending longer than
// maxAge. A stalled sender otherwise leaves its tail blocks waiting for
// a deadline that never arrives.
func (w *Window) FlushStale(maxAge time.Duration) []Emitted {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []Emitted
	for len(w.blocks) > 0 {
		oldest, ok := w.oldestStale(maxAge)
		if !ok {
			break
		}
		// Everything up to the stale block is forced too: it cannot be
		// emitted in order otherwise.
		for w.nextEmit <= oldest {
			out = append(out, w.finalize(w.nextEmit)...)
			w.nextEmit++
		}
		out = append(out, w.advance()...)
	}
	return out
}

// Pending returns the number of blocks currently held.
func (w *Window) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.blocks)
}

// Stats returns a snapshot of window counters.
func (w *Window) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// admit locates or creates the assembler for a block index, rejecting
// blocks already retired. Callers hold the lock.
func (w *Window) admit(blockIndex uint32) (*blockAssembler, bool) {
	if !w.started {
		w.started = true
		w.nextEmit = blockIndex
		w.highest = blockIndex
	}

	if blockIndex < w.nextEmit {
		w.stats.LatePackets++
		return nil, false
	}

	if blockIndex > w.highest {
		w.highest = blockIndex
	}

	b, exists := w.blocks[blockIndex]
	if !exists {
		b = newBlockAssembler(blockIndex, w.scheme.SourceCount(), w.scheme.RepairCount())
		w.blocks[blockIndex] = b
	}
	return b, true
}

// tryDecode runs the erasure decode as soon as a block has enough total
// shards. Callers hold the lock.
func (w *Window) tryDecode(b *blockAssembler) {
	if b.state != BlockOpen {
		return
	}

	if b.isComplete() {
		b.state = BlockComplete
		w.stats.BlocksComplete++
		return
	}

	if !b.isRecoverable() {
		return
	}

	if err := w.reconstruct(b); err != nil {
		w.stats.DecodeFailures++
		logrus.WithFields(logrus.Fields{
			"function":    "Window.tryDecode",
			"block_index": b.index,
			"error":       err.Error(),
		}).Warn("Block decode failed")
		return
	}

	b.state = BlockDecoded
	w.stats.BlocksDecoded++
}

// reconstruct fills the block's missing source shards in place.
func (w *Window) reconstruct(b *blockAssembler) error {
	shards := make([][]byte, b.sourceCount+b.repairCount)
	for slot, payload := range b.source {
		shards[slot] = payload
	}
	for slot, payload := range b.repair {
		shards[b.sourceCount+slot] = payload
	}

	if err := w.scheme.Reconstruct(shards); err != nil {
		return err
	}

	for slot := 0; slot < b.sourceCount; slot++ {
		if _, exists := b.source[slot]; !exists {
			b.source[slot] = shards[slot]
		}
	}
	return nil
}

// advance emits every resolved block at the head of the window, forcing
// blocks past their recovery deadline or the window span bound. Callers
// hold the lock.
func (w *Window) advance() []Emitted {
	var out []Emitted
	for w.started && w.nextEmit <= w.highest {
		b := w.blocks[w.nextEmit]
		resolved := b != nil && (b.state == BlockComplete || b.state == BlockDecoded)

		if !resolved {
			pending := w.highest - w.nextEmit
			if pending < uint32(w.cfg.DeadlineBlocks) && pending < uint32(w.cfg.MaxBlocks) {
				break
			}
		}

		out = append(out, w.finalize(w.nextEmit)...)
		w.nextEmit++
	}
	return out
}

// finalize emits one block's frames in slot order, substituting gap
// markers for anything still missing, and retires the block. Callers
// hold the lock.
func (w *Window) finalize(blockIndex uint32) []Emitted {
	b := w.blocks[blockIndex]
	sourceCount := w.scheme.SourceCount()
	frameTicks := w.cfg.FrameTicks

	var baseTS uint32
	if b != nil {
		if ts, ok := b.baseTimestamp(frameTicks); ok {
			baseTS = ts
		} else {
			baseTS = w.nextSynthesizedTS()
		}
	} else {
		baseTS = w.nextSynthesizedTS()
	}

	if b != nil && b.state == BlockOpen {
		// Deadline reached with the block still open: one last decode
		// attempt before declaring losses.
		w.tryDecode(b)
		if b.state == BlockOpen {
			b.state = BlockLost
			w.stats.BlocksLost++
			logrus.WithFields(logrus.Fields{
				"function":      "Window.finalize",
				"block_index":   blockIndex,
				"source_shards": len(b.source),
				"repair_shards": len(b.repair),
			}).Warn("Block unrecoverable at deadline")
		}
	}
	if b == nil {
		w.stats.BlocksLost++
	}

	out := make([]Emitted, 0, sourceCount)
	for slot := 0; slot < sourceCount; slot++ {
		seq := blockIndex*uint32(sourceCount) + uint32(slot)
		ts := baseTS + uint32(slot)*frameTicks

		var payload []byte
		if b != nil {
			payload = b.source[slot]
		}
		if payload == nil {
			w.stats.GapsEmitted++
			out = append(out, Emitted{Seq: seq, Timestamp: ts, Gap: true})
		} else {
			out = append(out, Emitted{Seq: seq, Timestamp: ts, Payload: payload})
		}
		w.lastTS = ts
		w.hasTS = true
	}

	if b != nil {
		b.state = BlockRetired
	}
	delete(w.blocks, blockIndex)
	return out
}

// nextSynthesizedTS continues the timeline when a block carried no
// timing information of its own.
func (w *Window) nextSynthesizedTS() uint32 {
	if !w.hasTS {
		return 0
	}
	return w.lastTS + w.cfg.FrameTicks
}

// oldestStale returns the oldest pending block index whose first shard
// arrived more than maxAge ago. Callers hold the lock.
func (w *Window) oldestStale(maxAge time.Duration) (uint32, bool) {
	cutoff := time.Now().Add(-maxAge)
	found := false
	var oldest uint32
	for index, b := range w.blocks {
		if b.arrived.After(cutoff) {
			continue
		}
		if !found || index < oldest {
			oldest = index
			found = true
		}
	}
	return oldest, found
}
