// Package jitter implements the receiver-side reorder and loss-recovery
// buffer.
//
// Incoming source and repair packets are grouped into blocks. Each block
// moves through a small state machine:
//
//	Open     accepting source/repair shards
//	Complete all source frames arrived, no decode needed
//	Decoded  missing source frames reconstructed from repair data
//	Lost     unrecoverable at its deadline; gaps reported downstream
//	Retired  entries freed
//
// Frames leave the window strictly in ascending sequence order. A lost
// position is reported as an explicit gap marker rather than skipped, so
// downstream timing stays sample-accurate.
package jitter

import (
	"time"
)

// BlockState tracks a block through recovery.
type BlockState int

const (
	// BlockOpen is accepting source and repair shards.
	BlockOpen BlockState = iota
	// BlockComplete has every source frame without decoding.
	BlockComplete
	// BlockDecoded reconstructed its missing source frames from FEC data.
	BlockDecoded
	// BlockLost was unrecoverable when its deadline elapsed.
	BlockLost
	// BlockRetired has been emitted and freed.
	BlockRetired
)

// String returns a human-readable state name.
func (s BlockState) String() string {
	switch s {
	case BlockOpen:
		return "open"
	case BlockComplete:
		return "complete"
	case BlockDecoded:
		return "decoded"
	case BlockLost:
		return "lost"
	case BlockRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// blockAssembler accumulates the shards of one block.
type blockAssembler struct {
	index       uint32
	sourceCount int
	repairCount int
	source      map[int][]byte
	repair      map[int][]byte
	tsBySlot    map[int]uint32
	repairTS    uint32
	hasRepairTS bool
	state       BlockState
	arrived     time.Time
}

func newBlockAssembler(index uint32, sourceCount, repairCount int) *blockAssembler {
	return &blockAssembler{
		index:       index,
		sourceCount: sourceCount,
		repairCount: repairCount,
		source:      make(map[int][]byte, sourceCount),
		repair:      make(map[int][]byte, repairCount),
		tsBySlot:    make(map[int]uint32, sourceCount),
		state:       BlockOpen,
		arrived:     time.Now(),
	}
}

// addSource stores one source shard. Returns false on duplicate.
func (b *blockAssembler) addSource(slot int, ts uint32, payload []byte) bool {
	if _, exists := b.source[slot]; exists {
		return false
	}
	b.source[slot] = payload
	b.tsBySlot[slot] = ts
	return true
}

// addRepair stores one repair shard. Returns false on duplicate.
func (b *blockAssembler) addRepair(slot int, ts uint32, payload []byte) bool {
	if _, exists := b.repair[slot]; exists {
		return false
	}
	b.repair[slot] = payload
	if !b.hasRepairTS {
		b.repairTS = ts
		b.hasRepairTS = true
	}
	return true
}

// isComplete reports whether every source shard is present.
func (b *blockAssembler) isComplete() bool {
	return len(b.source) == b.sourceCount
}

// isRecoverable reports whether enough total shards are present to
// reconstruct the missing source shards.
func (b *blockAssembler) isRecoverable() bool {
	return len(b.source)+len(b.repair) >= b.sourceCount
}

// baseTimestamp derives the capture timestamp of the block's first frame.
// It prefers a received source frame, falls back to the repair channel's
// block timestamp, and reports ok=false when the block carried no
// timing information at all.
func (b *blockAssembler) baseTimestamp(frameTicks uint32) (uint32, bool) {
	for slot, ts := range b.tsBySlot {
		return ts - uint32(slot)*frameTicks, true
	}
	if b.hasRepairTS {
		return b.repairTS, true
	}
	return 0, false
}
