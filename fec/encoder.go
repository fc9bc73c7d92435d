package fec

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Repair is one repair shard computed over a closed block.
//
// It is stateless once computed and never mutates. Timestamp carries the
// capture timestamp of the block's first frame so the receiver can place
// recovered audio on the stream timeline.
type Repair struct {
	BlockIndex uint32
	SlotIndex  uint8
	Timestamp  uint32
	Payload    []byte
}

// Encoder is the sender-side block builder.
//
// It consumes frame payloads in sequence order, emits nothing while a
// block is filling (source frames are transmitted immediately by the
// caller, keeping latency low), and returns the block's repair shards
// once exactly SourceCount payloads have accumulated.
type Encoder struct {
	mu      sync.Mutex
	scheme  Scheme
	pending [][]byte
	blockTS uint32
	nextSeq uint32
	started bool
}

// NewEncoder creates a sender-side FEC encoder over the given scheme.
func NewEncoder(scheme Scheme) (*Encoder, error) {
	if scheme == nil {
		return nil, fmt.Errorf("%w: scheme cannot be nil", ErrInvalidFECConfig)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewEncoder",
		"source_count": scheme.SourceCount(),
		"repair_count": scheme.RepairCount(),
	}).Info("Creating new FEC encoder")

	return &Encoder{
		scheme:  scheme,
		pending: make([][]byte, 0, scheme.SourceCount()),
	}, nil
}

// Push adds the next frame payload to the current block.
//
// Frames must arrive in strictly consecutive sequence order; the block
// index is derived deterministically as seq/SourceCount.
//
// Parameters:
//   - seq: Frame sequence number
//   - timestamp: Frame capture timestamp in sample ticks
//   - payload: Frame payload bytes (fixed size per stream)
//
// Returns:
//   - []Repair: Repair shards if this frame closed a block, nil otherwise
//   - error: Any error that occurred during encoding
func (e *Encoder) Push(seq, timestamp uint32, payload []byte) ([]Repair, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started && seq != e.nextSeq {
		return nil, fmt.Errorf("frame sequence gap on sender: expected %d, got %d", e.nextSeq, seq)
	}
	if e.started && len(e.pending) > 0 && len(payload) != len(e.pending[0]) {
		return nil, fmt.Errorf("frame payload length changed mid-block: %d != %d",
			len(payload), len(e.pending[0]))
	}

	if len(e.pending) == 0 {
		e.blockTS = timestamp
	}
	e.pending = append(e.pending, payload)
	e.nextSeq = seq + 1
	e.started = true

	if len(e.pending) < e.scheme.SourceCount() {
		return nil, nil
	}

	blockIndex := seq / uint32(e.scheme.SourceCount())
	shards, err := e.scheme.Encode(e.pending)
	e.pending = e.pending[:0]
	if err != nil {
		return nil, fmt.Errorf("failed to encode block %d: %w", blockIndex, err)
	}

	repairs := make([]Repair, len(shards))
	for i, shard := range shards {
		repairs[i] = Repair{
			BlockIndex: blockIndex,
			SlotIndex:  uint8(i),
			Timestamp:  e.blockTS,
			Payload:    shard,
		}
	}

	if len(repairs) > 0 {
		logrus.WithFields(logrus.Fields{
			"function":    "Encoder.Push",
			"block_index": blockIndex,
			"repairs":     len(repairs),
		}).Debug("Closed FEC block and computed repair shards")
	}

	return repairs, nil
}
