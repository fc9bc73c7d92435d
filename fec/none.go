package fec

import "fmt"

// NoneScheme is the degenerate scheme used when FEC is disabled.
//
// Every frame forms its own single-shard block with no repair data, so
// the receiver's block machinery runs unchanged: a block is complete
// when its one source frame arrives and lost otherwise.
type NoneScheme struct{}

// NewNoneScheme creates a scheme that carries no redundancy.
func NewNoneScheme() *NoneScheme {
	return &NoneScheme{}
}

// Encode returns no repair shards.
func (s *NoneScheme) Encode(source [][]byte) ([][]byte, error) {
	if len(source) != 1 {
		return nil, fmt.Errorf("expected 1 source shard, got %d", len(source))
	}
	return nil, nil
}

// Reconstruct cannot recover anything without redundancy.
func (s *NoneScheme) Reconstruct(shards [][]byte) error {
	if len(shards) != 1 {
		return fmt.Errorf("expected 1 shard, got %d", len(shards))
	}
	if shards[0] == nil {
		return fmt.Errorf("%w: source frame missing and no repair data", ErrInsufficientData)
	}
	return nil
}

// SourceCount returns the number of source shards per block.
func (s *NoneScheme) SourceCount() int { return 1 }

// RepairCount returns the number of repair shards per block.
func (s *NoneScheme) RepairCount() int { return 0 }
