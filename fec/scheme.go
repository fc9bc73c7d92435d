// Package fec implements forward-error-correction coding for audio blocks.
//
// A block is a fixed group of source frame payloads plus the repair
// shards derived from them. The coding is systematic: source payloads
// travel unmodified, and any SourceCount of the SourceCount+RepairCount
// total shards suffice to reconstruct the rest.
//
// The Reed-Solomon scheme uses the klauspost/reedsolomon erasure code.
// All shards in a block must have the same length, which holds naturally
// here because source payloads are fixed-size PCM frames.
package fec

import (
	"errors"
	"fmt"
)

// MaxBlockShards is the largest supported SourceCount+RepairCount sum,
// bounded by the GF(2^8) Reed-Solomon field.
const MaxBlockShards = 256

// ErrInvalidFECConfig indicates zero shard counts or a block size beyond
// the erasure code's limit.
var ErrInvalidFECConfig = errors.New("invalid FEC configuration")

// ErrInsufficientData indicates a decode attempt with fewer than
// SourceCount total shards present.
var ErrInsufficientData = errors.New("insufficient FEC data to reconstruct block")

// Scheme is an erasure code over one block of equally-sized shards.
//
// Implementations must be safe for use from a single goroutine per
// block; callers serialize access per stream.
type Scheme interface {
	// Encode computes RepairCount repair shards from exactly SourceCount
	// source shards of equal length.
	Encode(source [][]byte) ([][]byte, error)

	// Reconstruct fills in missing (nil) source shards in place. The
	// slice holds SourceCount source shards followed by RepairCount
	// repair shards; nil entries mark losses. It fails with
	// ErrInsufficientData when fewer than SourceCount shards are present.
	Reconstruct(shards [][]byte) error

	// SourceCount returns the number of source shards per block.
	SourceCount() int

	// RepairCount returns the number of repair shards per block.
	RepairCount() int
}

func validateShardCounts(sourceCount, repairCount int) error {
	if sourceCount < 1 {
		return fmt.Errorf("%w: source count must be at least 1, got %d",
			ErrInvalidFECConfig, sourceCount)
	}
	if repairCount < 1 {
		return fmt.Errorf("%w: repair count must be at least 1, got %d",
			ErrInvalidFECConfig, repairCount)
	}
	if sourceCount+repairCount > MaxBlockShards {
		return fmt.Errorf("%w: %d total shards exceeds maximum of %d",
			ErrInvalidFECConfig, sourceCount+repairCount, MaxBlockShards)
	}
	return nil
}
