package fec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
	"github.com/sirupsen/logrus"
)

// ReedSolomonScheme implements Scheme using a systematic Reed-Solomon
// code over GF(2^8).
type ReedSolomonScheme struct {
	enc         reedsolomon.Encoder
	sourceCount int
	repairCount int
}

// NewReedSolomonScheme creates a Reed-Solomon erasure code for blocks of
// sourceCount source shards and repairCount repair shards.
//
// Returns:
//   - *ReedSolomonScheme: New scheme instance
//   - error: ErrInvalidFECConfig if either count is zero or the sum
//     exceeds MaxBlockShards
func NewReedSolomonScheme(sourceCount, repairCount int) (*ReedSolomonScheme, error) {
	if err := validateShardCounts(sourceCount, repairCount); err != nil {
		return nil, err
	}

	enc, err := reedsolomon.New(sourceCount, repairCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFECConfig, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewReedSolomonScheme",
		"source_count": sourceCount,
		"repair_count": repairCount,
	}).Info("Created Reed-Solomon FEC scheme")

	return &ReedSolomonScheme{
		enc:         enc,
		sourceCount: sourceCount,
		repairCount: repairCount,
	}, nil
}

// Encode computes the repair shards for one complete block of source
// payloads.
func (s *ReedSolomonScheme) Encode(source [][]byte) ([][]byte, error) {
	if len(source) != s.sourceCount {
		return nil, fmt.Errorf("expected %d source shards, got %d", s.sourceCount, len(source))
	}

	shardLen := len(source[0])
	shards := make([][]byte, s.sourceCount+s.repairCount)
	for i, payload := range source {
		if len(payload) != shardLen {
			return nil, fmt.Errorf("source shard %d has length %d, expected %d",
				i, len(payload), shardLen)
		}
		shards[i] = payload
	}
	for i := 0; i < s.repairCount; i++ {
		shards[s.sourceCount+i] = make([]byte, shardLen)
	}

	if err := s.enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("unable to compute repair shards: %w", err)
	}

	return shards[s.sourceCount:], nil
}

// Reconstruct fills in missing source shards in place.
func (s *ReedSolomonScheme) Reconstruct(shards [][]byte) error {
	if len(shards) != s.sourceCount+s.repairCount {
		return fmt.Errorf("expected %d shards, got %d", s.sourceCount+s.repairCount, len(shards))
	}

	present := 0
	for _, shard := range shards {
		if shard != nil {
			present++
		}
	}
	if present < s.sourceCount {
		return fmt.Errorf("%w: %d of %d shards present", ErrInsufficientData, present, s.sourceCount)
	}

	if err := s.enc.ReconstructData(shards); err != nil {
		return fmt.Errorf("reed-solomon reconstruction failed: %w", err)
	}
	return nil
}

// SourceCount returns the number of source shards per block.
func (s *ReedSolomonScheme) SourceCount() int { return s.sourceCount }

// RepairCount returns the number of repair shards per block.
func (s *ReedSolomonScheme) RepairCount() int { return s.repairCount }
