package audiowire

import (
	"fmt"
	"time"

	"github.com/opd-ai/audiowire/audio"
	"github.com/opd-ai/audiowire/fec"
	"github.com/opd-ai/audiowire/rtp"
)

// Port identifies one of a session's logical media ports.
type Port int

const (
	// PortAudioSource carries the media stream itself.
	PortAudioSource Port = iota
	// PortAudioRepair carries FEC repair traffic for the media stream.
	PortAudioRepair
)

// String returns a human-readable port name.
func (p Port) String() string {
	switch p {
	case PortAudioSource:
		return "audio_source"
	case PortAudioRepair:
		return "audio_repair"
	default:
		return "unknown"
	}
}

// Protocol identifies the wire protocol spoken on a port.
type Protocol int

const (
	// ProtoRTPSource is plain RTP media with no FEC layer.
	ProtoRTPSource Protocol = iota
	// ProtoRTPRSSource is RTP media protected by a Reed-Solomon FEC
	// stream on the companion repair port.
	ProtoRTPRSSource
	// ProtoRSRepair is the Reed-Solomon repair stream.
	ProtoRSRepair
)

// String returns a human-readable protocol name.
func (p Protocol) String() string {
	switch p {
	case ProtoRTPSource:
		return "rtp"
	case ProtoRTPRSSource:
		return "rtp+rs"
	case ProtoRSRepair:
		return "rs"
	default:
		return "unknown"
	}
}

// FECCode selects the loss-recovery scheme for a session.
type FECCode int

const (
	// FECNone disables loss recovery; lost frames become gaps.
	FECNone FECCode = iota
	// FECReedSolomon protects blocks of frames with systematic
	// Reed-Solomon parity over GF(2^8).
	FECReedSolomon
)

// String returns a human-readable FEC code name.
func (c FECCode) String() string {
	switch c {
	case FECNone:
		return "none"
	case FECReedSolomon:
		return "reed-solomon"
	default:
		return "unknown"
	}
}

// Encoding selects the sample encoding of the media payload.
type Encoding int

const (
	// EncodingPCM is interleaved signed 16-bit PCM.
	EncodingPCM Encoding = iota
	// EncodingOpus accepts Opus-encoded payloads on the receive side.
	// Only valid without FEC: repair shards require uniform payload
	// sizes, which compressed frames cannot guarantee.
	EncodingOpus
)

// String returns a human-readable encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingPCM:
		return "pcm_s16"
	case EncodingOpus:
		return "opus"
	default:
		return "unknown"
	}
}

// SenderConfig holds configuration for creating a sender session.
type SenderConfig struct {
	// SampleRate is the stream sample rate in Hz.
	SampleRate uint32

	// Channels is the number of interleaved channels.
	Channels int

	// FrameSize is the number of interleaved samples per frame.
	FrameSize int

	// FECCode selects the loss-recovery scheme.
	FECCode FECCode

	// SourceBlockSize is the number of media frames per FEC block.
	// Ignored when FECCode is FECNone.
	SourceBlockSize int

	// RepairBlockSize is the number of repair shards per FEC block.
	// Ignored when FECCode is FECNone.
	RepairBlockSize int
}

// DefaultSenderConfig returns a sender configuration for 44.1kHz stereo
// PCM with Reed-Solomon FEC.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		SampleRate:      44100,
		Channels:        2,
		FrameSize:       512,
		FECCode:         FECReedSolomon,
		SourceBlockSize: 20,
		RepairBlockSize: 10,
	}
}

// Validate checks the configuration for internal consistency.
func (c SenderConfig) Validate() error {
	if c.SampleRate == 0 {
		return fmt.Errorf("%w: sample rate cannot be zero", ErrInvalidConfig)
	}
	if c.Channels < 1 || c.Channels > 2 {
		return fmt.Errorf("%w: unsupported channel count %d", ErrInvalidConfig, c.Channels)
	}
	if c.FrameSize <= 0 || c.FrameSize%c.Channels != 0 {
		return fmt.Errorf("%w: frame size %d is not a positive multiple of %d channels",
			ErrInvalidConfig, c.FrameSize, c.Channels)
	}
	if c.FrameSize > rtp.MaxFrameSamples {
		return fmt.Errorf("%w: frame size %d exceeds the %d-sample packet capacity",
			ErrInvalidConfig, c.FrameSize, rtp.MaxFrameSamples)
	}
	switch c.FECCode {
	case FECNone:
	case FECReedSolomon:
		if c.SourceBlockSize < 1 || c.RepairBlockSize < 1 {
			return fmt.Errorf("%w: reed-solomon needs positive block sizes, got %d/%d",
				ErrInvalidConfig, c.SourceBlockSize, c.RepairBlockSize)
		}
		if c.SourceBlockSize+c.RepairBlockSize > fec.MaxBlockShards {
			return fmt.Errorf("%w: %d source + %d repair exceeds %d total shards",
				ErrInvalidConfig, c.SourceBlockSize, c.RepairBlockSize, fec.MaxBlockShards)
		}
	default:
		return fmt.Errorf("%w: unknown FEC code %d", ErrInvalidConfig, c.FECCode)
	}
	return nil
}

// ReceiverConfig holds configuration for creating a receiver session.
type ReceiverConfig struct {
	// SampleRate is the stream sample rate in Hz.
	SampleRate uint32

	// Channels is the number of interleaved channels.
	Channels int

	// FrameSize is the number of interleaved samples per frame. Must
	// match the sender's frame size for PCM streams.
	FrameSize int

	// Encoding is the sample encoding of incoming payloads.
	Encoding Encoding

	// FECCode selects the loss-recovery scheme; must match the sender.
	FECCode FECCode

	// SourceBlockSize and RepairBlockSize mirror the sender's FEC block
	// geometry. Ignored when FECCode is FECNone.
	SourceBlockSize int
	RepairBlockSize int

	// TargetLatency is the playback buffering the receiver steers
	// toward.
	TargetLatency time.Duration

	// MaxLatency bounds playback buffering; occupancy beyond it is
	// trimmed. Defaults to twice the target latency.
	MaxLatency time.Duration

	// DeadlineBlocks is the block recovery deadline, counted in
	// subsequently arriving blocks. Zero selects the default.
	DeadlineBlocks int

	// MaxBlocks bounds the reorder window span in blocks. Zero selects
	// the default.
	MaxBlocks int

	// ResamplerProfile selects drift-compensation quality.
	// ProfileDisabled turns drift compensation off.
	ResamplerProfile audio.Profile

	// AutomaticTiming makes ReadSamples pace itself from the receiver's
	// own clock.
	AutomaticTiming bool

	// StaleFlushInterval is how often partially received blocks older
	// than the target latency are force-finalized when traffic stalls.
	// Zero selects the default.
	StaleFlushInterval time.Duration
}

// DefaultReceiverConfig returns a receiver configuration matching
// DefaultSenderConfig, with 100ms target latency and drift
// compensation enabled.
func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		SampleRate:       44100,
		Channels:         2,
		FrameSize:        512,
		Encoding:         EncodingPCM,
		FECCode:          FECReedSolomon,
		SourceBlockSize:  20,
		RepairBlockSize:  10,
		TargetLatency:    100 * time.Millisecond,
		ResamplerProfile: audio.ProfileDefault,
		AutomaticTiming:  true,
	}
}

// Validate checks the configuration for internal consistency.
func (c ReceiverConfig) Validate() error {
	if c.SampleRate == 0 {
		return fmt.Errorf("%w: sample rate cannot be zero", ErrInvalidConfig)
	}
	if c.Channels < 1 || c.Channels > 2 {
		return fmt.Errorf("%w: unsupported channel count %d", ErrInvalidConfig, c.Channels)
	}
	if c.FrameSize <= 0 || c.FrameSize%c.Channels != 0 {
		return fmt.Errorf("%w: frame size %d is not a positive multiple of %d channels",
			ErrInvalidConfig, c.FrameSize, c.Channels)
	}
	if c.FrameSize > rtp.MaxFrameSamples {
		return fmt.Errorf("%w: frame size %d exceeds the %d-sample packet capacity",
			ErrInvalidConfig, c.FrameSize, rtp.MaxFrameSamples)
	}
	if c.TargetLatency <= 0 {
		return fmt.Errorf("%w: target latency must be positive", ErrInvalidConfig)
	}
	if c.MaxLatency != 0 && c.MaxLatency <= c.TargetLatency {
		return fmt.Errorf("%w: max latency %v must exceed target latency %v",
			ErrInvalidConfig, c.MaxLatency, c.TargetLatency)
	}
	switch c.Encoding {
	case EncodingPCM:
	case EncodingOpus:
		if c.FECCode != FECNone {
			return fmt.Errorf("%w: opus payloads cannot be FEC-protected", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown encoding %d", ErrInvalidConfig, c.Encoding)
	}
	switch c.FECCode {
	case FECNone:
	case FECReedSolomon:
		if c.SourceBlockSize < 1 || c.RepairBlockSize < 1 {
			return fmt.Errorf("%w: reed-solomon needs positive block sizes, got %d/%d",
				ErrInvalidConfig, c.SourceBlockSize, c.RepairBlockSize)
		}
		if c.SourceBlockSize+c.RepairBlockSize > fec.MaxBlockShards {
			return fmt.Errorf("%w: %d source + %d repair exceeds %d total shards",
				ErrInvalidConfig, c.SourceBlockSize, c.RepairBlockSize, fec.MaxBlockShards)
		}
	default:
		return fmt.Errorf("%w: unknown FEC code %d", ErrInvalidConfig, c.FECCode)
	}
	return nil
}

// frameTicks returns the per-frame timestamp advance in sample ticks.
func (c ReceiverConfig) frameTicks() uint32 {
	return uint32(c.FrameSize / c.Channels)
}

// latencyFrames converts a latency duration to whole stream frames.
func (c ReceiverConfig) latencyFrames(d time.Duration) int {
	ticksPerFrame := float64(c.FrameSize / c.Channels)
	frames := int(d.Seconds() * float64(c.SampleRate) / ticksPerFrame)
	if frames < 1 {
		frames = 1
	}
	return frames
}

// newScheme builds the FEC scheme described by the configuration.
func newScheme(code FECCode, sourceCount, repairCount int) (fec.Scheme, error) {
	if code == FECReedSolomon {
		return fec.NewReedSolomonScheme(sourceCount, repairCount)
	}
	return fec.NewNoneScheme(), nil
}

// protocolFor returns the protocol each port must speak for the given
// FEC code.
func protocolFor(code FECCode, port Port) (Protocol, bool) {
	switch {
	case code == FECNone && port == PortAudioSource:
		return ProtoRTPSource, true
	case code == FECReedSolomon && port == PortAudioSource:
		return ProtoRTPRSSource, true
	case code == FECReedSolomon && port == PortAudioRepair:
		return ProtoRSRepair, true
	default:
		return 0, false
	}
}
