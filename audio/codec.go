package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// maxDecodedSamples bounds one decoded Opus frame: 120ms at 48kHz stereo.
const maxDecodedSamples = 5760 * 2

// Decoder converts wire payloads into interleaved PCM samples.
//
// The transport engine itself is codec-agnostic; decoders sit at the
// receive boundary so applications always read plain PCM.
type Decoder interface {
	// Decode converts one frame payload to interleaved int16 samples.
	Decode(payload []byte) ([]int16, error)
	// Close releases decoder resources.
	Close() error
}

// PCMDecoder interprets payloads as big-endian signed 16-bit PCM.
// This is the native audiowire wire encoding.
type PCMDecoder struct{}

// NewPCMDecoder creates a pass-through PCM decoder.
func NewPCMDecoder() *PCMDecoder {
	return &PCMDecoder{}
}

// Decode converts one frame payload to interleaved int16 samples.
func (d *PCMDecoder) Decode(payload []byte) ([]int16, error) {
	return UnmarshalPCM16(payload)
}

// Close releases decoder resources.
func (d *PCMDecoder) Close() error { return nil }

// OpusDecoder decodes Opus frame payloads to PCM using the pure Go
// pion/opus implementation.
type OpusDecoder struct {
	decoder opus.Decoder
	out     []byte
}

// NewOpusDecoder creates an Opus receive decoder.
func NewOpusDecoder() *OpusDecoder {
	logrus.WithFields(logrus.Fields{
		"function": "NewOpusDecoder",
	}).Info("Creating new Opus decoder")

	return &OpusDecoder{
		decoder: opus.NewDecoder(),
		out:     make([]byte, maxDecodedSamples*BytesPerSample),
	}
}

// Decode converts one Opus frame payload to interleaved int16 samples.
//
// The decoded length is derived from the packet's TOC byte and the
// bandwidth's decode rate, so the result covers exactly the packet's
// audio and never includes scratch-buffer residue.
func (d *OpusDecoder) Decode(payload []byte) ([]int16, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty opus payload")
	}

	bandwidth, isStereo, err := d.decoder.Decode(payload, d.out)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	perChannel, err := opusPacketSamples(payload, uint32(bandwidth.SampleRate()))
	if err != nil {
		return nil, err
	}
	channels := 1
	if isStereo {
		channels = 2
	}
	sampleCount := perChannel * channels
	if sampleCount*BytesPerSample > len(d.out) {
		return nil, fmt.Errorf("opus packet duration exceeds decode buffer: %d samples", sampleCount)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "OpusDecoder.Decode",
		"bandwidth": bandwidth.String(),
		"is_stereo": isStereo,
		"samples":   sampleCount,
	}).Debug("Decoded Opus frame")

	// pion/opus writes little-endian int16 PCM into the output buffer.
	samples := make([]int16, sampleCount)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(d.out[i*BytesPerSample:]))
	}
	return samples, nil
}

// opusFrameDurationUs maps the TOC config number (RFC 6716 section 3.1,
// Table 2) to the frame duration in microseconds.
var opusFrameDurationUs = [32]uint32{
	// SILK NB, MB, WB: 10, 20, 40, 60 ms each
	10000, 20000, 40000, 60000,
	10000, 20000, 40000, 60000,
	10000, 20000, 40000, 60000,
	// Hybrid SWB, FB: 10, 20 ms each
	10000, 20000,
	10000, 20000,
	// CELT NB, WB, SWB, FB: 2.5, 5, 10, 20 ms each
	2500, 5000, 10000, 20000,
	2500, 5000, 10000, 20000,
	2500, 5000, 10000, 20000,
	2500, 5000, 10000, 20000,
}

// opusPacketSamples returns the per-channel sample count of one Opus
// packet at the given decode rate, from the TOC byte's config and
// frame-count code.
func opusPacketSamples(payload []byte, sampleRate uint32) (int, error) {
	if len(payload) == 0 {
		return 0, fmt.Errorf("empty opus payload")
	}

	toc := payload[0]
	config := toc >> 3

	frames := 0
	switch toc & 0x03 {
	case 0:
		frames = 1
	case 1, 2:
		frames = 2
	case 3:
		if len(payload) < 2 {
			return 0, fmt.Errorf("opus code-3 packet missing frame count byte")
		}
		frames = int(payload[1] & 0x3F)
		if frames == 0 {
			return 0, fmt.Errorf("opus code-3 packet with zero frames")
		}
	}

	perFrame := int(uint64(sampleRate) * uint64(opusFrameDurationUs[config]) / 1_000_000)
	return frames * perFrame, nil
}

// Close releases decoder resources.
func (d *OpusDecoder) Close() error { return nil }
