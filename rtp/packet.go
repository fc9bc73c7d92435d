// Package rtp provides RTP framing for the audiowire transport.
//
// It uses the pion/rtp library for standards-compliant packet handling
// and adds a small payload header per channel: source packets carry the
// full 32-bit frame sequence number (the 16-bit RTP sequence field
// wraps too quickly for block derivation), repair packets carry their
// block index and repair-slot index.
//
// Design principles:
//   - Use pion/rtp for header marshaling instead of hand-rolled framing
//   - Keep the source channel zero-latency: one frame in, one packet out
//   - Validate channel and SSRC on receive, drop on mismatch
package rtp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiowire/audio"
	"github.com/opd-ai/audiowire/fec"
	"github.com/opd-ai/audiowire/frame"
	"github.com/opd-ai/audiowire/transport"
)

const (
	// PayloadTypeSource is the dynamic RTP payload type for source frames.
	PayloadTypeSource = 96
	// PayloadTypeRepair is the dynamic RTP payload type for repair shards.
	PayloadTypeRepair = 97

	sourceHeaderLen = 4 // 32-bit frame sequence number
	repairHeaderLen = 5 // 32-bit block index + 8-bit slot index

	// rtpHeaderLen is the fixed RTP header size without extensions.
	rtpHeaderLen = 12
)

// MaxFrameSamples is the largest frame size, in interleaved samples,
// whose source packet and same-sized repair shard both fit in one
// transport packet. The repair payload header is the larger of the two.
const MaxFrameSamples = (transport.MaxPacketSize - 1 - rtpHeaderLen - repairHeaderLen) / audio.BytesPerSample

// Packetizer serializes frames and repair shards into RTP packets and
// sends them on the corresponding logical channels.
type Packetizer struct {
	mu         sync.Mutex
	ssrc       uint32
	transport  transport.Transport
	sourceAddr net.Addr
	repairAddr net.Addr
	repairSeq  uint16
	sent       uint64
	repairSent uint64
}

// NewPacketizer creates an RTP packetizer for one outgoing stream.
//
// Parameters:
//   - tr: Transport for packet transmission
//   - sourceAddr: Remote address of the audio source port
//   - repairAddr: Remote address of the audio repair port, nil when FEC
//     is disabled
//
// Returns:
//   - *Packetizer: New packetizer instance
//   - error: Any error that occurred during setup
func NewPacketizer(tr transport.Transport, sourceAddr, repairAddr net.Addr) (*Packetizer, error) {
	if tr == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}
	if sourceAddr == nil {
		return nil, fmt.Errorf("source address cannot be nil")
	}

	// Random SSRC identifies this stream on both channels.
	ssrcBytes := make([]byte, 4)
	if _, err := rand.Read(ssrcBytes); err != nil {
		return nil, fmt.Errorf("failed to generate SSRC: %w", err)
	}
	ssrc := binary.BigEndian.Uint32(ssrcBytes)

	logrus.WithFields(logrus.Fields{
		"function":    "NewPacketizer",
		"ssrc":        ssrc,
		"source_addr": sourceAddr.String(),
		"has_repair":  repairAddr != nil,
	}).Info("Created RTP packetizer")

	return &Packetizer{
		ssrc:       ssrc,
		transport:  tr,
		sourceAddr: sourceAddr,
		repairAddr: repairAddr,
	}, nil
}

// SSRC returns the stream's synchronization source identifier.
func (p *Packetizer) SSRC() uint32 {
	return p.ssrc
}

// SendFrame serializes one source frame and sends it on the source
// channel.
func (p *Packetizer) SendFrame(f *frame.Frame) error {
	if f == nil || len(f.Samples) == 0 {
		return fmt.Errorf("frame cannot be empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	payload := make([]byte, sourceHeaderLen+len(f.Samples)*audio.BytesPerSample)
	binary.BigEndian.PutUint32(payload, f.Seq)
	copy(payload[sourceHeaderLen:], audio.MarshalPCM16(f.Samples))

	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    PayloadTypeSource,
			SequenceNumber: uint16(f.Seq),
			Timestamp:      f.Timestamp,
			SSRC:           p.ssrc,
		},
		Payload: payload,
	}

	data, err := packet.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal source RTP packet: %w", err)
	}

	err = p.transport.Send(&transport.Packet{
		Type: transport.PacketAudioSource,
		Data: data,
	}, p.sourceAddr)
	if err != nil {
		return fmt.Errorf("failed to send source packet: %w", err)
	}

	p.sent++
	return nil
}

// SendRepair serializes one repair shard and sends it on the repair
// channel.
func (p *Packetizer) SendRepair(r fec.Repair) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.repairAddr == nil {
		return fmt.Errorf("repair channel not connected")
	}

	payload := make([]byte, repairHeaderLen+len(r.Payload))
	binary.BigEndian.PutUint32(payload, r.BlockIndex)
	payload[4] = r.SlotIndex
	copy(payload[repairHeaderLen:], r.Payload)

	packet := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    PayloadTypeRepair,
			SequenceNumber: p.repairSeq,
			Timestamp:      r.Timestamp,
			SSRC:           p.ssrc,
		},
		Payload: payload,
	}
	p.repairSeq++

	data, err := packet.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal repair RTP packet: %w", err)
	}

	err = p.transport.Send(&transport.Packet{
		Type: transport.PacketAudioRepair,
		Data: data,
	}, p.repairAddr)
	if err != nil {
		return fmt.Errorf("failed to send repair packet: %w", err)
	}

	p.repairSent++
	return nil
}

// Sent returns the number of source and repair packets sent.
func (p *Packetizer) Sent() (source, repair uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent, p.repairSent
}
