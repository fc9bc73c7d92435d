package rtp

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"
)

// SourcePacket is a parsed source-channel packet.
type SourcePacket struct {
	Seq       uint32
	Timestamp uint32
	Payload   []byte
}

// RepairPacket is a parsed repair-channel packet.
type RepairPacket struct {
	BlockIndex uint32
	SlotIndex  uint8
	Timestamp  uint32
	Payload    []byte
}

// Depacketizer parses incoming RTP packets for one stream.
//
// The first SSRC seen is locked in; packets from other SSRCs are
// rejected so two senders cannot interleave into one session. Both
// channels of a stream share the sender's SSRC.
type Depacketizer struct {
	mu           sync.Mutex
	expectedSSRC uint32
	hasSSRC      bool
	malformed    uint64
}

// NewDepacketizer creates a depacketizer for one incoming stream.
func NewDepacketizer() *Depacketizer {
	return &Depacketizer{}
}

// ParseSource parses a source-channel RTP packet.
//
// Returns:
//   - *SourcePacket: Parsed packet
//   - error: Any parse or validation error; callers drop and count
func (d *Depacketizer) ParseSource(data []byte) (*SourcePacket, error) {
	packet, err := d.parse(data, PayloadTypeSource)
	if err != nil {
		return nil, err
	}

	if len(packet.Payload) <= sourceHeaderLen {
		d.countMalformed()
		return nil, fmt.Errorf("source payload too short: %d bytes", len(packet.Payload))
	}

	return &SourcePacket{
		Seq:       binary.BigEndian.Uint32(packet.Payload),
		Timestamp: packet.Timestamp,
		Payload:   packet.Payload[sourceHeaderLen:],
	}, nil
}

// ParseRepair parses a repair-channel RTP packet.
func (d *Depacketizer) ParseRepair(data []byte) (*RepairPacket, error) {
	packet, err := d.parse(data, PayloadTypeRepair)
	if err != nil {
		return nil, err
	}

	if len(packet.Payload) <= repairHeaderLen {
		d.countMalformed()
		return nil, fmt.Errorf("repair payload too short: %d bytes", len(packet.Payload))
	}

	return &RepairPacket{
		BlockIndex: binary.BigEndian.Uint32(packet.Payload),
		SlotIndex:  packet.Payload[4],
		Timestamp:  packet.Timestamp,
		Payload:    packet.Payload[repairHeaderLen:],
	}, nil
}

// Malformed returns the number of packets rejected by this depacketizer.
func (d *Depacketizer) Malformed() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.malformed
}

func (d *Depacketizer) parse(data []byte, wantPayloadType uint8) (*rtp.Packet, error) {
	if len(data) == 0 {
		d.countMalformed()
		return nil, fmt.Errorf("RTP data cannot be empty")
	}

	packet := &rtp.Packet{}
	if err := packet.Unmarshal(data); err != nil {
		d.countMalformed()
		return nil, fmt.Errorf("failed to unmarshal RTP packet: %w", err)
	}

	if packet.PayloadType != wantPayloadType {
		d.countMalformed()
		return nil, fmt.Errorf("unexpected payload type: want %d, got %d",
			wantPayloadType, packet.PayloadType)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.hasSSRC {
		d.expectedSSRC = packet.SSRC
		d.hasSSRC = true
		logrus.WithFields(logrus.Fields{
			"function": "Depacketizer.parse",
			"ssrc":     packet.SSRC,
		}).Info("Accepted new SSRC for stream")
	} else if packet.SSRC != d.expectedSSRC {
		d.malformed++
		return nil, fmt.Errorf("unexpected SSRC: expected %d, got %d",
			d.expectedSSRC, packet.SSRC)
	}

	return packet, nil
}

func (d *Depacketizer) countMalformed() {
	d.mu.Lock()
	d.malformed++
	d.mu.Unlock()
}
