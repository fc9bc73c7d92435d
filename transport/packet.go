// Package transport implements the network transport layer for audiowire.
//
// It carries audio on two independent logical channels: the source
// channel with original frame data and the repair channel with FEC
// redundancy. Each UDP datagram is tagged with a one-byte channel type
// so the receive side can route it; anything malformed or unroutable is
// dropped and counted, never surfaced as a fatal error.
//
// Example:
//
//	tr, err := transport.NewUDPTransport("127.0.0.1:0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	packet := &transport.Packet{
//	    Type: transport.PacketAudioSource,
//	    Data: []byte{...},
//	}
//
//	err = tr.Send(packet, remoteAddr)
package transport

import (
	"errors"
	"fmt"
)

// PacketType identifies the logical channel of an audiowire packet.
type PacketType byte

const (
	// PacketAudioSource carries an RTP packet with original frame data.
	PacketAudioSource PacketType = 0x01

	// PacketAudioRepair carries an RTP packet with FEC repair data.
	PacketAudioRepair PacketType = 0x02
)

// MaxPacketSize is the largest serialized packet the transport accepts.
// It keeps datagrams below the common 1500-byte Ethernet MTU.
const MaxPacketSize = 1472

// ErrPacketTooLarge indicates a serialized packet beyond MaxPacketSize.
var ErrPacketTooLarge = errors.New("packet exceeds maximum size")

// Packet represents one audiowire transport packet.
type Packet struct {
	Type PacketType
	Data []byte
}

// Serialize converts a packet to a byte slice for transmission.
//
// Format: [channel type (1 byte)][data (variable length)]
func (p *Packet) Serialize() ([]byte, error) {
	if p.Data == nil {
		return nil, errors.New("packet data is nil")
	}
	if 1+len(p.Data) > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, 1+len(p.Data))
	}

	result := make([]byte, 1+len(p.Data))
	result[0] = byte(p.Type)
	copy(result[1:], p.Data)
	return result, nil
}

// ParsePacket converts a received byte slice to a structured packet.
func ParsePacket(data []byte) (*Packet, error) {
	if len(data) < 2 {
		return nil, errors.New("packet too short")
	}

	packetType := PacketType(data[0])
	switch packetType {
	case PacketAudioSource, PacketAudioRepair:
	default:
		return nil, fmt.Errorf("unknown channel type: 0x%02x", data[0])
	}

	payload := make([]byte, len(data)-1)
	copy(payload, data[1:])
	return &Packet{Type: packetType, Data: payload}, nil
}
