package rtp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/audiowire/audio"
	"github.com/opd-ai/audiowire/fec"
	"github.com/opd-ai/audiowire/frame"
	"github.com/opd-ai/audiowire/transport"
)

// MockTransport records sent packets for inspection.
type MockTransport struct {
	sentPackets []SentPacket
	localAddr   net.Addr
}

type SentPacket struct {
	Packet *transport.Packet
	Addr   net.Addr
}

func NewMockTransport() *MockTransport {
	addr, _ := net.ResolveUDPAddr("udp", "127.0.0.1:12345")
	return &MockTransport{localAddr: addr}
}

func (mt *MockTransport) Send(packet *transport.Packet, addr net.Addr) error {
	mt.sentPackets = append(mt.sentPackets, SentPacket{Packet: packet, Addr: addr})
	return nil
}

func (mt *MockTransport) RegisterHandler(packetType transport.PacketType, handler transport.PacketHandler) {
}

func (mt *MockTransport) LocalAddr() net.Addr { return mt.localAddr }
func (mt *MockTransport) Dropped() uint64     { return 0 }
func (mt *MockTransport) Close() error        { return nil }

func testAddrs(t *testing.T) (net.Addr, net.Addr) {
	t.Helper()
	sourceAddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:40001")
	require.NoError(t, err)
	repairAddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:40002")
	require.NoError(t, err)
	return sourceAddr, repairAddr
}

func TestNewPacketizerValidation(t *testing.T) {
	sourceAddr, _ := testAddrs(t)

	_, err := NewPacketizer(nil, sourceAddr, nil)
	assert.Error(t, err)

	_, err = NewPacketizer(NewMockTransport(), nil, nil)
	assert.Error(t, err)

	p, err := NewPacketizer(NewMockTransport(), sourceAddr, nil)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestSourceFrameRoundTrip(t *testing.T) {
	mt := NewMockTransport()
	sourceAddr, repairAddr := testAddrs(t)

	p, err := NewPacketizer(mt, sourceAddr, repairAddr)
	require.NoError(t, err)

	f := &frame.Frame{
		Seq:       70000, // beyond 16-bit range on purpose
		Timestamp: 123456,
		Channels:  2,
		Samples:   []int16{1, -2, 3, -4},
	}
	require.NoError(t, p.SendFrame(f))

	require.Len(t, mt.sentPackets, 1)
	sent := mt.sentPackets[0]
	assert.Equal(t, transport.PacketAudioSource, sent.Packet.Type)
	assert.Equal(t, sourceAddr, sent.Addr)

	d := NewDepacketizer()
	parsed, err := d.ParseSource(sent.Packet.Data)
	require.NoError(t, err)
	assert.Equal(t, uint32(70000), parsed.Seq)
	assert.Equal(t, uint32(123456), parsed.Timestamp)

	samples, err := audio.UnmarshalPCM16(parsed.Payload)
	require.NoError(t, err)
	assert.Equal(t, f.Samples, samples)
}

func TestRepairRoundTrip(t *testing.T) {
	mt := NewMockTransport()
	sourceAddr, repairAddr := testAddrs(t)

	p, err := NewPacketizer(mt, sourceAddr, repairAddr)
	require.NoError(t, err)

	r := fec.Repair{
		BlockIndex: 42,
		SlotIndex:  3,
		Timestamp:  999,
		Payload:    []byte{9, 8, 7, 6},
	}
	require.NoError(t, p.SendRepair(r))

	require.Len(t, mt.sentPackets, 1)
	sent := mt.sentPackets[0]
	assert.Equal(t, transport.PacketAudioRepair, sent.Packet.Type)
	assert.Equal(t, repairAddr, sent.Addr)

	d := NewDepacketizer()
	parsed, err := d.ParseRepair(sent.Packet.Data)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), parsed.BlockIndex)
	assert.Equal(t, uint8(3), parsed.SlotIndex)
	assert.Equal(t, uint32(999), parsed.Timestamp)
	assert.Equal(t, []byte{9, 8, 7, 6}, parsed.Payload)
}

func TestSendRepairWithoutRepairChannel(t *testing.T) {
	sourceAddr, _ := testAddrs(t)
	p, err := NewPacketizer(NewMockTransport(), sourceAddr, nil)
	require.NoError(t, err)

	err = p.SendRepair(fec.Repair{Payload: []byte{1}})
	assert.Error(t, err)
}

func TestDepacketizerRejectsWrongChannel(t *testing.T) {
	mt := NewMockTransport()
	sourceAddr, repairAddr := testAddrs(t)
	p, err := NewPacketizer(mt, sourceAddr, repairAddr)
	require.NoError(t, err)

	f := &frame.Frame{Seq: 0, Channels: 1, Samples: []int16{1, 2}}
	require.NoError(t, p.SendFrame(f))

	d := NewDepacketizer()
	_, err = d.ParseRepair(mt.sentPackets[0].Packet.Data)
	assert.Error(t, err)
	assert.Equal(t, uint64(1), d.Malformed())
}

func TestDepacketizerLocksSSRC(t *testing.T) {
	sourceAddr, repairAddr := testAddrs(t)

	mt1 := NewMockTransport()
	p1, err := NewPacketizer(mt1, sourceAddr, repairAddr)
	require.NoError(t, err)

	mt2 := NewMockTransport()
	p2, err := NewPacketizer(mt2, sourceAddr, repairAddr)
	require.NoError(t, err)
	require.NotEqual(t, p1.SSRC(), p2.SSRC(), "distinct streams must get distinct SSRCs")

	f := &frame.Frame{Seq: 0, Channels: 1, Samples: []int16{1, 2}}
	require.NoError(t, p1.SendFrame(f))
	require.NoError(t, p2.SendFrame(f))

	d := NewDepacketizer()
	_, err = d.ParseSource(mt1.sentPackets[0].Packet.Data)
	require.NoError(t, err)

	_, err = d.ParseSource(mt2.sentPackets[0].Packet.Data)
	assert.Error(t, err, "second SSRC must be rejected")
}

func TestDepacketizerRejectsGarbage(t *testing.T) {
	d := NewDepacketizer()

	_, err := d.ParseSource(nil)
	assert.Error(t, err)

	_, err = d.ParseSource([]byte{0x00, 0x01})
	assert.Error(t, err)

	assert.Equal(t, uint64(2), d.Malformed())
}
