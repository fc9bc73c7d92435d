package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketSerializeRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		packetType PacketType
		data       []byte
	}{
		{"Source packet", PacketAudioSource, []byte{1, 2, 3, 4}},
		{"Repair packet", PacketAudioRepair, []byte{0xff, 0x00, 0x7f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Packet{Type: tt.packetType, Data: tt.data}
			raw, err := p.Serialize()
			require.NoError(t, err)
			assert.Equal(t, byte(tt.packetType), raw[0])

			parsed, err := ParsePacket(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.packetType, parsed.Type)
			assert.Equal(t, tt.data, parsed.Data)
		})
	}
}

func TestPacketSerializeNilData(t *testing.T) {
	p := &Packet{Type: PacketAudioSource}
	_, err := p.Serialize()
	assert.Error(t, err)
}

func TestPacketSerializeTooLarge(t *testing.T) {
	p := &Packet{Type: PacketAudioSource, Data: make([]byte, MaxPacketSize)}
	_, err := p.Serialize()
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}

func TestParsePacketRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"Empty", nil},
		{"Tag only", []byte{0x01}},
		{"Unknown channel", []byte{0x7a, 1, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePacket(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestParsePacketCopiesPayload(t *testing.T) {
	raw := []byte{byte(PacketAudioSource), 10, 20}
	parsed, err := ParsePacket(raw)
	require.NoError(t, err)

	raw[1] = 99
	assert.Equal(t, byte(10), parsed.Data[0], "parsed packet must not alias the read buffer")
}
