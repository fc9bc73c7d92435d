package transport

import "net"

// PacketHandler is a function that processes incoming packets.
//
// Handlers are invoked from the transport's receive loop in arrival
// order and must not block on network operations.
type PacketHandler func(packet *Packet, addr net.Addr) error

// Transport is the interface for sending and receiving audiowire packets.
//
// Implementations route incoming packets to the handler registered for
// their channel type. Packets with no registered handler are dropped
// and counted.
type Transport interface {
	// Send transmits a packet to the specified address.
	Send(packet *Packet, addr net.Addr) error

	// RegisterHandler registers a handler for a channel type.
	RegisterHandler(packetType PacketType, handler PacketHandler)

	// LocalAddr returns the local address the transport is bound to.
	LocalAddr() net.Addr

	// Dropped returns the number of packets discarded as malformed or
	// unroutable since the transport was created.
	Dropped() uint64

	// Close shuts down the transport and joins its receive loop.
	Close() error
}
