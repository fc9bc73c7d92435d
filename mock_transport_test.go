package audiowire

import (
	"fmt"
	"net"
	"sync"

	"github.com/opd-ai/audiowire/transport"
)

// mockAddr is an in-memory network address.
type mockAddr string

func (a mockAddr) Network() string { return "mock" }
func (a mockAddr) String() string  { return string(a) }

// mockNetwork delivers packets between in-memory endpoints
// synchronously, so tests are deterministic. An optional drop function
// simulates network loss: it sees every packet in send order and
// returns true to discard it.
type mockNetwork struct {
	mu        sync.Mutex
	endpoints map[string]*mockEndpoint
	drop      func(pkt *transport.Packet, sendIndex uint64) bool
	sent      uint64
}

func newMockNetwork() *mockNetwork {
	return &mockNetwork{endpoints: make(map[string]*mockEndpoint)}
}

// setDrop installs the loss model. Must be called before traffic flows.
func (n *mockNetwork) setDrop(drop func(pkt *transport.Packet, sendIndex uint64) bool) {
	n.drop = drop
}

// endpoint creates a new endpoint reachable at the given name.
func (n *mockNetwork) endpoint(name string) *mockEndpoint {
	ep := &mockEndpoint{
		net:      n,
		addr:     mockAddr(name),
		handlers: make(map[transport.PacketType]transport.PacketHandler),
	}
	n.mu.Lock()
	n.endpoints[name] = ep
	n.mu.Unlock()
	return ep
}

func (n *mockNetwork) deliver(pkt *transport.Packet, from, to net.Addr) error {
	// Round-trip through the wire encoding so the full serialization
	// path is exercised.
	data, err := pkt.Serialize()
	if err != nil {
		return err
	}

	n.mu.Lock()
	index := n.sent
	n.sent++
	drop := n.drop
	dst := n.endpoints[to.String()]
	n.mu.Unlock()

	if dst == nil {
		return fmt.Errorf("no endpoint at %s", to.String())
	}
	if drop != nil && drop(pkt, index) {
		return nil
	}

	parsed, err := transport.ParsePacket(data)
	if err != nil {
		return err
	}
	return dst.dispatch(parsed, from)
}

// mockEndpoint implements transport.Transport over the mock network.
type mockEndpoint struct {
	net      *mockNetwork
	addr     mockAddr
	mu       sync.Mutex
	handlers map[transport.PacketType]transport.PacketHandler
	dropped  uint64
	closed   bool
}

func (e *mockEndpoint) Send(pkt *transport.Packet, addr net.Addr) error {
	return e.net.deliver(pkt, e.addr, addr)
}

func (e *mockEndpoint) RegisterHandler(packetType transport.PacketType, handler transport.PacketHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[packetType] = handler
}

func (e *mockEndpoint) dispatch(pkt *transport.Packet, from net.Addr) error {
	e.mu.Lock()
	handler := e.handlers[pkt.Type]
	if handler == nil || e.closed {
		e.dropped++
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()
	return handler(pkt, from)
}

func (e *mockEndpoint) LocalAddr() net.Addr { return e.addr }

func (e *mockEndpoint) Dropped() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

func (e *mockEndpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
