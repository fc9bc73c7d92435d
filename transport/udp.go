package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// UDPTransport implements UDP-based packet transport for audiowire.
// It satisfies the Transport interface.
type UDPTransport struct {
	conn       net.PacketConn
	listenAddr net.Addr
	handlers   map[PacketType]PacketHandler
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	dropped    atomic.Uint64
	closeOnce  sync.Once
	closeErr   error
}

// NewUDPTransport creates a new UDP transport bound to listenAddr.
//
// Pass a port of zero to bind an ephemeral port; the chosen address is
// available from LocalAddr. The receive loop starts immediately and
// runs until Close.
func NewUDPTransport(listenAddr string) (*UDPTransport, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	t := &UDPTransport{
		conn:       conn,
		listenAddr: conn.LocalAddr(),
		handlers:   make(map[PacketType]PacketHandler),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewUDPTransport",
		"listen_addr": t.listenAddr.String(),
	}).Info("UDP transport listening")

	go t.processPackets()

	return t, nil
}

// RegisterHandler registers a handler for a channel type.
func (t *UDPTransport) RegisterHandler(packetType PacketType, handler PacketHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handlers[packetType] = handler
}

// Send transmits a packet to the specified address.
func (t *UDPTransport) Send(packet *Packet, addr net.Addr) error {
	data, err := packet.Serialize()
	if err != nil {
		return err
	}

	_, err = t.conn.WriteTo(data, addr)
	return err
}

// LocalAddr returns the local address the transport is bound to.
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.listenAddr
}

// Dropped returns the number of packets discarded as malformed or
// unroutable.
func (t *UDPTransport) Dropped() uint64 {
	return t.dropped.Load()
}

// Close shuts down the transport and waits for the receive loop to exit,
// so no handler can run after Close returns.
func (t *UDPTransport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		t.closeErr = t.conn.Close()
		<-t.done

		logrus.WithFields(logrus.Fields{
			"function":    "UDPTransport.Close",
			"listen_addr": t.listenAddr.String(),
			"dropped":     t.dropped.Load(),
		}).Info("UDP transport closed")
	})
	return t.closeErr
}

// processPackets handles incoming packets until the transport is closed.
func (t *UDPTransport) processPackets() {
	defer close(t.done)

	buffer := make([]byte, 2048)

	for {
		select {
		case <-t.ctx.Done():
			return
		default:
			t.processIncomingPacket(buffer)
		}
	}
}

// processIncomingPacket reads and dispatches a single incoming packet.
func (t *UDPTransport) processIncomingPacket(buffer []byte) {
	// Read deadline keeps the loop responsive to Close.
	_ = t.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

	n, addr, err := t.conn.ReadFrom(buffer)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return
		}
		return
	}

	packet, err := ParsePacket(buffer[:n])
	if err != nil {
		t.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "UDPTransport.processIncomingPacket",
			"from":     addr.String(),
			"size":     n,
			"error":    err.Error(),
		}).Warn("Dropping malformed packet")
		return
	}

	t.mu.RLock()
	handler, exists := t.handlers[packet.Type]
	t.mu.RUnlock()

	if !exists {
		t.dropped.Add(1)
		return
	}

	// Dispatch in the receive loop to preserve arrival order; the
	// jitter window downstream handles network-level reordering.
	if err := handler(packet, addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "UDPTransport.processIncomingPacket",
			"packet_type": packet.Type,
			"error":       err.Error(),
		}).Warn("Packet handler failed")
	}
}
