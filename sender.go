package audiowire

import (
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiowire/audio"
	"github.com/opd-ai/audiowire/fec"
	"github.com/opd-ai/audiowire/frame"
	"github.com/opd-ai/audiowire/rtp"
	"github.com/opd-ai/audiowire/transport"
)

// SenderStats is a snapshot of sender counters.
type SenderStats struct {
	SamplesWritten uint64
	FramesSent     uint64
	RepairsSent    uint64
}

// Sender is an outbound media session.
//
// A sender is bound to a local transport, connected to the receiver's
// source port (and, with FEC, its repair port), then fed interleaved
// samples via WriteSamples. Frames go out as soon as a full frame of
// samples is available; repair shards go out at each block close.
type Sender struct {
	mu         sync.Mutex
	ctx        *Context
	streamID   string
	cfg        SenderConfig
	tr         transport.Transport
	ownsTr     bool
	sourceAddr net.Addr
	repairAddr net.Addr
	slicer     *frame.Slicer
	encoder    *fec.Encoder
	packetizer *rtp.Packetizer
	samples    uint64
	closed     bool
}

// NewSender creates a sender session attached to ctx.
//
// Parameters:
//   - ctx: Runtime context the session belongs to
//   - cfg: Sender configuration
//
// Returns:
//   - *Sender: New sender, not yet bound or connected
//   - error: Configuration or context errors
func NewSender(ctx *Context, cfg SenderConfig) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	streamID, err := ctx.acquire()
	if err != nil {
		return nil, fmt.Errorf("attaching sender to context: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewSender",
		"stream_id":   streamID,
		"sample_rate": cfg.SampleRate,
		"channels":    cfg.Channels,
		"frame_size":  cfg.FrameSize,
		"fec_code":    cfg.FECCode.String(),
	}).Info("Creating new sender session")

	return &Sender{
		ctx:      ctx,
		streamID: streamID,
		cfg:      cfg,
	}, nil
}

// Bind attaches the sender to a local UDP endpoint.
//
// Parameters:
//   - listenAddr: Local address, e.g. "0.0.0.0:0"
func (s *Sender) Bind(listenAddr string) error {
	tr, err := transport.NewUDPTransport(listenAddr)
	if err != nil {
		return fmt.Errorf("binding sender transport: %w", err)
	}
	return s.bindTransport(tr, true)
}

// BindTransport attaches the sender to an existing transport. The
// caller retains ownership; Close will not close it.
func (s *Sender) BindTransport(tr transport.Transport) error {
	return s.bindTransport(tr, false)
}

func (s *Sender) bindTransport(tr transport.Transport, owned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.tr != nil {
		return fmt.Errorf("%w: sender is already bound", ErrInvalidConfig)
	}
	s.tr = tr
	s.ownsTr = owned
	return nil
}

// Connect associates one of the receiver's ports with this sender.
//
// The protocol must match the session's FEC configuration: plain RTP
// for FEC-less streams, the RTP+RS pair for Reed-Solomon. The sender
// becomes writable once every port the FEC code requires is connected.
//
// Parameters:
//   - port: Receiver port being connected
//   - proto: Wire protocol the port speaks
//   - addr: Receiver's address for that port
//
// Returns:
//   - error: ErrProtocolMismatch on a protocol/FEC mismatch
func (s *Sender) Connect(port Port, proto Protocol, addr net.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.tr == nil {
		return fmt.Errorf("%w: sender must be bound before connecting", ErrNotConnected)
	}
	// The packetizer captures its addresses at start; a session cannot
	// be repointed once frames may be in flight.
	if s.packetizer != nil {
		return fmt.Errorf("%w: sender is already connected", ErrInvalidConfig)
	}

	want, ok := protocolFor(s.cfg.FECCode, port)
	if !ok || want != proto {
		return fmt.Errorf("%w: port %s with protocol %s under FEC %s",
			ErrProtocolMismatch, port.String(), proto.String(), s.cfg.FECCode.String())
	}

	switch port {
	case PortAudioSource:
		s.sourceAddr = addr
	case PortAudioRepair:
		s.repairAddr = addr
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Sender.Connect",
		"stream_id": s.streamID,
		"port":      port.String(),
		"protocol":  proto.String(),
		"addr":      addr.String(),
	}).Info("Connected sender port")

	if s.connectedLocked() {
		return s.startLocked()
	}
	return nil
}

func (s *Sender) connectedLocked() bool {
	if s.sourceAddr == nil {
		return false
	}
	return s.cfg.FECCode == FECNone || s.repairAddr != nil
}

// startLocked builds the send pipeline once all ports are connected.
func (s *Sender) startLocked() error {
	if s.packetizer != nil {
		return nil
	}

	slicer, err := frame.NewSlicer(frame.SlicerConfig{
		FrameSize: s.cfg.FrameSize,
		Channels:  s.cfg.Channels,
	})
	if err != nil {
		return fmt.Errorf("creating frame slicer: %w", err)
	}

	scheme, err := newScheme(s.cfg.FECCode, s.cfg.SourceBlockSize, s.cfg.RepairBlockSize)
	if err != nil {
		return fmt.Errorf("creating FEC scheme: %w", err)
	}
	encoder, err := fec.NewEncoder(scheme)
	if err != nil {
		return fmt.Errorf("creating FEC encoder: %w", err)
	}

	packetizer, err := rtp.NewPacketizer(s.tr, s.sourceAddr, s.repairAddr)
	if err != nil {
		return fmt.Errorf("creating packetizer: %w", err)
	}

	s.slicer = slicer
	s.encoder = encoder
	s.packetizer = packetizer
	return nil
}

// WriteSamples queues interleaved samples for transmission.
//
// Complete frames are sent immediately; a short remainder is buffered
// for the next write. With FEC enabled, closing a block also sends its
// repair shards.
//
// Returns:
//   - error: ErrNotConnected before the session is fully connected,
//     otherwise transport errors
func (s *Sender) WriteSamples(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.packetizer == nil {
		return ErrNotConnected
	}

	frames, err := s.slicer.Write(samples)
	if err != nil {
		return fmt.Errorf("slicing samples: %w", err)
	}
	s.samples += uint64(len(samples))

	for _, f := range frames {
		if err := s.packetizer.SendFrame(f); err != nil {
			return fmt.Errorf("sending frame %d: %w", f.Seq, err)
		}

		repairs, err := s.encoder.Push(f.Seq, f.Timestamp, audio.MarshalPCM16(f.Samples))
		if err != nil {
			return fmt.Errorf("encoding block for frame %d: %w", f.Seq, err)
		}
		for _, r := range repairs {
			if err := s.packetizer.SendRepair(r); err != nil {
				return fmt.Errorf("sending repair %d/%d: %w", r.BlockIndex, r.SlotIndex, err)
			}
		}
	}
	return nil
}

// LocalAddr returns the sender's bound address, or nil before Bind.
func (s *Sender) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tr == nil {
		return nil
	}
	return s.tr.LocalAddr()
}

// StreamID returns the session's unique stream identifier.
func (s *Sender) StreamID() string {
	return s.streamID
}

// Stats returns a snapshot of sender counters.
func (s *Sender) Stats() SenderStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := SenderStats{SamplesWritten: s.samples}
	if s.packetizer != nil {
		stats.FramesSent, stats.RepairsSent = s.packetizer.Sent()
	}
	return stats
}

// Close shuts the sender down and detaches it from its context.
// Buffered partial-frame samples are discarded.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.closed = true

	var err error
	if s.tr != nil && s.ownsTr {
		err = s.tr.Close()
	}
	s.ctx.release()

	logrus.WithFields(logrus.Fields{
		"function":  "Sender.Close",
		"stream_id": s.streamID,
	}).Info("Closed sender session")

	return err
}
