package audiowire

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opd-ai/audiowire/audio"
	"github.com/opd-ai/audiowire/jitter"
	"github.com/opd-ai/audiowire/playback"
	"github.com/opd-ai/audiowire/rtp"
	"github.com/opd-ai/audiowire/transport"
)

const defaultStaleFlushInterval = 50 * time.Millisecond

// ReceiverStats is a snapshot of receiver counters.
type ReceiverStats struct {
	SourcePackets    uint64
	RepairPackets    uint64
	MalformedPackets uint64
	DecodeErrors     uint64
	Window           jitter.Stats
	Playback         playback.ControllerStats
}

// Receiver is an inbound media session.
//
// A receiver binds its source port (and, with FEC, its repair port),
// then serves pull-based ReadSamples calls. Incoming packets flow
// through depacketization, the reorder/loss-recovery window, payload
// decoding, and the playback timing controller.
type Receiver struct {
	mu           sync.Mutex
	ctx          *Context
	streamID     string
	cfg          ReceiverConfig
	window       *jitter.Window
	controller   *playback.Controller
	depacketizer *rtp.Depacketizer
	decoder      audio.Decoder
	transports   map[Port]transport.Transport
	owned        map[Port]bool
	cancel       context.CancelFunc
	group        *errgroup.Group
	sourceCount  uint64
	repairCount  uint64
	decodeErrors uint64
	closed       bool
}

// NewReceiver creates a receiver session attached to ctx.
//
// Parameters:
//   - ctx: Runtime context the session belongs to
//   - cfg: Receiver configuration
//
// Returns:
//   - *Receiver: New receiver, not yet bound
//   - error: Configuration or context errors
func NewReceiver(ctx *Context, cfg ReceiverConfig) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	streamID, err := ctx.acquire()
	if err != nil {
		return nil, fmt.Errorf("attaching receiver to context: %w", err)
	}

	r, err := buildReceiver(ctx, streamID, cfg)
	if err != nil {
		ctx.release()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":       "NewReceiver",
		"stream_id":      streamID,
		"sample_rate":    cfg.SampleRate,
		"channels":       cfg.Channels,
		"encoding":       cfg.Encoding.String(),
		"fec_code":       cfg.FECCode.String(),
		"target_latency": cfg.TargetLatency,
	}).Info("Creating new receiver session")

	return r, nil
}

func buildReceiver(ctx *Context, streamID string, cfg ReceiverConfig) (*Receiver, error) {
	scheme, err := newScheme(cfg.FECCode, cfg.SourceBlockSize, cfg.RepairBlockSize)
	if err != nil {
		return nil, fmt.Errorf("creating FEC scheme: %w", err)
	}

	window, err := jitter.NewWindow(jitter.Config{
		Scheme:         scheme,
		DeadlineBlocks: cfg.DeadlineBlocks,
		MaxBlocks:      cfg.MaxBlocks,
		FrameTicks:     cfg.frameTicks(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating reorder window: %w", err)
	}

	var resampler audio.Resampler
	if cfg.ResamplerProfile != audio.ProfileDisabled {
		r, err := audio.NewResampler(audio.ResamplerConfig{
			InputRate:  cfg.SampleRate,
			OutputRate: cfg.SampleRate,
			Channels:   cfg.Channels,
			Profile:    cfg.ResamplerProfile,
		})
		if err != nil {
			return nil, fmt.Errorf("creating resampler: %w", err)
		}
		resampler = r
	}

	bufCfg := playback.BufferConfig{TargetFrames: cfg.latencyFrames(cfg.TargetLatency)}
	if cfg.MaxLatency > 0 {
		bufCfg.HighWatermark = cfg.latencyFrames(cfg.MaxLatency)
	}

	controller, err := playback.NewController(playback.ControllerConfig{
		FrameSize:       cfg.FrameSize,
		Channels:        cfg.Channels,
		SampleRate:      cfg.SampleRate,
		Buffer:          bufCfg,
		Drift:           playback.DefaultDriftConfig(),
		Resampler:       resampler,
		AutomaticTiming: cfg.AutomaticTiming,
	})
	if err != nil {
		return nil, fmt.Errorf("creating playback controller: %w", err)
	}

	var decoder audio.Decoder
	if cfg.Encoding == EncodingOpus {
		decoder = audio.NewOpusDecoder()
	} else {
		decoder = audio.NewPCMDecoder()
	}

	flushCtx, cancel := context.WithCancel(context.Background())
	group, flushCtx := errgroup.WithContext(flushCtx)

	r := &Receiver{
		ctx:          ctx,
		streamID:     streamID,
		cfg:          cfg,
		window:       window,
		controller:   controller,
		depacketizer: rtp.NewDepacketizer(),
		decoder:      decoder,
		transports:   make(map[Port]transport.Transport),
		owned:        make(map[Port]bool),
		cancel:       cancel,
		group:        group,
	}
	group.Go(func() error {
		r.flushLoop(flushCtx)
		return nil
	})
	return r, nil
}

// Bind opens a local UDP endpoint for one of the receiver's ports.
//
// Parameters:
//   - port: Port being bound
//   - proto: Wire protocol the port speaks; must match the FEC code
//   - listenAddr: Local address, e.g. "127.0.0.1:0"
func (r *Receiver) Bind(port Port, proto Protocol, listenAddr string) error {
	tr, err := transport.NewUDPTransport(listenAddr)
	if err != nil {
		return fmt.Errorf("binding %s port: %w", port.String(), err)
	}
	if err := r.bindTransport(port, proto, tr, true); err != nil {
		tr.Close()
		return err
	}
	return nil
}

// BindTransport attaches an existing transport to one of the
// receiver's ports. The caller retains ownership.
func (r *Receiver) BindTransport(port Port, proto Protocol, tr transport.Transport) error {
	return r.bindTransport(port, proto, tr, false)
}

func (r *Receiver) bindTransport(port Port, proto Protocol, tr transport.Transport, owned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	want, ok := protocolFor(r.cfg.FECCode, port)
	if !ok || want != proto {
		return fmt.Errorf("%w: port %s with protocol %s under FEC %s",
			ErrProtocolMismatch, port.String(), proto.String(), r.cfg.FECCode.String())
	}
	if _, exists := r.transports[port]; exists {
		return fmt.Errorf("%w: port %s is already bound", ErrInvalidConfig, port.String())
	}

	switch port {
	case PortAudioSource:
		tr.RegisterHandler(transport.PacketAudioSource, r.handleSourcePacket)
	case PortAudioRepair:
		tr.RegisterHandler(transport.PacketAudioRepair, r.handleRepairPacket)
	}
	r.transports[port] = tr
	r.owned[port] = owned

	logrus.WithFields(logrus.Fields{
		"function":  "Receiver.Bind",
		"stream_id": r.streamID,
		"port":      port.String(),
		"protocol":  proto.String(),
		"addr":      tr.LocalAddr().String(),
	}).Info("Bound receiver port")

	return nil
}

// ReadSamples fills buf with the next interleaved playback samples.
//
// The buffer is always filled completely, with silence standing in for
// anything not yet received. With automatic timing the call paces
// itself; it never blocks longer than one frame duration.
func (r *Receiver) ReadSamples(buf []int16) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return r.controller.Read(buf)
}

// LocalAddr returns the bound address for port, or nil if unbound.
func (r *Receiver) LocalAddr(port Port) net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.transports[port]
	if !ok {
		return nil
	}
	return tr.LocalAddr()
}

// StreamID returns the session's unique stream identifier.
func (r *Receiver) StreamID() string {
	return r.streamID
}

// Stats returns a snapshot of receiver counters.
func (r *Receiver) Stats() ReceiverStats {
	r.mu.Lock()
	stats := ReceiverStats{
		SourcePackets:    r.sourceCount,
		RepairPackets:    r.repairCount,
		MalformedPackets: r.depacketizer.Malformed(),
		DecodeErrors:     r.decodeErrors,
	}
	r.mu.Unlock()

	stats.Window = r.window.Stats()
	stats.Playback = r.controller.Stats()
	return stats
}

// Close drains the reorder window into the playback buffer, stops the
// background flusher, closes owned transports, and detaches from the
// context.
func (r *Receiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.closed = true
	r.deliverLocked(r.window.Flush())
	r.mu.Unlock()

	r.cancel()
	r.group.Wait()

	var firstErr error
	r.mu.Lock()
	for port, tr := range r.transports {
		if !r.owned[port] {
			continue
		}
		if err := tr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.mu.Unlock()

	r.decoder.Close()
	r.ctx.release()

	logrus.WithFields(logrus.Fields{
		"function":  "Receiver.Close",
		"stream_id": r.streamID,
	}).Info("Closed receiver session")

	return firstErr
}

// handleSourcePacket feeds one media packet through the window and
// delivers anything it releases. Runs on the transport's read loop.
func (r *Receiver) handleSourcePacket(pkt *transport.Packet, addr net.Addr) error {
	sp, err := r.depacketizer.ParseSource(pkt.Data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.handleSourcePacket",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Debug("Dropping malformed source packet")
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.sourceCount++
	r.deliverLocked(r.window.PushSource(sp.Seq, sp.Timestamp, sp.Payload))
	return nil
}

// handleRepairPacket feeds one repair shard through the window.
func (r *Receiver) handleRepairPacket(pkt *transport.Packet, addr net.Addr) error {
	rp, err := r.depacketizer.ParseRepair(pkt.Data)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.handleRepairPacket",
			"from":     addr.String(),
			"error":    err.Error(),
		}).Debug("Dropping malformed repair packet")
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.repairCount++
	r.deliverLocked(r.window.PushRepair(rp.BlockIndex, rp.SlotIndex, rp.Timestamp, rp.Payload))
	return nil
}

// deliverLocked decodes released frames and hands them to the playback
// controller, preserving the window's emission order. A frame whose
// payload fails to decode degrades to a gap rather than failing the
// stream.
func (r *Receiver) deliverLocked(emitted []jitter.Emitted) {
	for _, e := range emitted {
		entry := playback.Entry{Seq: e.Seq, Timestamp: e.Timestamp, Gap: e.Gap}
		if !e.Gap {
			samples, err := r.decoder.Decode(e.Payload)
			if err != nil {
				r.decodeErrors++
				logrus.WithFields(logrus.Fields{
					"function": "Receiver.deliverLocked",
					"seq":      e.Seq,
					"error":    err.Error(),
				}).Warn("Payload decode failed, substituting silence")
				entry.Gap = true
			} else {
				entry.Samples = samples
			}
		}
		r.controller.Push(entry)
	}
}

// flushLoop periodically forces out blocks that have been waiting
// longer than the target latency, so a stalled or ended stream still
// drains to the playback buffer.
func (r *Receiver) flushLoop(ctx context.Context) {
	interval := r.cfg.StaleFlushInterval
	if interval <= 0 {
		interval = defaultStaleFlushInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.mu.Lock()
			if !r.closed {
				r.deliverLocked(r.window.FlushStale(r.cfg.TargetLatency))
			}
			r.mu.Unlock()
		}
	}
}
