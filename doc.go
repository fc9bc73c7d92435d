// Package audiowire implements a real-time audio transport engine.
//
// audiowire moves interleaved PCM audio over lossy packet networks with
// forward error correction and adaptive playback timing. A sender
// slices the sample stream into fixed-size frames, groups frames into
// Reed-Solomon FEC blocks, and transmits them as RTP packets on a
// source channel plus a companion repair channel. A receiver reorders
// arriving packets, reconstructs lost frames from repair shards, and
// serves pull-based sample reads that track a target latency and
// compensate for sender/receiver clock drift.
//
// # Getting Started
//
// Sessions attach to a shared Context. A receiver binds its ports,
// then a sender connects to them:
//
//	ctx := audiowire.NewContext()
//	defer ctx.Close()
//
//	recv, err := audiowire.NewReceiver(ctx, audiowire.DefaultReceiverConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer recv.Close()
//
//	recv.Bind(audiowire.PortAudioSource, audiowire.ProtoRTPRSSource, "127.0.0.1:0")
//	recv.Bind(audiowire.PortAudioRepair, audiowire.ProtoRSRepair, "127.0.0.1:0")
//
//	send, err := audiowire.NewSender(ctx, audiowire.DefaultSenderConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer send.Close()
//
//	send.Bind("127.0.0.1:0")
//	send.Connect(audiowire.PortAudioSource, audiowire.ProtoRTPRSSource,
//	    recv.LocalAddr(audiowire.PortAudioSource))
//	send.Connect(audiowire.PortAudioRepair, audiowire.ProtoRSRepair,
//	    recv.LocalAddr(audiowire.PortAudioRepair))
//
//	send.WriteSamples(samples)
//
//	buf := make([]int16, 512)
//	recv.ReadSamples(buf)
//
// WriteSamples accepts arbitrary-length buffers and transmits complete
// frames as they fill. ReadSamples always fills its buffer, playing
// silence while prebuffering or when the network starves the playback
// buffer, so the read side never stalls a real-time audio callback.
//
// Sub-packages implement the pipeline stages: frame (slicing), fec
// (block coding), rtp and transport (packetization and UDP), jitter
// (reordering and loss recovery), playback (buffering, timing, drift),
// and audio (PCM and Opus payload handling).
package audiowire
