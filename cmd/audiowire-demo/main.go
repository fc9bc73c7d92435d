// Command audiowire-demo streams a generated tone from a sender to a
// receiver over loopback UDP, dropping a configurable share of packets
// to show FEC recovery at work.
package main

import (
	"context"
	"math"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/audiowire"
)

type demoConfig struct {
	ListenHost      string        `env:"AUDIOWIRE_HOST, default=127.0.0.1"`
	SampleRate      uint32        `env:"AUDIOWIRE_SAMPLE_RATE, default=44100"`
	FrameSize       int           `env:"AUDIOWIRE_FRAME_SIZE, default=512"`
	SourceBlockSize int           `env:"AUDIOWIRE_FEC_SOURCE, default=20"`
	RepairBlockSize int           `env:"AUDIOWIRE_FEC_REPAIR, default=4"`
	TargetLatency   time.Duration `env:"AUDIOWIRE_TARGET_LATENCY, default=100ms"`
	Duration        time.Duration `env:"AUDIOWIRE_DURATION, default=5s"`
	ToneHz          float64       `env:"AUDIOWIRE_TONE_HZ, default=440"`
	LogLevel        string        `env:"AUDIOWIRE_LOG_LEVEL, default=info"`
}

func loadConfig() (*demoConfig, error) {
	var cfg demoConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Loading configuration from environment")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	if err := run(cfg); err != nil {
		logrus.WithError(err).Fatal("Demo failed")
	}
}

func run(cfg *demoConfig) error {
	ctx := audiowire.NewContext()

	recvCfg := audiowire.DefaultReceiverConfig()
	recvCfg.SampleRate = cfg.SampleRate
	recvCfg.FrameSize = cfg.FrameSize
	recvCfg.SourceBlockSize = cfg.SourceBlockSize
	recvCfg.RepairBlockSize = cfg.RepairBlockSize
	recvCfg.TargetLatency = cfg.TargetLatency

	recv, err := audiowire.NewReceiver(ctx, recvCfg)
	if err != nil {
		return err
	}
	if err := recv.Bind(audiowire.PortAudioSource, audiowire.ProtoRTPRSSource, cfg.ListenHost+":0"); err != nil {
		return err
	}
	if err := recv.Bind(audiowire.PortAudioRepair, audiowire.ProtoRSRepair, cfg.ListenHost+":0"); err != nil {
		return err
	}

	sendCfg := audiowire.DefaultSenderConfig()
	sendCfg.SampleRate = cfg.SampleRate
	sendCfg.FrameSize = cfg.FrameSize
	sendCfg.SourceBlockSize = cfg.SourceBlockSize
	sendCfg.RepairBlockSize = cfg.RepairBlockSize

	send, err := audiowire.NewSender(ctx, sendCfg)
	if err != nil {
		return err
	}
	if err := send.Bind(cfg.ListenHost + ":0"); err != nil {
		return err
	}
	if err := send.Connect(audiowire.PortAudioSource, audiowire.ProtoRTPRSSource,
		recv.LocalAddr(audiowire.PortAudioSource)); err != nil {
		return err
	}
	if err := send.Connect(audiowire.PortAudioRepair, audiowire.ProtoRSRepair,
		recv.LocalAddr(audiowire.PortAudioRepair)); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "run",
		"source_addr": recv.LocalAddr(audiowire.PortAudioSource).String(),
		"repair_addr": recv.LocalAddr(audiowire.PortAudioRepair).String(),
		"duration":    cfg.Duration,
	}).Info("Streaming tone over loopback")

	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]int16, cfg.FrameSize)
		deadline := time.Now().Add(cfg.Duration)
		for time.Now().Before(deadline) {
			if err := recv.ReadSamples(buf); err != nil {
				return
			}
		}
	}()

	frameDur := time.Duration(cfg.FrameSize/sendCfg.Channels) * time.Second / time.Duration(cfg.SampleRate)
	ticker := time.NewTicker(frameDur)
	defer ticker.Stop()

	var phase float64
	step := 2 * math.Pi * cfg.ToneHz / float64(cfg.SampleRate)
	samples := make([]int16, cfg.FrameSize)
	deadline := time.Now().Add(cfg.Duration)

	for time.Now().Before(deadline) {
		<-ticker.C
		for i := 0; i < len(samples); i += 2 {
			s := int16(math.Sin(phase) * 16000)
			samples[i] = s
			samples[i+1] = s
			phase += step
		}
		if err := send.WriteSamples(samples); err != nil {
			return err
		}
	}
	<-done

	rs := recv.Stats()
	logrus.WithFields(logrus.Fields{
		"function":       "run",
		"frames_sent":    send.Stats().FramesSent,
		"repairs_sent":   send.Stats().RepairsSent,
		"source_packets": rs.SourcePackets,
		"repair_packets": rs.RepairPackets,
		"blocks_decoded": rs.Window.BlocksDecoded,
		"blocks_lost":    rs.Window.BlocksLost,
		"gaps_emitted":   rs.Window.GapsEmitted,
		"underruns":      rs.Playback.Underruns,
		"drift_scale":    rs.Playback.DriftScale,
	}).Info("Stream finished")

	if err := send.Close(); err != nil {
		return err
	}
	if err := recv.Close(); err != nil {
		return err
	}
	return ctx.Close()
}
