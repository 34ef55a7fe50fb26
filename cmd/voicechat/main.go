// voicechat - голосовой узел точка-точка поверх UDP.
//
// Пример: два узла на одной машине
//
//	voicechat -local-port 5004 -remote 127.0.0.1:5005 -input tone -output out.wav
//	voicechat -local-port 5005 -remote 127.0.0.1:5004 -input tone -output null
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/arzzra/voicechat/pkg/audio"
	"github.com/arzzra/voicechat/pkg/config"
	"github.com/arzzra/voicechat/pkg/logging"
	"github.com/arzzra/voicechat/pkg/media"
	"github.com/arzzra/voicechat/pkg/media_sdp"
	"github.com/arzzra/voicechat/pkg/rtp"
	"github.com/arzzra/voicechat/pkg/voice"
	"github.com/sirupsen/logrus"
)

// cliOptions параметры командной строки
type cliOptions struct {
	configPath  string
	localPort   int
	remote      string
	input       string
	output      string
	remoteSDP   string
	printSDP    bool
	showVersion bool

	// set флаги, явно заданные пользователем
	set map[string]bool
}

func parseFlags(args []string, output io.Writer) (*cliOptions, error) {
	opts := &cliOptions{set: make(map[string]bool)}

	fs := flag.NewFlagSet("voicechat", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.IntVar(&opts.localPort, "local-port", 0, "Local UDP port")
	fs.StringVar(&opts.remote, "remote", "", "Remote peer address host:port")
	fs.StringVar(&opts.input, "input", "", "Capture source: tone, stdin, file.wav or raw PCM file")
	fs.StringVar(&opts.output, "output", "", "Playback sink: null, stdout, file.wav or raw PCM file")
	fs.StringVar(&opts.remoteSDP, "remote-sdp", "", "Remote SDP description file")
	fs.BoolVar(&opts.printSDP, "sdp", false, "Print local SDP description and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	if opts.showVersion {
		fmt.Printf("voicechat %s\n", logging.Version)
		os.Exit(0)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "voicechat: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *cliOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	if opts.printSDP {
		data, err := describeLocal(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	baseLogger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := logging.WithService(baseLogger)

	direction, _ := rtp.ParseDirection(cfg.Network.Direction)
	format := formatOf(cfg)

	var peerOptions voice.Options
	peerOptions.Logger = logger

	if direction.CanSend() {
		peerOptions.Source, err = openSource(cfg.Audio.Input, format, cfg.Audio.ToneFrequency)
		if err != nil {
			return media.NewAudioDeviceError("capture", err)
		}
	}
	if direction.CanReceive() {
		peerOptions.Sink, err = openSink(cfg.Audio.Output, format)
		if err != nil {
			closeQuietly(peerOptions.Source)
			return media.NewAudioDeviceError("playback", err)
		}
	}

	peer, err := voice.NewPeer(cfg, peerOptions)
	if err != nil {
		closeQuietly(peerOptions.Source)
		closeQuietly(peerOptions.Sink)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := peer.Start(ctx); err != nil {
		closeQuietly(peerOptions.Source)
		closeQuietly(peerOptions.Sink)
		return err
	}

	// Обработка сигналов завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig).Info("Получен сигнал завершения")
	case <-peer.Done():
	}

	err = peer.Stop()
	logStats(logger, peer.Stats())
	return err
}

// loadConfig читает конфигурацию и применяет флаги и удаленное SDP описание
func loadConfig(opts *cliOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.set["local-port"] {
		cfg.Network.LocalPort = opts.localPort
	}
	if opts.set["remote"] {
		if err := cfg.Network.SetRemote(opts.remote); err != nil {
			return nil, err
		}
	}
	if opts.set["input"] {
		cfg.Audio.Input = opts.input
	}
	if opts.set["output"] {
		cfg.Audio.Output = opts.output
	}

	if opts.remoteSDP != "" {
		data, err := os.ReadFile(opts.remoteSDP)
		if err != nil {
			return nil, fmt.Errorf("failed to read remote SDP: %w", err)
		}
		remote, err := media_sdp.ParseRemote(data)
		if err != nil {
			return nil, err
		}
		if err := applyRemoteDescription(cfg, remote, opts.set["remote"]); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyRemoteDescription переносит параметры потока удаленного узла в конфигурацию.
// Явно заданный -remote имеет приоритет над адресом из SDP.
func applyRemoteDescription(cfg *config.Config, remote *media_sdp.RemoteDescription, keepAddress bool) error {
	if !keepAddress {
		if err := cfg.Network.SetRemote(remote.Address); err != nil {
			return err
		}
	}

	if remote.Ptime <= 0 || remote.ClockRate <= 0 {
		return fmt.Errorf("в описании удаленного узла нет частоты или длительности кадра")
	}
	samples := int(remote.Ptime.Milliseconds()) * remote.ClockRate / 1000
	if samples <= 0 {
		return fmt.Errorf("длительность кадра %s слишком мала для %d Гц", remote.Ptime, remote.ClockRate)
	}

	cfg.Audio.SampleRate = remote.ClockRate
	cfg.Audio.Channels = remote.Channels
	cfg.Audio.BytesPerSample = remote.BytesPerSample()
	cfg.Audio.SamplesPerFrame = samples
	cfg.Session.PayloadType = int(remote.PayloadType)
	cfg.Session.WireFormat = remote.WireFormat.String()

	// Буфер чтения должен вмещать пакет удаленного узла целиком
	if packetSize := cfg.PacketSize(); cfg.Network.BufferSize < packetSize {
		cfg.Network.BufferSize = packetSize
	}

	// Направление сужаем по встречному: sendonly удаленного означает recvonly локального
	local, err := rtp.ParseDirection(cfg.Network.Direction)
	if err != nil {
		return err
	}
	if local == rtp.DirectionSendRecv {
		cfg.Network.Direction = remote.LocalDirection().String()
	}
	return nil
}

// describeLocal формирует SDP описание локального потока
func describeLocal(cfg *config.Config) ([]byte, error) {
	direction, err := rtp.ParseDirection(cfg.Network.Direction)
	if err != nil {
		return nil, err
	}
	wireFormat, err := rtp.ParseWireFormat(cfg.Session.WireFormat)
	if err != nil {
		return nil, err
	}
	format := formatOf(cfg)

	describe := media_sdp.DefaultDescribeConfig()
	describe.Address = media_sdp.AdvertisedAddress(cfg.Network.LocalHost, cfg.Network.RemoteAddress)
	describe.Port = cfg.Network.LocalPort
	describe.PayloadType = uint8(cfg.Session.PayloadType)
	describe.SampleRate = format.SampleRate
	describe.Channels = format.Channels
	describe.BytesPerSample = format.BytesPerSample
	describe.Ptime = format.FrameDuration()
	describe.Direction = direction
	describe.WireFormat = wireFormat

	return media_sdp.Marshal(describe)
}

func formatOf(cfg *config.Config) audio.Format {
	return audio.Format{
		SampleRate:      cfg.Audio.SampleRate,
		SamplesPerFrame: cfg.Audio.SamplesPerFrame,
		Channels:        cfg.Audio.Channels,
		BytesPerSample:  cfg.Audio.BytesPerSample,
	}
}

func closeQuietly(v interface{}) {
	if closer, ok := v.(io.Closer); ok {
		_ = closer.Close()
	}
}

func logStats(logger logrus.FieldLogger, stats voice.Statistics) {
	logger.WithFields(logrus.Fields{
		"peer_id":          stats.ID,
		"state":            stats.State,
		"packets_sent":     stats.Sender.PacketsSent,
		"send_errors":      stats.Sender.SendErrors,
		"packets_accepted": stats.Receiver.Accepted,
		"decode_errors":    stats.Receiver.DecodeTruncated + stats.Receiver.DecodeMalformed,
		"session_mismatch": stats.Receiver.SessionMismatch,
		"frames_played":    stats.JitterBuffer.Played,
		"frames_concealed": stats.JitterBuffer.Concealed,
		"late_packets":     stats.JitterBuffer.Late,
		"jitter":           stats.Receiver.Jitter,
		"session_id":       strconv.FormatUint(uint64(stats.Receiver.SessionID), 16),
	}).Info("Итоговая статистика")
}
