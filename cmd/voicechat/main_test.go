package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arzzra/voicechat/pkg/audio"
	"github.com/arzzra/voicechat/pkg/config"
	"github.com/arzzra/voicechat/pkg/media_sdp"
	"github.com/arzzra/voicechat/pkg/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-local-port", "6000", "-remote", "10.0.0.2:6001", "-sdp"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 6000, opts.localPort)
	assert.Equal(t, "10.0.0.2:6001", opts.remote)
	assert.True(t, opts.printSDP)
	assert.True(t, opts.set["local-port"])
	assert.False(t, opts.set["input"])

	_, err = parseFlags([]string{"-unknown"}, io.Discard)
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Run("Флаги переопределяют значения по умолчанию", func(t *testing.T) {
		opts, err := parseFlags([]string{
			"-local-port", "6000",
			"-remote", "10.0.0.2:6001",
			"-input", "in.wav",
			"-output", "stdout",
		}, io.Discard)
		require.NoError(t, err)

		cfg, err := loadConfig(opts)
		require.NoError(t, err)
		assert.Equal(t, 6000, cfg.Network.LocalPort)
		assert.Equal(t, "10.0.0.2:6001", cfg.Network.RemoteAddr())
		assert.Equal(t, "in.wav", cfg.Audio.Input)
		assert.Equal(t, "stdout", cfg.Audio.Output)
	})

	t.Run("Неверный адрес", func(t *testing.T) {
		opts, err := parseFlags([]string{"-remote", "nohost"}, io.Discard)
		require.NoError(t, err)

		_, err = loadConfig(opts)
		assert.Error(t, err)
	})

	t.Run("Параметры из SDP удаленного узла", func(t *testing.T) {
		describe := media_sdp.DefaultDescribeConfig()
		describe.Address = "10.1.1.1"
		describe.Port = 7000
		describe.SampleRate = 16000
		describe.Ptime = 10 * time.Millisecond
		describe.Direction = rtp.DirectionSendOnly
		describe.WireFormat = rtp.WireFormatRTP

		data, err := media_sdp.Marshal(describe)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "remote.sdp")
		require.NoError(t, os.WriteFile(path, data, 0o644))

		opts, err := parseFlags([]string{"-remote-sdp", path}, io.Discard)
		require.NoError(t, err)

		cfg, err := loadConfig(opts)
		require.NoError(t, err)
		assert.Equal(t, "10.1.1.1:7000", cfg.Network.RemoteAddr())
		assert.Equal(t, 16000, cfg.Audio.SampleRate)
		assert.Equal(t, 160, cfg.Audio.SamplesPerFrame)
		assert.Equal(t, "rtp", cfg.Session.WireFormat)
		assert.Equal(t, "recvonly", cfg.Network.Direction)
	})
}

func TestApplyRemoteDescription(t *testing.T) {
	remote := &media_sdp.RemoteDescription{
		Address:     "10.0.0.9:4000",
		PayloadType: 97,
		Encoding:    "L8",
		ClockRate:   8000,
		Channels:    2,
		Ptime:       30 * time.Millisecond,
		Direction:   rtp.DirectionRecvOnly,
		WireFormat:  rtp.WireFormatNative,
	}

	tests := []struct {
		name        string
		direction   string
		keepAddress bool
		remoteAddr  string
		expectedDir string
	}{
		{"Адрес и направление из SDP", "sendrecv", false, "10.0.0.9:4000", "sendonly"},
		{"Явный адрес сохраняется", "sendrecv", true, "127.0.0.1:5005", "sendonly"},
		{"Явное направление сохраняется", "recvonly", false, "10.0.0.9:4000", "recvonly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Network.Direction = tt.direction

			require.NoError(t, applyRemoteDescription(cfg, remote, tt.keepAddress))
			assert.Equal(t, tt.remoteAddr, cfg.Network.RemoteAddr())
			assert.Equal(t, tt.expectedDir, cfg.Network.Direction)
			assert.Equal(t, 240, cfg.Audio.SamplesPerFrame)
			assert.Equal(t, 1, cfg.Audio.BytesPerSample)
			assert.Equal(t, 2, cfg.Audio.Channels)
			assert.Equal(t, 97, cfg.Session.PayloadType)
		})
	}
}

func TestApplyRemoteDescriptionGrowsBuffer(t *testing.T) {
	remote := &media_sdp.RemoteDescription{
		Address:     "10.0.0.9:4000",
		PayloadType: 96,
		Encoding:    "L16",
		ClockRate:   44100,
		Channels:    2,
		Ptime:       20 * time.Millisecond,
		Direction:   rtp.DirectionSendRecv,
		WireFormat:  rtp.WireFormatRTP,
	}

	cfg := config.Default()
	require.NoError(t, applyRemoteDescription(cfg, remote, false))

	// 882 сэмпла * 2 канала * 2 байта = 3528 байт кадра
	assert.Equal(t, 882, cfg.Audio.SamplesPerFrame)
	assert.Equal(t, rtp.HeaderSize+3528, cfg.Network.BufferSize)
	assert.NoError(t, cfg.Validate())

	t.Run("Больший буфер не уменьшается", func(t *testing.T) {
		cfg := config.Default()
		cfg.Network.BufferSize = 8192
		require.NoError(t, applyRemoteDescription(cfg, remote, false))
		assert.Equal(t, 8192, cfg.Network.BufferSize)
	})
}

func TestDescribeLocal(t *testing.T) {
	cfg := config.Default()
	cfg.Network.LocalHost = "127.0.0.1"
	cfg.Network.LocalPort = 6100

	data, err := describeLocal(cfg)
	require.NoError(t, err)

	remote, err := media_sdp.ParseRemote(data)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6100", remote.Address)
	assert.Equal(t, 8000, remote.ClockRate)
	assert.Equal(t, 20*time.Millisecond, remote.Ptime)
	assert.Equal(t, rtp.WireFormatNative, remote.WireFormat)
}

func TestOpenDevices(t *testing.T) {
	format := audio.DefaultFormat()
	dir := t.TempDir()

	t.Run("Тон", func(t *testing.T) {
		source, err := openSource("tone", format, 440)
		require.NoError(t, err)
		assert.IsType(t, &audio.PacedSource{}, source)
	})

	t.Run("Нет файла", func(t *testing.T) {
		_, err := openSource(filepath.Join(dir, "missing.raw"), format, 440)
		assert.Error(t, err)
	})

	t.Run("WAV запись и чтение", func(t *testing.T) {
		path := filepath.Join(dir, "out.wav")
		sink, err := openSink(path, format)
		require.NoError(t, err)

		frame := bytes.Repeat([]byte{1, 0}, format.SamplesPerFrame)
		require.NoError(t, sink.PlayFrame(frame))
		require.NoError(t, sink.(io.Closer).Close())

		source, err := openSource(path, format, 440)
		require.NoError(t, err)
		defer source.(io.Closer).Close()

		captured, err := source.CaptureFrame(context.Background())
		require.NoError(t, err)
		assert.Equal(t, frame, captured)
	})

	t.Run("Сырой PCM", func(t *testing.T) {
		path := filepath.Join(dir, "out.raw")
		sink, err := openSink(path, format)
		require.NoError(t, err)
		require.NoError(t, sink.PlayFrame(format.Silence()))
		require.NoError(t, sink.(io.Closer).Close())

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, int64(format.FrameSize()), info.Size())
	})

	t.Run("Пустой приемник", func(t *testing.T) {
		sink, err := openSink("null", format)
		require.NoError(t, err)
		assert.IsType(t, &audio.NullSink{}, sink)
	})
}
