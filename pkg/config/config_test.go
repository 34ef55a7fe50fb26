package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5004, cfg.Network.LocalPort)
	assert.Equal(t, "127.0.0.1:5005", cfg.Network.RemoteAddr())
	assert.Equal(t, "0.0.0.0:5004", cfg.Network.LocalAddr())
	assert.Equal(t, 46, cfg.Network.DSCP)
	assert.Equal(t, float64(1000), cfg.Network.RateLimitPPS)
	assert.Equal(t, "sendrecv", cfg.Network.Direction)
	assert.False(t, cfg.Network.ReusePort)
	assert.Empty(t, cfg.Network.Interface)

	assert.Equal(t, 8000, cfg.Audio.SampleRate)
	assert.Equal(t, 160, cfg.Audio.SamplesPerFrame)
	assert.Equal(t, 320, cfg.Audio.FrameSize())

	assert.Equal(t, 3, cfg.Jitter.PlayoutDelayFrames)
	assert.Equal(t, 50, cfg.Jitter.BufferCapacityFrames)
	assert.Equal(t, 2, cfg.Jitter.LossToleranceFrames)
	assert.True(t, cfg.Jitter.FillSilence)

	assert.Equal(t, "native", cfg.Session.WireFormat)
	assert.Equal(t, 96, cfg.Session.PayloadType)
	assert.Equal(t, 5*time.Second, cfg.Session.Timeout)

	assert.False(t, cfg.Metrics.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("Без файла", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, 5004, cfg.Network.LocalPort)
	})

	t.Run("Файл переопределяет значения по умолчанию", func(t *testing.T) {
		path := writeConfig(t, `
network:
  local_port: 6000
  remote_address: 10.0.0.2
  remote_port: 6002
  reuse_port: true
  interface: eth0
jitter:
  overflow_policy: drop_newest
  concealment: repeat
session:
  wire_format: rtp
  timeout: 2s
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 6000, cfg.Network.LocalPort)
		assert.Equal(t, "10.0.0.2:6002", cfg.Network.RemoteAddr())
		assert.True(t, cfg.Network.ReusePort)
		assert.Equal(t, "eth0", cfg.Network.Interface)
		assert.Equal(t, "drop_newest", cfg.Jitter.OverflowPolicy)
		assert.Equal(t, "repeat", cfg.Jitter.Concealment)
		assert.Equal(t, "rtp", cfg.Session.WireFormat)
		assert.Equal(t, 2*time.Second, cfg.Session.Timeout)
		// Незаданные ключи остаются по умолчанию
		assert.Equal(t, 8000, cfg.Audio.SampleRate)
	})

	t.Run("Окружение переопределяет файл", func(t *testing.T) {
		path := writeConfig(t, "network:\n  local_port: 6000\n")
		t.Setenv("VOICECHAT_NETWORK_LOCAL_PORT", "7000")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7000, cfg.Network.LocalPort)
	})

	t.Run("Отсутствующий файл", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config")
	})

	t.Run("Невалидная конфигурация", func(t *testing.T) {
		path := writeConfig(t, "jitter:\n  overflow_policy: random\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"Порт вне диапазона", func(c *Config) { c.Network.LocalPort = 70000 }, "network.local_port"},
		{"Неизвестное направление", func(c *Config) { c.Network.Direction = "inactive" }, "network.direction"},
		{"DSCP вне диапазона", func(c *Config) { c.Network.DSCP = 64 }, "network.dscp"},
		{"Нулевая частота", func(c *Config) { c.Audio.SampleRate = 0 }, "audio.sample_rate"},
		{"Три байта на сэмпл", func(c *Config) { c.Audio.BytesPerSample = 3 }, "audio.bytes_per_sample"},
		{"Тон выше Найквиста", func(c *Config) { c.Audio.ToneFrequency = 5000 }, "audio.tone_frequency"},
		{"Задержка больше емкости", func(c *Config) { c.Jitter.PlayoutDelayFrames = 60 }, "jitter.playout_delay_frames"},
		{"Нулевая емкость", func(c *Config) { c.Jitter.BufferCapacityFrames = 0 }, "jitter.buffer_capacity_frames"},
		{"Емкость больше окна номеров", func(c *Config) { c.Jitter.BufferCapacityFrames = 40000 }, "jitter.buffer_capacity_frames"},
		{"Длинное имя интерфейса", func(c *Config) { c.Network.Interface = "very-long-interface0" }, "network.interface"},
		{"Кадр не помещается в буфер чтения", func(c *Config) { c.Audio.SamplesPerFrame = 1024 }, "network.buffer_size"},
		{"Стерео 44.1 кГц в буфере по умолчанию", func(c *Config) {
			c.Audio.SampleRate = 44100
			c.Audio.SamplesPerFrame = 882
			c.Audio.Channels = 2
		}, "network.buffer_size"},
		{"Кадр больше UDP датаграммы", func(c *Config) {
			c.Audio.SamplesPerFrame = 40000
			c.Network.BufferSize = 100000
		}, "датаграммы"},
		{"Неизвестная маскировка", func(c *Config) { c.Jitter.Concealment = "noise" }, "jitter.concealment"},
		{"Неизвестный формат", func(c *Config) { c.Session.WireFormat = "srtp" }, "session.wire_format"},
		{"Payload type вне диапазона", func(c *Config) { c.Session.PayloadType = 128 }, "session.payload_type"},
		{"Неизвестный формат логов", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"Путь метрик без слеша", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}, "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidatePacketFitsBuffer(t *testing.T) {
	tests := []struct {
		name       string
		samples    int
		bufferSize int
		valid      bool
	}{
		{"Кадр по умолчанию", 160, 2048, true},
		{"Пакет ровно по буферу", 1024, 12 + 2048, true},
		{"Буфер на байт меньше пакета", 1024, 12 + 2047, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Audio.SamplesPerFrame = tt.samples
			cfg.Network.BufferSize = tt.bufferSize

			assert.Equal(t, 12+tt.samples*2, cfg.PacketSize())
			if tt.valid {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.ErrorContains(t, cfg.Validate(), "network.buffer_size")
			}
		})
	}
}

func TestSetRemote(t *testing.T) {
	var c NetworkConfig

	require.NoError(t, c.SetRemote("192.168.1.10:4000"))
	assert.Equal(t, "192.168.1.10", c.RemoteAddress)
	assert.Equal(t, 4000, c.RemotePort)

	require.NoError(t, c.SetRemote("[::1]:5005"))
	assert.Equal(t, "[::1]:5005", c.RemoteAddr())

	assert.Error(t, c.SetRemote("no-port"))
	assert.Error(t, c.SetRemote("host:0"))
	assert.Error(t, c.SetRemote("host:abc"))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicechat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
