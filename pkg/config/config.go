// Package config загружает конфигурацию голосового узла: YAML файл,
// переменные окружения VOICECHAT_* и значения по умолчанию.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/arzzra/voicechat/pkg/rtp"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// EnvPrefix префикс переменных окружения
const EnvPrefix = "VOICECHAT"

type Config struct {
	Network NetworkConfig `mapstructure:"network"`
	Audio   AudioConfig   `mapstructure:"audio"`
	Jitter  JitterConfig  `mapstructure:"jitter"`
	Session SessionConfig `mapstructure:"session"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type NetworkConfig struct {
	LocalHost     string  `mapstructure:"local_host"`
	LocalPort     int     `mapstructure:"local_port"`
	RemoteAddress string  `mapstructure:"remote_address"`
	RemotePort    int     `mapstructure:"remote_port"`
	BufferSize    int     `mapstructure:"buffer_size"`
	DSCP          int     `mapstructure:"dscp"`
	RateLimitPPS  float64 `mapstructure:"rate_limit_pps"` // 0 - без лимита
	Direction     string  `mapstructure:"direction"`      // sendrecv, sendonly, recvonly
	ReusePort     bool    `mapstructure:"reuse_port"`
	Interface     string  `mapstructure:"interface"` // SO_BINDTODEVICE, только Linux
}

type AudioConfig struct {
	SampleRate      int    `mapstructure:"sample_rate"`
	SamplesPerFrame int    `mapstructure:"samples_per_frame"`
	Channels        int    `mapstructure:"channels"`
	BytesPerSample  int    `mapstructure:"bytes_per_sample"`
	Input           string `mapstructure:"input"`  // tone, stdin, путь к .wav или .raw
	Output          string `mapstructure:"output"` // null, stdout, путь к .wav или .raw
	ToneFrequency   int    `mapstructure:"tone_frequency"`
}

type JitterConfig struct {
	PlayoutDelayFrames   int    `mapstructure:"playout_delay_frames"`
	BufferCapacityFrames int    `mapstructure:"buffer_capacity_frames"`
	LossToleranceFrames  int    `mapstructure:"loss_tolerance_frames"`
	OverflowPolicy       string `mapstructure:"overflow_policy"` // advance, drop_newest
	Concealment          string `mapstructure:"concealment"`     // silence, repeat
	FillSilence          bool   `mapstructure:"fill_silence"`
}

type SessionConfig struct {
	WireFormat  string        `mapstructure:"wire_format"` // native, rtp
	PayloadType int           `mapstructure:"payload_type"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`   // json или text
	Output     string `mapstructure:"output"`   // stdout, stderr или путь к файлу
	MaxSize    int    `mapstructure:"max_size"` // МБ
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // дни
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

// Load читает конфигурацию. Пустой путь - только значения по умолчанию и окружение.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Переопределение через окружение: VOICECHAT_NETWORK_LOCAL_PORT и т.д.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default возвращает конфигурацию по умолчанию без чтения файла и окружения
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Значения по умолчанию всегда приводятся к структуре
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	// Network
	v.SetDefault("network.local_host", "0.0.0.0")
	v.SetDefault("network.local_port", 5004)
	v.SetDefault("network.remote_address", "127.0.0.1")
	v.SetDefault("network.remote_port", 5005)
	v.SetDefault("network.buffer_size", rtp.DefaultBufferSize)
	v.SetDefault("network.dscp", rtp.DSCPExpeditedForwarding)
	v.SetDefault("network.rate_limit_pps", 1000)
	v.SetDefault("network.direction", rtp.DirectionSendRecv.String())
	v.SetDefault("network.reuse_port", false)
	v.SetDefault("network.interface", "")

	// Audio: 8 кГц, 20 мс, моно, 16 бит
	v.SetDefault("audio.sample_rate", 8000)
	v.SetDefault("audio.samples_per_frame", 160)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.bytes_per_sample", 2)
	v.SetDefault("audio.input", "tone")
	v.SetDefault("audio.output", "null")
	v.SetDefault("audio.tone_frequency", 440)

	// Jitter buffer
	v.SetDefault("jitter.playout_delay_frames", 3)
	v.SetDefault("jitter.buffer_capacity_frames", 50)
	v.SetDefault("jitter.loss_tolerance_frames", 2)
	v.SetDefault("jitter.overflow_policy", "advance")
	v.SetDefault("jitter.concealment", "silence")
	v.SetDefault("jitter.fill_silence", true)

	// Session
	v.SetDefault("session.wire_format", rtp.WireFormatNative.String())
	v.SetDefault("session.payload_type", rtp.DefaultPayloadType)
	v.SetDefault("session.timeout", "5s")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Metrics
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("metrics.path", "/metrics")
}

// Validate проверяет конфигурацию целиком и возвращает все найденные ошибки
func (c *Config) Validate() error {
	return errors.Join(
		c.Network.Validate(),
		c.Audio.Validate(),
		c.Jitter.Validate(),
		c.Session.Validate(),
		c.Logging.Validate(),
		c.Metrics.Validate(),
		c.validateDatagram(),
	)
}

// validateDatagram проверяет, что пакет с кадром помещается в датаграмму
// и в буфер чтения. Иначе ядро обрежет каждый пакет.
func (c *Config) validateDatagram() error {
	if c.Audio.SamplesPerFrame <= 0 || c.Audio.Channels <= 0 || c.Audio.BytesPerSample <= 0 {
		return nil
	}
	packetSize := c.PacketSize()
	if packetSize > rtp.MaxDatagramSize {
		return fmt.Errorf("пакет %d байт больше максимальной UDP датаграммы %d", packetSize, rtp.MaxDatagramSize)
	}
	if c.Network.BufferSize < packetSize {
		return fmt.Errorf("network.buffer_size (%d) меньше размера пакета %d (заголовок %d + кадр %d)",
			c.Network.BufferSize, packetSize, rtp.HeaderSize, c.Audio.FrameSize())
	}
	return nil
}

// PacketSize размер датаграммы с одним кадром
func (c *Config) PacketSize() int {
	return rtp.HeaderSize + c.Audio.FrameSize()
}

func (c *NetworkConfig) Validate() error {
	if c.LocalPort < 0 || c.LocalPort > 65535 {
		return fmt.Errorf("network.local_port вне диапазона: %d", c.LocalPort)
	}
	if c.RemotePort < 0 || c.RemotePort > 65535 {
		return fmt.Errorf("network.remote_port вне диапазона: %d", c.RemotePort)
	}
	if c.BufferSize < rtp.HeaderSize {
		return fmt.Errorf("network.buffer_size слишком мал: %d", c.BufferSize)
	}
	if c.DSCP < 0 || c.DSCP > 63 {
		return fmt.Errorf("network.dscp вне диапазона 0-63: %d", c.DSCP)
	}
	if c.RateLimitPPS < 0 {
		return fmt.Errorf("network.rate_limit_pps отрицателен: %v", c.RateLimitPPS)
	}
	if _, err := rtp.ParseDirection(c.Direction); err != nil {
		return fmt.Errorf("network.direction: %w", err)
	}
	if len(c.Interface) > rtp.MaxInterfaceNameLength {
		return fmt.Errorf("network.interface длиннее %d символов: %q", rtp.MaxInterfaceNameLength, c.Interface)
	}
	return nil
}

// LocalAddr адрес для привязки сокета
func (c *NetworkConfig) LocalAddr() string {
	return net.JoinHostPort(c.LocalHost, strconv.Itoa(c.LocalPort))
}

// RemoteAddr адрес удаленного узла или пустая строка, если он не задан
func (c *NetworkConfig) RemoteAddr() string {
	if c.RemoteAddress == "" || c.RemotePort == 0 {
		return ""
	}
	return net.JoinHostPort(c.RemoteAddress, strconv.Itoa(c.RemotePort))
}

// SetRemote разбирает адрес вида host:port
func (c *NetworkConfig) SetRemote(hostport string) error {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return fmt.Errorf("неверный адрес удаленного узла %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("неверный порт удаленного узла %q", portStr)
	}
	c.RemoteAddress = host
	c.RemotePort = port
	return nil
}

func (c *AudioConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate должен быть положительным: %d", c.SampleRate)
	}
	if c.SamplesPerFrame <= 0 {
		return fmt.Errorf("audio.samples_per_frame должен быть положительным: %d", c.SamplesPerFrame)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("audio.channels должен быть положительным: %d", c.Channels)
	}
	if !lo.Contains([]int{1, 2}, c.BytesPerSample) {
		return fmt.Errorf("audio.bytes_per_sample поддерживается 1 или 2: %d", c.BytesPerSample)
	}
	if c.Input == "" || c.Output == "" {
		return errors.New("audio.input и audio.output обязательны")
	}
	if c.ToneFrequency <= 0 || c.ToneFrequency*2 > c.SampleRate {
		return fmt.Errorf("audio.tone_frequency вне диапазона (0, %d]: %d", c.SampleRate/2, c.ToneFrequency)
	}
	return nil
}

// FrameSize размер кадра в байтах
func (c *AudioConfig) FrameSize() int {
	return c.SamplesPerFrame * c.Channels * c.BytesPerSample
}

func (c *JitterConfig) Validate() error {
	if c.PlayoutDelayFrames < 0 {
		return fmt.Errorf("jitter.playout_delay_frames отрицателен: %d", c.PlayoutDelayFrames)
	}
	if c.BufferCapacityFrames <= 0 {
		return fmt.Errorf("jitter.buffer_capacity_frames должен быть положительным: %d", c.BufferCapacityFrames)
	}
	if c.BufferCapacityFrames > rtp.MaxSeqWindow {
		return fmt.Errorf("jitter.buffer_capacity_frames больше %d: %d", rtp.MaxSeqWindow, c.BufferCapacityFrames)
	}
	if c.PlayoutDelayFrames > c.BufferCapacityFrames {
		return fmt.Errorf("jitter.playout_delay_frames (%d) больше емкости буфера (%d)",
			c.PlayoutDelayFrames, c.BufferCapacityFrames)
	}
	if c.LossToleranceFrames < 0 {
		return fmt.Errorf("jitter.loss_tolerance_frames отрицателен: %d", c.LossToleranceFrames)
	}
	if !lo.Contains([]string{"advance", "drop_newest"}, c.OverflowPolicy) {
		return fmt.Errorf("jitter.overflow_policy неизвестна: %q", c.OverflowPolicy)
	}
	if !lo.Contains([]string{"silence", "repeat"}, c.Concealment) {
		return fmt.Errorf("jitter.concealment неизвестен: %q", c.Concealment)
	}
	return nil
}

func (c *SessionConfig) Validate() error {
	if _, err := rtp.ParseWireFormat(c.WireFormat); err != nil {
		return fmt.Errorf("session.wire_format: %w", err)
	}
	if c.PayloadType < 0 || c.PayloadType > 127 {
		return fmt.Errorf("session.payload_type вне диапазона 0-127: %d", c.PayloadType)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("session.timeout отрицателен: %v", c.Timeout)
	}
	return nil
}

func (c *LoggingConfig) Validate() error {
	if !lo.Contains([]string{"json", "text"}, c.Format) {
		return fmt.Errorf("logging.format должен быть json или text: %q", c.Format)
	}
	if c.Output == "" {
		return errors.New("logging.output обязателен")
	}
	return nil
}

func (c *MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Address == "" {
		return errors.New("metrics.address обязателен при включенных метриках")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("metrics.path должен начинаться с /: %q", c.Path)
	}
	return nil
}
