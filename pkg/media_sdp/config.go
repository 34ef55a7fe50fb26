package media_sdp

import (
	"net"
	"strconv"
	"time"

	"github.com/arzzra/voicechat/pkg/rtp"
)

const (
	// WireFormatAttribute атрибут с форматом заголовка пакетов
	WireFormatAttribute = "x-voicechat-wire"

	protoRTP    = "RTP/AVP"
	protoNative = "UDP"
)

// DescribeConfig параметры описания локального потока
type DescribeConfig struct {
	SessionName string
	Username    string

	// Адрес, по которому удаленный узел шлет пакеты
	Address string
	Port    int

	PayloadType    uint8
	SampleRate     int
	Channels       int
	BytesPerSample int
	Ptime          time.Duration

	Direction  rtp.Direction
	WireFormat rtp.WireFormat

	// SessionVersion 0 - текущее время
	SessionVersion uint64
}

// DefaultDescribeConfig конфигурация для 8 кГц моно L16, 20 мс
func DefaultDescribeConfig() DescribeConfig {
	return DescribeConfig{
		SessionName:    "voicechat",
		Username:       "-",
		Address:        "127.0.0.1",
		Port:           5004,
		PayloadType:    rtp.DefaultPayloadType,
		SampleRate:     8000,
		Channels:       1,
		BytesPerSample: 2,
		Ptime:          20 * time.Millisecond,
		Direction:      rtp.DirectionSendRecv,
		WireFormat:     rtp.WireFormatNative,
	}
}

// Validate проверяет конфигурацию
func (c DescribeConfig) Validate() error {
	if net.ParseIP(c.Address) == nil {
		return NewSDPError(ErrorCodeInvalidConfig, "некорректный IP адрес: %q", c.Address)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return NewSDPError(ErrorCodeInvalidConfig, "порт вне диапазона: %d", c.Port)
	}
	if c.PayloadType > 127 {
		return NewSDPError(ErrorCodeInvalidConfig, "payload type вне диапазона: %d", c.PayloadType)
	}
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return NewSDPError(ErrorCodeInvalidConfig, "частота и число каналов должны быть положительными")
	}
	if _, err := encodingName(c.BytesPerSample); err != nil {
		return err
	}
	return nil
}

// RemoteDescription параметры потока удаленного узла, извлеченные из SDP
type RemoteDescription struct {
	Address     string // host:port для отправки
	PayloadType uint8
	Encoding    string
	ClockRate   int
	Channels    int
	Ptime       time.Duration

	// Direction направление, объявленное удаленным узлом
	Direction  rtp.Direction
	WireFormat rtp.WireFormat
}

// LocalDirection направление для локального узла: sendonly удаленного
// означает recvonly локального и наоборот
func (r *RemoteDescription) LocalDirection() rtp.Direction {
	switch r.Direction {
	case rtp.DirectionSendOnly:
		return rtp.DirectionRecvOnly
	case rtp.DirectionRecvOnly:
		return rtp.DirectionSendOnly
	default:
		return rtp.DirectionSendRecv
	}
}

// BytesPerSample размер сэмпла по имени кодировки
func (r *RemoteDescription) BytesPerSample() int {
	if r.Encoding == "L8" {
		return 1
	}
	return 2
}

// Host адрес без порта
func (r *RemoteDescription) Host() string {
	host, _, _ := net.SplitHostPort(r.Address)
	return host
}

// Port порт удаленного узла
func (r *RemoteDescription) Port() int {
	_, port, _ := net.SplitHostPort(r.Address)
	n, _ := strconv.Atoi(port)
	return n
}

func encodingName(bytesPerSample int) (string, error) {
	switch bytesPerSample {
	case 1:
		return "L8", nil
	case 2:
		return "L16", nil
	default:
		return "", NewSDPError(ErrorCodeIncompatibleCodec, "неподдерживаемый размер сэмпла: %d", bytesPerSample)
	}
}
