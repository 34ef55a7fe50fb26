package rtp

import (
	"encoding/binary"
	"fmt"

	pionrtp "github.com/pion/rtp"
)

const (
	// HeaderSize размер заголовка в обоих форматах
	HeaderSize = 12

	// MaxDatagramSize максимальный полезный размер UDP датаграммы
	MaxDatagramSize = 65507

	// MaxPayloadSize максимальный размер аудио кадра в одном пакете
	MaxPayloadSize = MaxDatagramSize - HeaderSize

	// DefaultPayloadType динамический payload type для L16 (RFC 3551)
	DefaultPayloadType = 96

	// ExpectedRTPVersion RFC 3550: RTP version должна быть 2
	ExpectedRTPVersion = 2
)

// Packet единица передачи: один аудио кадр с заголовком последовательности
type Packet struct {
	SessionID      uint32 // Идентификатор потока (SSRC в формате RTP)
	SequenceNumber uint16 // +1 на каждый пакет, по модулю 65536
	Timestamp      uint32 // Номер первого сэмпла кадра
	Payload        []byte
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet{sid=%08x seq=%d ts=%d len=%d}", p.SessionID, p.SequenceNumber, p.Timestamp, len(p.Payload))
}

// CodecConfig конфигурация кодека пакетов
type CodecConfig struct {
	FrameSize   int        // Ожидаемый размер payload в байтах (0 - любой)
	WireFormat  WireFormat // Формат заголовка
	PayloadType uint8      // Payload type для формата RTP
}

// Codec сериализует и разбирает пакеты.
// Не хранит состояния и безопасен для одновременного использования.
type Codec struct {
	config CodecConfig
}

// NewCodec создает кодек с проверкой конфигурации
func NewCodec(config CodecConfig) (*Codec, error) {
	if config.FrameSize < 0 || config.FrameSize > MaxPayloadSize {
		return nil, fmt.Errorf("размер кадра %d вне диапазона 0-%d", config.FrameSize, MaxPayloadSize)
	}
	if config.PayloadType > 127 {
		return nil, fmt.Errorf("невалидный payload type: %d (максимум 127)", config.PayloadType)
	}
	if config.WireFormat != WireFormatNative && config.WireFormat != WireFormatRTP {
		return nil, fmt.Errorf("неизвестный формат заголовка: %d", config.WireFormat)
	}
	return &Codec{config: config}, nil
}

// FrameSize возвращает ожидаемый размер payload
func (c *Codec) FrameSize() int {
	return c.config.FrameSize
}

// WireFormat возвращает формат заголовка
func (c *Codec) WireFormat() WireFormat {
	return c.config.WireFormat
}

// Encode упаковывает кадр в датаграмму
func (c *Codec) Encode(sessionID uint32, seq uint16, ts uint32, payload []byte) ([]byte, error) {
	if err := c.checkPayloadSize(len(payload)); err != nil {
		return nil, err
	}

	if c.config.WireFormat == WireFormatRTP {
		packet := pionrtp.Packet{
			Header: pionrtp.Header{
				Version:        ExpectedRTPVersion,
				PayloadType:    c.config.PayloadType,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           sessionID,
			},
			Payload: payload,
		}
		data, err := packet.Marshal()
		if err != nil {
			return nil, fmt.Errorf("ошибка маршалинга RTP пакета: %w", err)
		}
		return data, nil
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], sessionID)
	binary.BigEndian.PutUint16(buf[4:6], seq)
	binary.BigEndian.PutUint32(buf[6:10], ts)
	binary.BigEndian.PutUint16(buf[10:12], uint16(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// Decode разбирает датаграмму. Значение sessionId не проверяется:
// это задача получателя.
func (c *Codec) Decode(buf []byte) (*Packet, error) {
	if len(buf) < HeaderSize {
		return nil, newDecodeError(DecodeTruncated, len(buf), "меньше %d байт заголовка", HeaderSize)
	}

	if c.config.WireFormat == WireFormatRTP {
		return c.decodeRTP(buf)
	}

	declared := int(binary.BigEndian.Uint16(buf[10:12]))
	remaining := len(buf) - HeaderSize
	switch {
	case declared > remaining:
		return nil, newDecodeError(DecodeTruncated, len(buf), "заявлено %d байт, получено %d", declared, remaining)
	case declared < remaining:
		return nil, newDecodeError(DecodeMalformed, len(buf), "лишние %d байт после payload", remaining-declared)
	case c.config.FrameSize > 0 && declared != c.config.FrameSize:
		return nil, newDecodeError(DecodeMalformed, len(buf), "размер payload %d, ожидается %d", declared, c.config.FrameSize)
	}

	payload := make([]byte, declared)
	copy(payload, buf[HeaderSize:])

	return &Packet{
		SessionID:      binary.BigEndian.Uint32(buf[0:4]),
		SequenceNumber: binary.BigEndian.Uint16(buf[4:6]),
		Timestamp:      binary.BigEndian.Uint32(buf[6:10]),
		Payload:        payload,
	}, nil
}

func (c *Codec) decodeRTP(buf []byte) (*Packet, error) {
	var packet pionrtp.Packet
	if err := packet.Unmarshal(buf); err != nil {
		decodeErr := newDecodeError(DecodeMalformed, len(buf), "некорректный RTP пакет")
		decodeErr.Err = err
		return nil, decodeErr
	}

	if packet.Version != ExpectedRTPVersion {
		return nil, newDecodeError(DecodeMalformed, len(buf), "неподдерживаемая версия RTP: %d", packet.Version)
	}
	if c.config.FrameSize > 0 && len(packet.Payload) != c.config.FrameSize {
		return nil, newDecodeError(DecodeMalformed, len(buf), "размер payload %d, ожидается %d", len(packet.Payload), c.config.FrameSize)
	}

	payload := make([]byte, len(packet.Payload))
	copy(payload, packet.Payload)

	return &Packet{
		SessionID:      packet.SSRC,
		SequenceNumber: packet.SequenceNumber,
		Timestamp:      packet.Timestamp,
		Payload:        payload,
	}, nil
}

func (c *Codec) checkPayloadSize(size int) error {
	if c.config.FrameSize > 0 && size != c.config.FrameSize {
		return &EncodingError{Expected: c.config.FrameSize, Actual: size}
	}
	if size > MaxPayloadSize {
		return &EncodingError{Expected: MaxPayloadSize, Actual: size}
	}
	return nil
}
