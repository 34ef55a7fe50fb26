package rtp

import (
	"fmt"
	"strings"
)

// Direction определяет направление медиа потока
type Direction int

const (
	DirectionSendRecv Direction = iota // Отправка и прием
	DirectionSendOnly                  // Только отправка
	DirectionRecvOnly                  // Только прием
)

func (d Direction) String() string {
	switch d {
	case DirectionSendRecv:
		return "sendrecv"
	case DirectionSendOnly:
		return "sendonly"
	case DirectionRecvOnly:
		return "recvonly"
	default:
		return "unknown"
	}
}

// ParseDirection разбирает направление из конфигурации или SDP атрибута
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sendrecv":
		return DirectionSendRecv, nil
	case "sendonly":
		return DirectionSendOnly, nil
	case "recvonly":
		return DirectionRecvOnly, nil
	default:
		return DirectionSendRecv, fmt.Errorf("неизвестное направление потока: %q", s)
	}
}

// CanSend проверяет, может ли поток отправлять данные
func (d Direction) CanSend() bool {
	return d == DirectionSendRecv || d == DirectionSendOnly
}

// CanReceive проверяет, может ли поток принимать данные
func (d Direction) CanReceive() bool {
	return d == DirectionSendRecv || d == DirectionRecvOnly
}

// WireFormat определяет формат заголовка пакета на проводе
type WireFormat int

const (
	// WireFormatNative компактный заголовок sessionId|seq|ts|len (12 байт)
	WireFormatNative WireFormat = iota
	// WireFormatRTP стандартный заголовок RFC 3550 (12 байт без CSRC)
	WireFormatRTP
)

func (f WireFormat) String() string {
	switch f {
	case WireFormatNative:
		return "native"
	case WireFormatRTP:
		return "rtp"
	default:
		return "unknown"
	}
}

// ParseWireFormat разбирает формат заголовка из конфигурации
func ParseWireFormat(s string) (WireFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "native":
		return WireFormatNative, nil
	case "rtp":
		return WireFormatRTP, nil
	default:
		return WireFormatNative, fmt.Errorf("неизвестный формат заголовка: %q", s)
	}
}
