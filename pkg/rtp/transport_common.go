// Общие настройки UDP транспорта для голосового трафика.
//
// Здесь собраны константы и конфигурация сокета: размеры буферов,
// DSCP маркировка для QoS, повторное использование порта и привязка к
// интерфейсу. Платформенные вызовы setsockopt находятся в
// transport_socket_*.go.
package rtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"
)

// Общие константы для настройки транспорта
const (
	// DefaultBufferSize размер буфера чтения по умолчанию.
	// Больше MTU, чтобы обрезанная ядром датаграмма была заметна кодеку
	DefaultBufferSize = 2048

	// DefaultReceiveTimeout таймаут получения пакетов по умолчанию.
	// 100ms - баланс между отзывчивостью к отмене и нагрузкой на CPU
	DefaultReceiveTimeout = 100 * time.Millisecond

	// DefaultSendTimeout таймаут отправки пакетов по умолчанию
	DefaultSendTimeout = 50 * time.Millisecond

	// VoiceOptimizedRecvBuffer размер буфера сокета на прием
	VoiceOptimizedRecvBuffer = 65535

	// VoiceOptimizedSendBuffer размер буфера сокета на отправку
	VoiceOptimizedSendBuffer = 65535

	// DSCP значения для QoS классификации трафика согласно RFC 4594
	DSCPExpeditedForwarding = 46 // EF для интерактивного аудио
	DSCPBestEffort          = 0  // Обычный трафик без гарантий качества

	// MaxInterfaceNameLength IFNAMSIZ без завершающего нуля
	MaxInterfaceNameLength = 15
)

// ExtendedTransportConfig расширенная конфигурация UDP транспорта
type ExtendedTransportConfig struct {
	TransportConfig               // Базовая конфигурация
	ReusePort       bool          // Разрешить повторное использование порта
	DSCP            int           // DSCP маркировка для QoS (0 = не устанавливать)
	BindToDevice    string        // Привязка к сетевому интерфейсу (только Linux)
	ReceiveTimeout  time.Duration // Дедлайн одного чтения
	SendTimeout     time.Duration // Дедлайн одной записи
}

// ApplyDefaults применяет значения по умолчанию
func (etc *ExtendedTransportConfig) ApplyDefaults() {
	if etc.BufferSize == 0 {
		etc.BufferSize = DefaultBufferSize
	}
	if etc.ReceiveTimeout == 0 {
		etc.ReceiveTimeout = DefaultReceiveTimeout
	}
	if etc.SendTimeout == 0 {
		etc.SendTimeout = DefaultSendTimeout
	}
}

// Validate проверяет корректность конфигурации транспорта
func (etc *ExtendedTransportConfig) Validate() error {
	if etc.LocalAddr == "" {
		return fmt.Errorf("локальный адрес обязателен")
	}

	if etc.BufferSize < HeaderSize {
		return fmt.Errorf("размер буфера должен быть не меньше %d байт", HeaderSize)
	}

	if etc.DSCP < 0 || etc.DSCP > 63 {
		return fmt.Errorf("DSCP должен быть в диапазоне 0-63")
	}

	if len(etc.BindToDevice) > MaxInterfaceNameLength {
		return fmt.Errorf("имя интерфейса длиннее %d символов: %q", MaxInterfaceNameLength, etc.BindToDevice)
	}

	return nil
}

// listenUDP открывает сокет и применяет настройки для голосового трафика
// до bind: SO_REUSEPORT и SO_BINDTODEVICE действуют только на непривязанный сокет.
func listenUDP(localAddr *net.UDPAddr, config ExtendedTransportConfig) (*net.UDPConn, error) {
	listenConfig := net.ListenConfig{
		Control: func(network, address string, rawConn syscall.RawConn) error {
			var sockOptErr error
			err := rawConn.Control(func(fd uintptr) {
				sockOptErr = applySockOptForVoice(fd, config)
			})
			if err != nil {
				return fmt.Errorf("ошибка управления сокетом: %w", err)
			}
			return sockOptErr
		},
	}

	packetConn, err := listenConfig.ListenPacket(context.Background(), "udp", localAddr.String())
	if err != nil {
		return nil, err
	}
	return packetConn.(*net.UDPConn), nil
}

// applySockOptForVoice применяет системные настройки сокета
func applySockOptForVoice(fd uintptr, config ExtendedTransportConfig) error {
	intFd := int(fd)

	if err := setSockOptBuffers(intFd, config.BufferSize); err != nil {
		return fmt.Errorf("ошибка установки буферов: %w", err)
	}

	if config.DSCP > 0 {
		if err := setSockOptDSCP(intFd, config.DSCP); err != nil {
			return fmt.Errorf("ошибка установки DSCP: %w", err)
		}
	}

	if config.ReusePort {
		if err := setSockOptReusePort(intFd); err != nil {
			return fmt.Errorf("ошибка установки SO_REUSEPORT: %w", err)
		}
	}

	if config.BindToDevice != "" {
		if err := setSockOptBindToDevice(intFd, config.BindToDevice); err != nil {
			return fmt.Errorf("ошибка привязки к устройству %s: %w", config.BindToDevice, err)
		}
	}

	setSockOptVoiceOptimizations(intFd)
	return nil
}

// socketBufferSizes вычисляет размеры буферов сокета под размер датаграммы
func socketBufferSizes(bufferSize int) (recv, send int) {
	recv = VoiceOptimizedRecvBuffer
	send = VoiceOptimizedSendBuffer
	if bufferSize > DefaultBufferSize {
		recv = bufferSize * 32
		send = bufferSize * 16
	}
	return recv, send
}

// createUDPAddr создает *net.UDPAddr из строкового адреса с проверкой
func createUDPAddr(addr string) (*net.UDPAddr, error) {
	if addr == "" {
		return nil, fmt.Errorf("адрес не может быть пустым")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("ошибка разрешения UDP адреса '%s': %w", addr, err)
	}

	return udpAddr, nil
}

// isTemporaryError проверяет является ли ошибка временной
func isTemporaryError(err error) bool {
	if err == nil {
		return false
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EAGAIN, syscall.EINTR, syscall.ENOBUFS:
			return true
		}
	}

	return false
}
