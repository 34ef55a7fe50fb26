package rtp

import (
	"context"
	"net"
)

// Transport определяет интерфейс для передачи датаграмм.
// Транспорт не разбирает содержимое: кодирование выполняет Codec.
type Transport interface {
	// Send отправляет датаграмму удаленной стороне
	Send(data []byte) error

	// Receive получает датаграмму с указанием источника.
	// Может вернуть ошибку таймаута (IsTimeout), после чего вызов следует повторить.
	Receive(ctx context.Context) ([]byte, net.Addr, error)

	// LocalAddr возвращает локальный адрес транспорта
	LocalAddr() net.Addr

	// RemoteAddr возвращает удаленный адрес транспорта (если известен)
	RemoteAddr() net.Addr

	// SetRemoteAddr устанавливает адрес назначения
	SetRemoteAddr(addr string) error

	// Close закрывает транспорт и прерывает ожидающий Receive
	Close() error

	// IsActive проверяет активность транспорта
	IsActive() bool
}

// TransportConfig базовая конфигурация для транспорта
type TransportConfig struct {
	LocalAddr  string // Локальный адрес для привязки
	RemoteAddr string // Удаленный адрес для отправки (опционально)
	BufferSize int    // Размер буфера для чтения
}

// DefaultTransportConfig возвращает конфигурацию по умолчанию
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		LocalAddr:  ":5004",
		BufferSize: DefaultBufferSize,
	}
}
