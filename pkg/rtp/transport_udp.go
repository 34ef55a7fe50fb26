package rtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

var (
	// ErrTransportClosed транспорт закрыт
	ErrTransportClosed = errors.New("транспорт не активен")
	// ErrNoRemoteAddr адрес назначения не известен
	ErrNoRemoteAddr = errors.New("удаленный адрес не установлен")
)

// UDPTransport реализует Transport интерфейс для UDP.
// Оптимизирован для телефонии (низкая латентность)
type UDPTransport struct {
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr
	config     ExtendedTransportConfig

	active bool
	mutex  sync.RWMutex
}

// NewUDPTransport создает новый UDP транспорт
func NewUDPTransport(config ExtendedTransportConfig) (*UDPTransport, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("неверная конфигурация: %w", err)
	}

	localAddr, err := createUDPAddr(config.LocalAddr)
	if err != nil {
		return nil, fmt.Errorf("ошибка разрешения локального адреса: %w", err)
	}

	var remoteAddr *net.UDPAddr
	if config.RemoteAddr != "" {
		remoteAddr, err = createUDPAddr(config.RemoteAddr)
		if err != nil {
			return nil, fmt.Errorf("ошибка разрешения удаленного адреса: %w", err)
		}
	}

	// Сокет не соединяется с удаленной стороной: адрес может смениться
	// после получения первого пакета
	conn, err := listenUDP(localAddr, config)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания UDP соединения: %w", err)
	}

	return &UDPTransport{
		conn:       conn,
		remoteAddr: remoteAddr,
		config:     config,
		active:     true,
	}, nil
}

// Send отправляет датаграмму по UDP
func (t *UDPTransport) Send(data []byte) error {
	t.mutex.RLock()
	active := t.active
	conn := t.conn
	remoteAddr := t.remoteAddr
	t.mutex.RUnlock()

	if !active {
		return &NetworkError{Type: ErrorTypeClosed, Operation: "UDP write", Err: ErrTransportClosed}
	}
	if remoteAddr == nil {
		return &NetworkError{Type: ErrorTypePermanent, Operation: "UDP write", Err: ErrNoRemoteAddr}
	}
	if err := validatePacketSize(len(data)); err != nil {
		return fmt.Errorf("невалидный размер исходящего пакета: %w", err)
	}

	if t.config.SendTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.config.SendTimeout))
	}
	if _, err := conn.WriteToUDP(data, remoteAddr); err != nil {
		return classifyNetworkError("UDP write", err)
	}
	return nil
}

// Receive получает датаграмму по UDP.
// Ожидание ограничено ReceiveTimeout, чтобы отмена контекста замечалась быстро.
func (t *UDPTransport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	t.mutex.RLock()
	active := t.active
	conn := t.conn
	bufferSize := t.config.BufferSize
	timeout := t.config.ReceiveTimeout
	t.mutex.RUnlock()

	if !active {
		return nil, nil, &NetworkError{Type: ErrorTypeClosed, Operation: "UDP read", Err: ErrTransportClosed}
	}

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}

	buffer := make([]byte, bufferSize)
	conn.SetReadDeadline(time.Now().Add(timeout))

	n, addr, err := conn.ReadFromUDP(buffer)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}
		return nil, nil, classifyNetworkError("UDP read", err)
	}

	// Автоматически устанавливаем удаленный адрес при первом пакете
	t.mutex.Lock()
	if t.remoteAddr == nil {
		t.remoteAddr = addr
	}
	t.mutex.Unlock()

	return buffer[:n], addr, nil
}

// LocalAddr возвращает локальный адрес
func (t *UDPTransport) LocalAddr() net.Addr {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// RemoteAddr возвращает удаленный адрес
func (t *UDPTransport) RemoteAddr() net.Addr {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	if t.remoteAddr == nil {
		return nil
	}
	return t.remoteAddr
}

// SetRemoteAddr устанавливает удаленный адрес
func (t *UDPTransport) SetRemoteAddr(addr string) error {
	remoteAddr, err := createUDPAddr(addr)
	if err != nil {
		return fmt.Errorf("ошибка разрешения удаленного адреса: %w", err)
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.remoteAddr = remoteAddr

	return nil
}

// Close закрывает транспорт
func (t *UDPTransport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.active {
		return nil
	}

	t.active = false

	if t.conn != nil {
		return t.conn.Close()
	}

	return nil
}

// IsActive проверяет активность транспорта
func (t *UDPTransport) IsActive() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.active
}

// validatePacketSize проверяет размер датаграммы перед отправкой
func validatePacketSize(size int) error {
	if size < HeaderSize {
		return fmt.Errorf("пакет слишком мал: %d байт (минимум %d)", size, HeaderSize)
	}
	if size > MaxDatagramSize {
		return fmt.Errorf("пакет слишком велик: %d байт (максимум %d)", size, MaxDatagramSize)
	}
	return nil
}
