package rtp

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// DropFunc решает, потерять ли датаграмму. index - порядковый номер
// отправки на этом конце, начиная с нуля.
type DropFunc func(index uint64, data []byte) bool

// MemoryTransportConfig конфигурация транспорта в памяти
type MemoryTransportConfig struct {
	QueueSize      int           // Емкость очереди приема (переполнение = потеря)
	ReceiveTimeout time.Duration // Аналог дедлайна чтения UDP
	Drop           DropFunc      // Имитация потерь на отправке
}

type memoryAddr string

func (a memoryAddr) Network() string { return "memory" }
func (a memoryAddr) String() string  { return string(a) }

type datagram struct {
	data []byte
	from net.Addr
}

// MemoryTransport реализует Transport поверх каналов.
// Используется для детерминированных сценариев потерь без сети.
type MemoryTransport struct {
	local  memoryAddr
	peer   *MemoryTransport
	config MemoryTransportConfig

	inbox     chan datagram
	closed    chan struct{}
	closeOnce sync.Once

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewMemoryTransportPair создает два соединенных конца
func NewMemoryTransportPair(config MemoryTransportConfig) (*MemoryTransport, *MemoryTransport) {
	if config.QueueSize <= 0 {
		config.QueueSize = 256
	}
	if config.ReceiveTimeout <= 0 {
		config.ReceiveTimeout = DefaultReceiveTimeout
	}

	a := newMemoryTransport("memory-a", config)
	b := newMemoryTransport("memory-b", config)
	a.peer = b
	b.peer = a
	return a, b
}

func newMemoryTransport(name string, config MemoryTransportConfig) *MemoryTransport {
	return &MemoryTransport{
		local:  memoryAddr(name),
		config: config,
		inbox:  make(chan datagram, config.QueueSize),
		closed: make(chan struct{}),
	}
}

// Send передает копию датаграммы второму концу
func (t *MemoryTransport) Send(data []byte) error {
	if !t.IsActive() {
		return &NetworkError{Type: ErrorTypeClosed, Operation: "memory write", Err: ErrTransportClosed}
	}
	if t.peer == nil {
		return &NetworkError{Type: ErrorTypePermanent, Operation: "memory write", Err: ErrNoRemoteAddr}
	}

	index := t.sent.Add(1) - 1
	if t.config.Drop != nil && t.config.Drop(index, data) {
		t.dropped.Add(1)
		return nil
	}

	return t.peer.deliver(data, t.local)
}

// Inject кладет произвольную датаграмму в очередь приема этого конца
func (t *MemoryTransport) Inject(data []byte, from net.Addr) error {
	return t.deliver(data, from)
}

func (t *MemoryTransport) deliver(data []byte, from net.Addr) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case <-t.closed:
		// Получатель закрыт: датаграмма теряется, как в UDP
		return nil
	default:
	}

	select {
	case t.inbox <- datagram{data: buf, from: from}:
	default:
		t.dropped.Add(1)
	}
	return nil
}

// Receive ожидает датаграмму не дольше ReceiveTimeout
func (t *MemoryTransport) Receive(ctx context.Context) ([]byte, net.Addr, error) {
	timer := time.NewTimer(t.config.ReceiveTimeout)
	defer timer.Stop()

	select {
	case dg := <-t.inbox:
		return dg.data, dg.from, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case <-t.closed:
		return nil, nil, &NetworkError{Type: ErrorTypeClosed, Operation: "memory read", Err: ErrTransportClosed}
	case <-timer.C:
		return nil, nil, &NetworkError{Type: ErrorTypeTimeout, Operation: "memory read", Err: os.ErrDeadlineExceeded}
	}
}

// LocalAddr возвращает имя этого конца
func (t *MemoryTransport) LocalAddr() net.Addr {
	return t.local
}

// RemoteAddr возвращает имя второго конца
func (t *MemoryTransport) RemoteAddr() net.Addr {
	if t.peer == nil {
		return nil
	}
	return t.peer.local
}

// SetRemoteAddr допускает только адрес второго конца пары
func (t *MemoryTransport) SetRemoteAddr(addr string) error {
	if t.peer == nil || addr != string(t.peer.local) {
		return fmt.Errorf("неизвестный адрес %q для транспорта в памяти", addr)
	}
	return nil
}

// Close закрывает конец и прерывает ожидающий Receive
func (t *MemoryTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
	})
	return nil
}

// IsActive проверяет, что конец не закрыт
func (t *MemoryTransport) IsActive() bool {
	select {
	case <-t.closed:
		return false
	default:
		return true
	}
}

// Sent количество вызовов Send, включая потерянные
func (t *MemoryTransport) Sent() uint64 {
	return t.sent.Load()
}

// Dropped количество потерянных датаграмм (имитация и переполнение очереди)
func (t *MemoryTransport) Dropped() uint64 {
	return t.dropped.Load()
}
