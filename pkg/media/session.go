package media

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// Session описывает принятый удаленный поток.
// Принадлежит Receiver и передается в JitterBuffer через Bind.
type Session struct {
	ID         uint32
	RemoteAddr net.Addr
	AdoptedAt  time.Time

	mutex        sync.RWMutex
	lastActivity time.Time
	packets      uint64
}

// NewSession создает сессию для потока с указанным идентификатором
func NewSession(id uint32, remote net.Addr, now time.Time) *Session {
	return &Session{
		ID:           id,
		RemoteAddr:   remote,
		AdoptedAt:    now,
		lastActivity: now,
	}
}

// Touch отмечает получение пакета
func (s *Session) Touch(now time.Time) {
	s.mutex.Lock()
	s.lastActivity = now
	s.packets++
	s.mutex.Unlock()
}

// LastActivity время последнего пакета
func (s *Session) LastActivity() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActivity
}

// Packets количество пакетов сессии
func (s *Session) Packets() uint64 {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.packets
}

// Expired проверяет отсутствие пакетов дольше timeout
func (s *Session) Expired(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	return now.Sub(s.LastActivity()) > timeout
}

// Key строковый идентификатор для логов и ошибок
func (s *Session) Key() string {
	return fmt.Sprintf("%08x", s.ID)
}

func (s *Session) String() string {
	return fmt.Sprintf("Session{id=%s remote=%v}", s.Key(), s.RemoteAddr)
}
