// Package media определяет интерфейсы медиа слоя голосового транспорта
package media

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// CaptureSource источник аудио кадров (микрофон, файл, генератор).
// CaptureFrame блокируется до готовности кадра. Неполный последний кадр
// возвращается вместе с io.EOF.
type CaptureSource interface {
	CaptureFrame(ctx context.Context) ([]byte, error)
}

// CaptureFunc адаптер функции к CaptureSource
type CaptureFunc func(ctx context.Context) ([]byte, error)

func (f CaptureFunc) CaptureFrame(ctx context.Context) ([]byte, error) {
	return f(ctx)
}

// PlaybackSink приемник аудио кадров (динамик, файл)
type PlaybackSink interface {
	PlayFrame(frame []byte) error
}

// Metrics собирает счетчики медиа слоя.
// Метки передаются строками, чтобы пакет не зависел от конкретной реализации.
type Metrics interface {
	PacketSent(bytes int)
	SendError()
	PacketReceived(bytes int)
	DecodeError(kind string)
	SessionMismatch()
	RateLimited()
	FramePlayed(kind string)
	BufferEvent(event string, count int)
	BufferDepth(depth int)
	InterarrivalJitter(jitter time.Duration)
}

// NoopMetrics реализация Metrics, которая ничего не делает
type NoopMetrics struct{}

func (NoopMetrics) PacketSent(int)                   {}
func (NoopMetrics) SendError()                       {}
func (NoopMetrics) PacketReceived(int)               {}
func (NoopMetrics) DecodeError(string)               {}
func (NoopMetrics) SessionMismatch()                 {}
func (NoopMetrics) RateLimited()                     {}
func (NoopMetrics) FramePlayed(string)               {}
func (NoopMetrics) BufferEvent(string, int)          {}
func (NoopMetrics) BufferDepth(int)                  {}
func (NoopMetrics) InterarrivalJitter(time.Duration) {}

// JitterListener получает события jitter buffer.
// Вызывается после освобождения блокировки буфера, из горутины Insert или Pull.
type JitterListener interface {
	OnBufferEvent(event BufferEvent)
}

// JitterListenerFunc адаптер функции к JitterListener
type JitterListenerFunc func(event BufferEvent)

func (f JitterListenerFunc) OnBufferEvent(event BufferEvent) {
	f(event)
}

// MultiListener рассылает события нескольким слушателям
type MultiListener []JitterListener

func (m MultiListener) OnBufferEvent(event BufferEvent) {
	for _, listener := range m {
		if listener != nil {
			listener.OnBufferEvent(event)
		}
	}
}

// NewMetricsListener передает события jitter buffer в метрики
func NewMetricsListener(metrics Metrics) JitterListener {
	return JitterListenerFunc(func(event BufferEvent) {
		metrics.BufferEvent(event.Type.String(), event.Count)
	})
}

// NewLoggingListener пишет потери и переполнения в лог
func NewLoggingListener(logger logrus.FieldLogger) JitterListener {
	return JitterListenerFunc(func(event BufferEvent) {
		entry := logger.WithFields(logrus.Fields{
			"event":      event.Type.String(),
			"sequence":   event.SequenceNumber,
			"count":      event.Count,
			"session_id": sessionKey(event.SessionID),
		})
		switch event.Type {
		case EventOverflow:
			entry.Warn("Переполнение jitter buffer")
		case EventLoss:
			entry.Debug("Потеря пакета замаскирована")
		default:
			entry.Debug("Пакет отброшен jitter buffer")
		}
	})
}
