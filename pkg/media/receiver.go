package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/arzzra/voicechat/pkg/logging"
	"github.com/arzzra/voicechat/pkg/rtp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultRateLimit лимит пакетов в секунду от одного источника
	DefaultRateLimit = 1000
	// DefaultRateBurst допустимая пачка пакетов сверх лимита
	DefaultRateBurst = 100
	// DefaultSessionTimeout время тишины, после которого сессия освобождается
	DefaultSessionTimeout = 5 * time.Second

	// maxTrackedSources ограничивает число лимитеров по адресам источников
	maxTrackedSources = 64
	// receiveErrorBackoff пауза после сбоя чтения, не являющегося таймаутом
	receiveErrorBackoff = 10 * time.Millisecond
)

// ReceiverConfig параметры получателя
type ReceiverConfig struct {
	Transport    rtp.Transport
	Codec        *rtp.Codec
	JitterBuffer *JitterBuffer

	SampleRate     int           // Для оценки джиттера в единицах времени
	SessionTimeout time.Duration // 0 - сессия не освобождается по тишине
	RateLimit      float64       // Пакетов в секунду от источника, 0 - без лимита
	RateBurst      int

	Logger  logrus.FieldLogger
	Metrics Metrics
}

// ReceiverStatistics статистика получателя
type ReceiverStatistics struct {
	Datagrams       uint64
	Accepted        uint64
	DecodeTruncated uint64
	DecodeMalformed uint64
	SessionMismatch uint64
	RateLimited     uint64
	ReceiveErrors   uint64
	SessionsAdopted uint64
	SessionsExpired uint64

	SessionID uint32 // 0 если сессии нет
	Jitter    time.Duration
}

// Receiver принимает датаграммы, проверяет сессию и передает пакеты в JitterBuffer
type Receiver struct {
	config  ReceiverConfig
	logger  logrus.FieldLogger
	metrics Metrics
	now     func() time.Time

	mutex    sync.Mutex
	session  *Session
	limiters map[string]*rate.Limiter
	stats    ReceiverStatistics

	// Оценка межпакетного джиттера (RFC 3550, A.8) в единицах сэмплов
	lastArrival   float64
	lastTimestamp uint32
	haveTransit   bool
	jitter        float64
}

// NewReceiver создает получателя
func NewReceiver(config ReceiverConfig) (*Receiver, error) {
	if config.Transport == nil || config.Codec == nil || config.JitterBuffer == nil {
		return nil, NewMediaError(ErrorCodeSessionInvalidConfig, "для получателя нужны транспорт, кодек и jitter buffer")
	}
	if config.SampleRate <= 0 {
		return nil, NewMediaError(ErrorCodeSessionInvalidConfig, "частота дискретизации должна быть положительной")
	}
	if config.RateLimit > 0 && config.RateBurst <= 0 {
		config.RateBurst = DefaultRateBurst
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	return &Receiver{
		config:   config,
		logger:   logging.WithComponent(logger, "receiver"),
		metrics:  metrics,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// Run читает транспорт до отмены контекста или закрытия транспорта
func (r *Receiver) Run(ctx context.Context) error {
	r.logger.WithField("local_addr", r.config.Transport.LocalAddr()).Info("Получатель запущен")
	defer r.logger.Info("Получатель остановлен")

	for {
		data, addr, err := r.config.Transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || rtp.IsClosed(err) {
				return nil
			}
			if rtp.IsTimeout(err) {
				continue
			}

			r.mutex.Lock()
			r.stats.ReceiveErrors++
			count := r.stats.ReceiveErrors
			r.mutex.Unlock()
			if shouldLogRepeated(count) {
				err = WrapMediaError(ErrorCodeRTPReceiveFailed, "", "ошибка чтения датаграммы", err)
				r.logger.WithError(err).WithField("count", count).Warn("Ошибка чтения из сети")
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(receiveErrorBackoff):
			}
			continue
		}

		if err := r.HandleDatagram(data, addr); err != nil {
			r.logger.WithError(err).WithField("remote_addr", addr).Debug("Датаграмма отброшена")
		}
	}
}

// HandleDatagram обрабатывает одну датаграмму. Возвращает причину отбрасывания
// или nil, если пакет передан в jitter buffer.
func (r *Receiver) HandleDatagram(data []byte, addr net.Addr) error {
	now := r.now()

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.stats.Datagrams++

	if !r.allowLocked(addr, now) {
		r.stats.RateLimited++
		r.metrics.RateLimited()
		return ErrRateLimited
	}

	packet, err := r.config.Codec.Decode(data)
	if err != nil {
		kind := "unknown"
		var decodeErr *rtp.DecodeError
		if errors.As(err, &decodeErr) {
			kind = decodeErr.Kind.String()
			if decodeErr.Kind == rtp.DecodeTruncated {
				r.stats.DecodeTruncated++
			} else {
				r.stats.DecodeMalformed++
			}
		}
		r.metrics.DecodeError(kind)
		return WrapMediaError(ErrorCodeRTPDecodeFailed, "", "ошибка разбора пакета", err)
	}

	if r.session != nil && r.session.Expired(now, r.config.SessionTimeout) {
		r.logger.WithFields(logrus.Fields{
			"session_id":    r.session.Key(),
			"last_activity": r.session.LastActivity(),
		}).Info("Сессия освобождена по таймауту")
		r.session = nil
		r.stats.SessionsExpired++
	}

	if r.session == nil {
		r.adoptLocked(packet, addr, now)
	} else if packet.SessionID != r.session.ID {
		r.stats.SessionMismatch++
		r.metrics.SessionMismatch()
		return &MediaError{
			Code:      ErrorCodeRTPSessionMismatch,
			Message:   fmt.Sprintf("пакет сессии %08x отброшен", packet.SessionID),
			SessionID: r.session.Key(),
		}
	}

	r.session.Touch(now)
	r.updateJitterLocked(packet.Timestamp, now)
	r.stats.Accepted++
	r.metrics.PacketReceived(len(data))

	r.config.JitterBuffer.Insert(packet)
	r.metrics.BufferDepth(r.config.JitterBuffer.Len())
	return nil
}

func (r *Receiver) adoptLocked(packet *rtp.Packet, addr net.Addr, now time.Time) {
	r.session = NewSession(packet.SessionID, addr, now)
	r.stats.SessionsAdopted++
	r.haveTransit = false
	r.jitter = 0
	r.config.JitterBuffer.Bind(r.session)

	r.logger.WithFields(logrus.Fields{
		"session_id":  r.session.Key(),
		"remote_addr": addr,
		"sequence":    packet.SequenceNumber,
	}).Info("Принята новая сессия")
}

// allowLocked применяет лимит пакетов для адреса источника
func (r *Receiver) allowLocked(addr net.Addr, now time.Time) bool {
	if r.config.RateLimit <= 0 || addr == nil {
		return true
	}

	key := addr.String()
	limiter, ok := r.limiters[key]
	if !ok {
		if len(r.limiters) >= maxTrackedSources {
			// Слишком много источников: начинаем учет заново
			r.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rate.Limit(r.config.RateLimit), r.config.RateBurst)
		r.limiters[key] = limiter
	}
	return limiter.AllowN(now, 1)
}

// updateJitterLocked J += (|D| - J) / 16, D - разница времен прохождения соседних пакетов
func (r *Receiver) updateJitterLocked(ts uint32, now time.Time) {
	arrival := now.Sub(r.session.AdoptedAt).Seconds() * float64(r.config.SampleRate)
	if r.haveTransit {
		// Разница timestamp со знаком переживает переполнение счетчика
		d := math.Abs((arrival - r.lastArrival) - float64(int32(ts-r.lastTimestamp)))
		r.jitter += (d - r.jitter) / 16
	}
	r.lastArrival = arrival
	r.lastTimestamp = ts
	r.haveTransit = true

	r.metrics.InterarrivalJitter(r.jitterDurationLocked())
}

func (r *Receiver) jitterDurationLocked() time.Duration {
	return time.Duration(r.jitter / float64(r.config.SampleRate) * float64(time.Second))
}

// Session возвращает текущую сессию или nil
func (r *Receiver) Session() *Session {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.session
}

// Stats возвращает копию статистики
func (r *Receiver) Stats() ReceiverStatistics {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	stats := r.stats
	if r.session != nil {
		stats.SessionID = r.session.ID
	}
	stats.Jitter = r.jitterDurationLocked()
	return stats
}

// shouldLogRepeated ограничивает логирование повторяющихся ошибок: первая и каждая 50-я
func shouldLogRepeated(count uint64) bool {
	return count == 1 || count%50 == 0
}
