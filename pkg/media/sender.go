package media

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/arzzra/voicechat/pkg/logging"
	"github.com/arzzra/voicechat/pkg/rtp"
	"github.com/sirupsen/logrus"
)

// SenderConfig параметры отправителя
type SenderConfig struct {
	Source    CaptureSource
	Transport rtp.Transport
	Codec     *rtp.Codec
	Clock     *rtp.SequenceClock

	Logger  logrus.FieldLogger
	Metrics Metrics
}

// SenderStatistics статистика отправителя
type SenderStatistics struct {
	Frames       uint64 // Захвачено кадров
	PacketsSent  uint64
	BytesSent    uint64
	SendErrors   uint64
	PaddedFrames uint64 // Неполных кадров, дополненных тишиной
}

// Sender захватывает кадры, нумерует их и отправляет в сеть.
// SequenceClock принадлежит отправителю и используется только из Run.
type Sender struct {
	config  SenderConfig
	logger  logrus.FieldLogger
	metrics Metrics

	frames       atomic.Uint64
	packetsSent  atomic.Uint64
	bytesSent    atomic.Uint64
	sendErrors   atomic.Uint64
	paddedFrames atomic.Uint64
}

// NewSender создает отправителя
func NewSender(config SenderConfig) (*Sender, error) {
	if config.Source == nil || config.Transport == nil || config.Codec == nil || config.Clock == nil {
		return nil, NewMediaError(ErrorCodeSessionInvalidConfig, "для отправителя нужны источник, транспорт, кодек и генератор номеров")
	}
	if config.Codec.FrameSize() <= 0 {
		return nil, NewMediaError(ErrorCodeSessionInvalidConfig, "для отправителя нужен кодек с фиксированным размером кадра")
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	return &Sender{
		config:  config,
		logger:  logging.WithComponent(logger, "sender").WithField("session_id", sessionKey(config.Clock.SessionID())),
		metrics: metrics,
	}, nil
}

// Run отправляет кадры до отмены контекста или конца потока источника.
// Конец потока (io.EOF) - нормальное завершение, сбой источника возвращается
// как *AudioDeviceError, ошибка кодирования - как есть.
func (s *Sender) Run(ctx context.Context) error {
	s.logger.WithField("remote_addr", s.config.Transport.RemoteAddr()).Info("Отправитель запущен")

	for {
		if ctx.Err() != nil {
			s.logger.Info("Отправитель остановлен")
			return nil
		}

		frame, err := s.config.Source.CaptureFrame(ctx)
		eof := errors.Is(err, io.EOF)
		if err != nil && !eof {
			if ctx.Err() != nil {
				// Источник закрыт при остановке
				s.logger.Info("Отправитель остановлен")
				return nil
			}
			return NewAudioDeviceError("capture", err)
		}

		if len(frame) > 0 {
			if err := s.sendFrame(frame); err != nil {
				return err
			}
		}

		if eof {
			s.logger.WithField("frames", s.frames.Load()).Info("Источник завершил поток")
			return nil
		}
	}
}

// sendFrame делит данные на кадры FrameSize, последний дополняется тишиной
func (s *Sender) sendFrame(data []byte) error {
	frameSize := s.config.Codec.FrameSize()

	for len(data) > 0 {
		chunk := data
		if len(chunk) > frameSize {
			chunk = data[:frameSize]
		}
		data = data[len(chunk):]

		if len(chunk) < frameSize {
			padded := make([]byte, frameSize)
			copy(padded, chunk)
			chunk = padded
			s.paddedFrames.Add(1)
		}
		s.frames.Add(1)

		seq, ts := s.config.Clock.Next()
		packet, err := s.config.Codec.Encode(s.config.Clock.SessionID(), seq, ts, chunk)
		if err != nil {
			return err
		}

		if err := s.config.Transport.Send(packet); err != nil {
			err = WrapMediaError(ErrorCodeRTPSendFailed, sessionKey(s.config.Clock.SessionID()), "ошибка отправки пакета", err)
			count := s.sendErrors.Add(1)
			s.metrics.SendError()
			if shouldLogRepeated(count) {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"sequence": seq,
					"count":    count,
				}).Warn("Ошибка отправки пакета")
			}
			continue
		}

		s.packetsSent.Add(1)
		s.bytesSent.Add(uint64(len(packet)))
		s.metrics.PacketSent(len(packet))
	}
	return nil
}

// Stats возвращает статистику отправителя
func (s *Sender) Stats() SenderStatistics {
	return SenderStatistics{
		Frames:       s.frames.Load(),
		PacketsSent:  s.packetsSent.Load(),
		BytesSent:    s.bytesSent.Load(),
		SendErrors:   s.sendErrors.Load(),
		PaddedFrames: s.paddedFrames.Load(),
	}
}

// SessionID идентификатор исходящего потока
func (s *Sender) SessionID() uint32 {
	return s.config.Clock.SessionID()
}

func sessionKey(id uint32) string {
	return (&Session{ID: id}).Key()
}
