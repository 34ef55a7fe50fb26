package media

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/arzzra/voicechat/pkg/logging"
	"github.com/sirupsen/logrus"
)

// PlayoutConfig параметры планировщика воспроизведения
type PlayoutConfig struct {
	JitterBuffer  *JitterBuffer
	Sink          PlaybackSink
	FrameDuration time.Duration // Период тактов
	FrameSize     int           // Размер кадра тишины

	// FillSilence подает тишину в приемник, когда кадра нет,
	// чтобы устройство воспроизведения не голодало
	FillSilence bool

	Logger  logrus.FieldLogger
	Metrics Metrics
}

// PlayoutStatistics статистика воспроизведения
type PlayoutStatistics struct {
	Ticks     uint64
	Audio     uint64
	Concealed uint64
	Empty     uint64
	Filled    uint64 // Пустых тактов, заполненных тишиной
}

// Playout раз в период кадра забирает кадр из JitterBuffer и передает в приемник
type Playout struct {
	config  PlayoutConfig
	logger  logrus.FieldLogger
	metrics Metrics
	silence []byte

	ticks     atomic.Uint64
	audio     atomic.Uint64
	concealed atomic.Uint64
	empty     atomic.Uint64
	filled    atomic.Uint64
}

// NewPlayout создает планировщик воспроизведения
func NewPlayout(config PlayoutConfig) (*Playout, error) {
	if config.JitterBuffer == nil || config.Sink == nil {
		return nil, NewMediaError(ErrorCodeSessionInvalidConfig, "для воспроизведения нужны jitter buffer и приемник")
	}
	if config.FrameDuration <= 0 || config.FrameSize <= 0 {
		return nil, NewMediaError(ErrorCodeSessionInvalidConfig, "период и размер кадра должны быть положительными")
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	return &Playout{
		config:  config,
		logger:  logging.WithComponent(logger, "playout"),
		metrics: metrics,
		silence: make([]byte, config.FrameSize),
	}, nil
}

// Run тактирует воспроизведение до отмены контекста.
// Сбой приемника возвращается как *AudioDeviceError.
func (p *Playout) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.FrameDuration)
	defer ticker.Stop()

	p.logger.WithField("period", p.config.FrameDuration).Info("Воспроизведение запущено")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Воспроизведение остановлено")
			return nil
		case <-ticker.C:
			if _, err := p.Step(); err != nil {
				return err
			}
		}
	}
}

// Step выполняет один такт воспроизведения
func (p *Playout) Step() (Frame, error) {
	frame := p.config.JitterBuffer.Pull()
	p.ticks.Add(1)

	var payload []byte
	switch frame.Kind {
	case FrameAudio:
		p.audio.Add(1)
		payload = frame.Payload
	case FrameSilence:
		p.concealed.Add(1)
		payload = frame.Payload
	default:
		p.empty.Add(1)
		if p.config.FillSilence {
			p.filled.Add(1)
			payload = p.silence
		}
	}
	p.metrics.FramePlayed(frame.Kind.String())

	if payload == nil {
		return frame, nil
	}
	if err := p.config.Sink.PlayFrame(payload); err != nil {
		return frame, NewAudioDeviceError("playback", err)
	}
	return frame, nil
}

// Stats возвращает статистику воспроизведения
func (p *Playout) Stats() PlayoutStatistics {
	return PlayoutStatistics{
		Ticks:     p.ticks.Load(),
		Audio:     p.audio.Load(),
		Concealed: p.concealed.Load(),
		Empty:     p.empty.Load(),
		Filled:    p.filled.Load(),
	}
}
