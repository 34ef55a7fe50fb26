// Package voice собирает голосовой узел: отправитель, получатель, jitter buffer
// и воспроизведение поверх одного датаграммного транспорта.
//
// Жизненный цикл узла описывается конечным автоматом:
//
//	idle -> running -> stopping -> stopped
//	          \__________\_______-> failed
//
// Сбой звукового устройства в любой активности останавливает весь узел,
// конец потока источника останавливает только отправку.
package voice

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/arzzra/voicechat/pkg/audio"
	"github.com/arzzra/voicechat/pkg/config"
	"github.com/arzzra/voicechat/pkg/logging"
	"github.com/arzzra/voicechat/pkg/media"
	"github.com/arzzra/voicechat/pkg/metrics"
	"github.com/arzzra/voicechat/pkg/rtp"
	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
)

// State состояние узла
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
)

// Options внешние зависимости узла
type Options struct {
	Source media.CaptureSource // Обязателен при отправке
	Sink   media.PlaybackSink  // Обязателен при приеме

	// Transport готовый транспорт. nil - открыть UDP сокет по конфигурации
	Transport rtp.Transport

	Logger logrus.FieldLogger
	// Metrics nil - Prometheus сборщик при metrics.enabled, иначе без метрик
	Metrics media.Metrics
}

// Statistics сводная статистика узла
type Statistics struct {
	ID    string
	State State

	Sender       media.SenderStatistics
	Receiver     media.ReceiverStatistics
	JitterBuffer media.JitterBufferStatistics
	Playout      media.PlayoutStatistics
}

// Peer голосовой узел
type Peer struct {
	id        string
	config    *config.Config
	options   Options
	format    audio.Format
	direction rtp.Direction
	logger    logrus.FieldLogger
	metrics   media.Metrics
	collector *metrics.Collector

	mutex     sync.Mutex
	machine   *fsm.FSM
	transport rtp.Transport
	sender    *media.Sender
	receiver  *media.Receiver
	buffer    *media.JitterBuffer
	playout   *media.Playout

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	errMutex sync.Mutex
	err      error
}

// NewPeer создает узел. Сеть и устройства не трогаются до Start.
func NewPeer(cfg *config.Config, options Options) (*Peer, error) {
	if cfg == nil {
		return nil, media.NewMediaError(media.ErrorCodeSessionInvalidConfig, "конфигурация обязательна")
	}
	if err := cfg.Validate(); err != nil {
		return nil, media.WrapMediaError(media.ErrorCodeSessionInvalidConfig, "", "неверная конфигурация", err)
	}

	direction, err := rtp.ParseDirection(cfg.Network.Direction)
	if err != nil {
		return nil, media.WrapMediaError(media.ErrorCodeSessionInvalidConfig, "", "неверное направление", err)
	}
	if direction.CanSend() && options.Source == nil {
		return nil, media.NewMediaError(media.ErrorCodeSessionInvalidConfig, "для отправки нужен источник звука")
	}
	if direction.CanReceive() && options.Sink == nil {
		return nil, media.NewMediaError(media.ErrorCodeSessionInvalidConfig, "для приема нужен приемник звука")
	}

	id := uuid.NewString()

	logger := options.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.WithComponent(logger, "peer").WithField("peer_id", id)

	p := &Peer{
		id:      id,
		config:  cfg,
		options: options,
		format: audio.Format{
			SampleRate:      cfg.Audio.SampleRate,
			SamplesPerFrame: cfg.Audio.SamplesPerFrame,
			Channels:        cfg.Audio.Channels,
			BytesPerSample:  cfg.Audio.BytesPerSample,
		},
		direction: direction,
		logger:    logger,
		metrics:   options.Metrics,
		done:      make(chan struct{}),
	}

	if p.metrics == nil {
		if cfg.Metrics.Enabled {
			p.collector = metrics.NewCollector(id)
			p.metrics = p.collector
		} else {
			p.metrics = media.NoopMetrics{}
		}
	}

	p.initFSM()
	return p, nil
}

func (p *Peer) initFSM() {
	p.machine = fsm.NewFSM(
		string(StateIdle),
		fsm.Events{
			{Name: "start", Src: []string{string(StateIdle)}, Dst: string(StateRunning)},
			{Name: "stop", Src: []string{string(StateRunning)}, Dst: string(StateStopping)},
			{Name: "finish", Src: []string{string(StateStopping)}, Dst: string(StateStopped)},
			{Name: "fail", Src: []string{string(StateIdle), string(StateRunning), string(StateStopping)}, Dst: string(StateFailed)},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				p.logger.WithFields(logrus.Fields{
					"event": e.Event,
					"from":  e.Src,
					"to":    e.Dst,
				}).Debug("Смена состояния узла")
			},
		},
	)
}

// event выполняет переход, вызывается под p.mutex
func (p *Peer) event(name string) error {
	return p.machine.Event(context.Background(), name)
}

// Start открывает транспорт и запускает активности согласно направлению.
// При ошибке ничего не остается запущенным.
func (p *Peer) Start(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	switch State(p.machine.Current()) {
	case StateIdle:
	case StateStopped, StateFailed:
		// Узел одноразовый: повторный запуск требует нового Peer
		return media.ErrSessionClosed
	default:
		return media.ErrAlreadyStarted
	}

	if err := p.build(); err != nil {
		if p.options.Transport == nil && p.transport != nil {
			p.transport.Close()
		}
		p.transport = nil
		p.setErr(err)
		_ = p.event("fail")
		close(p.done)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	if p.sender != nil {
		p.spawn(runCtx, "sender", func(ctx context.Context) error {
			err := p.sender.Run(ctx)
			if err == nil && !p.direction.CanReceive() {
				// Отправлять больше нечего, принимать не нужно
				p.logger.Info("Источник исчерпан, узел останавливается")
				cancel()
			}
			return err
		})
	}
	if p.receiver != nil {
		p.spawn(runCtx, "receiver", p.receiver.Run)
		p.spawn(runCtx, "playout", p.playout.Run)
	}

	if p.collector != nil {
		go func() {
			err := p.collector.Serve(runCtx, p.config.Metrics.Address, p.config.Metrics.Path, p.logger)
			if err != nil {
				p.logger.WithError(err).Error("Сервер метрик остановлен с ошибкой")
			}
		}()
	}

	_ = p.event("start")
	go p.supervise(runCtx)

	p.logger.WithFields(logrus.Fields{
		"direction":   p.direction.String(),
		"local_addr":  p.transport.LocalAddr(),
		"remote_addr": p.transport.RemoteAddr(),
		"format":      p.format.String(),
	}).Info("Узел запущен")

	return nil
}

// build создает транспорт и компоненты, вызывается под p.mutex
func (p *Peer) build() error {
	cfg := p.config

	p.transport = p.options.Transport
	if p.transport == nil {
		transport, err := rtp.NewUDPTransport(rtp.ExtendedTransportConfig{
			TransportConfig: rtp.TransportConfig{
				LocalAddr:  cfg.Network.LocalAddr(),
				RemoteAddr: cfg.Network.RemoteAddr(),
				BufferSize: cfg.Network.BufferSize,
			},
			DSCP:         cfg.Network.DSCP,
			ReusePort:    cfg.Network.ReusePort,
			BindToDevice: cfg.Network.Interface,
		})
		if err != nil {
			return fmt.Errorf("не удалось открыть сокет %s: %w", cfg.Network.LocalAddr(), err)
		}
		p.transport = transport
	}

	wireFormat, err := rtp.ParseWireFormat(cfg.Session.WireFormat)
	if err != nil {
		return err
	}
	codec, err := rtp.NewCodec(rtp.CodecConfig{
		FrameSize:   p.format.FrameSize(),
		WireFormat:  wireFormat,
		PayloadType: uint8(cfg.Session.PayloadType),
	})
	if err != nil {
		return err
	}

	if p.direction.CanSend() {
		if p.transport.RemoteAddr() == nil {
			return media.NewMediaError(media.ErrorCodeSessionInvalidConfig, "для отправки нужен адрес удаленного узла")
		}

		clock, err := rtp.NewSequenceClock(rtp.SequenceClockConfig{
			SamplesPerFrame:   uint32(cfg.Audio.SamplesPerFrame),
			RandomizeSequence: true,
		})
		if err != nil {
			return err
		}

		p.sender, err = media.NewSender(media.SenderConfig{
			Source:    p.options.Source,
			Transport: p.transport,
			Codec:     codec,
			Clock:     clock,
			Logger:    p.logger,
			Metrics:   p.metrics,
		})
		if err != nil {
			return err
		}
	}

	if p.direction.CanReceive() {
		overflow, err := media.ParseOverflowPolicy(cfg.Jitter.OverflowPolicy)
		if err != nil {
			return err
		}
		concealment, err := media.ParseConcealmentMode(cfg.Jitter.Concealment)
		if err != nil {
			return err
		}

		p.buffer, err = media.NewJitterBuffer(media.JitterBufferConfig{
			FrameSize:       p.format.FrameSize(),
			SamplesPerFrame: uint32(cfg.Audio.SamplesPerFrame),
			PlayoutDelay:    cfg.Jitter.PlayoutDelayFrames,
			Capacity:        cfg.Jitter.BufferCapacityFrames,
			LossTolerance:   cfg.Jitter.LossToleranceFrames,
			OverflowPolicy:  overflow,
			Concealment:     concealment,
			Listener: media.MultiListener{
				media.NewMetricsListener(p.metrics),
				media.NewLoggingListener(logging.WithComponent(p.logger, "jitter")),
			},
		})
		if err != nil {
			return err
		}

		p.receiver, err = media.NewReceiver(media.ReceiverConfig{
			Transport:      p.transport,
			Codec:          codec,
			JitterBuffer:   p.buffer,
			SampleRate:     cfg.Audio.SampleRate,
			SessionTimeout: cfg.Session.Timeout,
			RateLimit:      cfg.Network.RateLimitPPS,
			Logger:         p.logger,
			Metrics:        p.metrics,
		})
		if err != nil {
			return err
		}

		p.playout, err = media.NewPlayout(media.PlayoutConfig{
			JitterBuffer:  p.buffer,
			Sink:          p.options.Sink,
			FrameDuration: p.format.FrameDuration(),
			FrameSize:     p.format.FrameSize(),
			FillSilence:   cfg.Jitter.FillSilence,
			Logger:        p.logger,
			Metrics:       p.metrics,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// spawn запускает активность. Ошибка активности останавливает узел.
func (p *Peer) spawn(ctx context.Context, name string, run func(context.Context) error) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if err := run(ctx); err != nil {
			p.logger.WithError(err).WithField("activity", name).Error("Активность завершилась с ошибкой")
			p.setErr(fmt.Errorf("%s: %w", name, err))
			p.cancel()
		}
	}()
}

// supervise ждет отмены и выполняет остановку: закрывает транспорт и
// устройства, чтобы прервать блокирующие вызовы, и ждет активности
func (p *Peer) supervise(ctx context.Context) {
	<-ctx.Done()

	p.mutex.Lock()
	if p.machine.Is(string(StateRunning)) {
		_ = p.event("stop")
	}
	p.mutex.Unlock()

	if err := p.transport.Close(); err != nil {
		p.logger.WithError(err).Debug("Ошибка закрытия транспорта")
	}
	closeIfCloser(p.options.Source, p.logger)

	p.wg.Wait()

	// Приемник закрываем после остановки воспроизведения: WAV дописывает заголовок
	closeIfCloser(p.options.Sink, p.logger)

	p.mutex.Lock()
	if p.Err() != nil {
		_ = p.event("fail")
	} else {
		_ = p.event("finish")
	}
	p.mutex.Unlock()

	p.logger.WithField("state", p.State()).Info("Узел остановлен")
	close(p.done)
}

func closeIfCloser(v interface{}, logger logrus.FieldLogger) {
	if closer, ok := v.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			logger.WithError(err).Debug("Ошибка закрытия устройства")
		}
	}
}

func (p *Peer) setErr(err error) {
	p.errMutex.Lock()
	defer p.errMutex.Unlock()
	if p.err == nil {
		p.err = err
	}
}

// Err первая фатальная ошибка узла
func (p *Peer) Err() error {
	p.errMutex.Lock()
	defer p.errMutex.Unlock()
	return p.err
}

// Stop останавливает узел и возвращает первую фатальную ошибку
func (p *Peer) Stop() error {
	p.mutex.Lock()
	if p.machine.Is(string(StateIdle)) {
		p.mutex.Unlock()
		return media.ErrNotStarted
	}
	cancel := p.cancel
	p.mutex.Unlock()

	if cancel != nil {
		cancel()
	}
	<-p.done
	return p.Err()
}

// Wait блокируется до остановки узла
func (p *Peer) Wait() error {
	if p.State() == StateIdle {
		return media.ErrNotStarted
	}
	<-p.done
	return p.Err()
}

// Done закрывается после полной остановки узла
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// ID идентификатор узла
func (p *Peer) ID() string {
	return p.id
}

// State текущее состояние
func (p *Peer) State() State {
	return State(p.machine.Current())
}

// Format формат аудио потока
func (p *Peer) Format() audio.Format {
	return p.format
}

// Direction направление потока
func (p *Peer) Direction() rtp.Direction {
	return p.direction
}

// LocalAddr адрес транспорта, пустая строка до запуска
func (p *Peer) LocalAddr() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.transport == nil || p.transport.LocalAddr() == nil {
		return ""
	}
	return p.transport.LocalAddr().String()
}

// Collector сборщик Prometheus, если узел создал его сам
func (p *Peer) Collector() *metrics.Collector {
	return p.collector
}

// Stats собирает статистику всех компонентов
func (p *Peer) Stats() Statistics {
	p.mutex.Lock()
	sender, receiver, buffer, playout := p.sender, p.receiver, p.buffer, p.playout
	p.mutex.Unlock()

	stats := Statistics{
		ID:    p.id,
		State: p.State(),
	}
	if sender != nil {
		stats.Sender = sender.Stats()
	}
	if receiver != nil {
		stats.Receiver = receiver.Stats()
	}
	if buffer != nil {
		stats.JitterBuffer = buffer.Stats()
	}
	if playout != nil {
		stats.Playout = playout.Stats()
	}
	return stats
}
