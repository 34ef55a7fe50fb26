// Package metrics экспортирует счетчики голосового транспорта в Prometheus
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/arzzra/voicechat/pkg/media"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "voicechat"

// Collector реализует media.Metrics поверх собственного реестра Prometheus.
// Отдельный реестр позволяет держать несколько узлов в одном процессе.
type Collector struct {
	registry *prometheus.Registry

	packetsSent     prometheus.Counter
	bytesSent       prometheus.Counter
	sendErrors      prometheus.Counter
	packetsReceived prometheus.Counter
	bytesReceived   prometheus.Counter
	decodeErrors    *prometheus.CounterVec
	sessionMismatch prometheus.Counter
	rateLimited     prometheus.Counter
	framesPlayed    *prometheus.CounterVec
	bufferEvents    *prometheus.CounterVec
	bufferDepth     prometheus.Gauge
	jitterSeconds   prometheus.Gauge
	jitterHistogram prometheus.Histogram
}

var _ media.Metrics = (*Collector)(nil)

// NewCollector создает сборщик. peerID добавляется ко всем метрикам как метка peer.
func NewCollector(peerID string) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	labels := prometheus.Labels{"peer": peerID}

	return &Collector{
		registry: registry,

		packetsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_sent_total",
			Help: "Total packets sent", ConstLabels: labels,
		}),
		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_sent_total",
			Help: "Total bytes sent including headers", ConstLabels: labels,
		}),
		sendErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "send_errors_total",
			Help: "Total failed datagram sends", ConstLabels: labels,
		}),
		packetsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_received_total",
			Help: "Total packets accepted into the jitter buffer", ConstLabels: labels,
		}),
		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "bytes_received_total",
			Help: "Total bytes of accepted datagrams", ConstLabels: labels,
		}),
		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "decode_errors_total",
			Help: "Total datagrams dropped by the codec", ConstLabels: labels,
		}, []string{"kind"}),
		sessionMismatch: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "session_mismatch_total",
			Help: "Total packets dropped for a foreign session id", ConstLabels: labels,
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rate_limited_total",
			Help: "Total datagrams dropped by the per-source rate limit", ConstLabels: labels,
		}),
		framesPlayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "frames_played_total",
			Help: "Total playout ticks by frame kind", ConstLabels: labels,
		}, []string{"kind"}),
		bufferEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "jitter_buffer_events_total",
			Help: "Total slots affected by jitter buffer events", ConstLabels: labels,
		}, []string{"event"}),
		bufferDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "jitter_buffer_depth_frames",
			Help: "Frames currently buffered", ConstLabels: labels,
		}),
		jitterSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "interarrival_jitter_seconds",
			Help: "RFC 3550 interarrival jitter estimate", ConstLabels: labels,
		}),
		jitterHistogram: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "interarrival_jitter_distribution_seconds",
			Help:        "Distribution of interarrival jitter estimates",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 10), // 0.5 мс .. ~256 мс
		}),
	}
}

func (c *Collector) PacketSent(bytes int) {
	c.packetsSent.Inc()
	c.bytesSent.Add(float64(bytes))
}

func (c *Collector) SendError() {
	c.sendErrors.Inc()
}

func (c *Collector) PacketReceived(bytes int) {
	c.packetsReceived.Inc()
	c.bytesReceived.Add(float64(bytes))
}

func (c *Collector) DecodeError(kind string) {
	c.decodeErrors.WithLabelValues(kind).Inc()
}

func (c *Collector) SessionMismatch() {
	c.sessionMismatch.Inc()
}

func (c *Collector) RateLimited() {
	c.rateLimited.Inc()
}

func (c *Collector) FramePlayed(kind string) {
	c.framesPlayed.WithLabelValues(kind).Inc()
}

func (c *Collector) BufferEvent(event string, count int) {
	c.bufferEvents.WithLabelValues(event).Add(float64(count))
}

func (c *Collector) BufferDepth(depth int) {
	c.bufferDepth.Set(float64(depth))
}

func (c *Collector) InterarrivalJitter(jitter time.Duration) {
	c.jitterSeconds.Set(jitter.Seconds())
	c.jitterHistogram.Observe(jitter.Seconds())
}

// Registry реестр сборщика
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler HTTP обработчик экспорта метрик
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve отдает метрики по адресу addr до отмены контекста
func (c *Collector) Serve(ctx context.Context, addr, path string, logger logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle(path, c.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.WithFields(logrus.Fields{"address": addr, "path": path}).Info("Сервер метрик запущен")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
