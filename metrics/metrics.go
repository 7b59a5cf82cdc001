// Package metrics exposes Prometheus instruments for the node and the
// collector. Every method is safe on a nil *Metrics so components can run
// without instrumentation.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sensenode/types"
)

const namespace = "sensenode"

type Metrics struct {
	reg prometheus.Gatherer

	itemsAccepted *prometheus.CounterVec
	itemsDropped  *prometheus.CounterVec
	readings      *prometheus.CounterVec
	faults        *prometheus.CounterVec
	readDuration  *prometheus.HistogramVec

	connects      *prometheus.CounterVec
	linkUp        prometheus.Gauge
	batches       prometheus.Counter
	batchSize     prometheus.Histogram
	writeFailures prometheus.Counter
	watchdogPets  prometheus.Counter

	framesReceived *prometheus.CounterVec
	decodeErrors   prometheus.Counter
	seqGaps        *prometheus.CounterVec
	forwarded      *prometheus.CounterVec
	forwardErrors  *prometheus.CounterVec
}

// New creates the instruments and registers them on a fresh registry.
func New() *Metrics {
	return NewWith(prometheus.NewRegistry())
}

// NewWith registers the instruments on reg.
func NewWith(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		reg: reg,
		itemsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "items_accepted_total",
			Help: "Items accepted by the publish channel, by priority.",
		}, []string{"priority"}),
		itemsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "items_dropped_total",
			Help: "Items dropped because the publish channel was full, by priority.",
		}, []string{"priority"}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "readings_total",
			Help: "Readings produced, by kind.",
		}, []string{"kind"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "faults_total",
			Help: "Faults raised, by device and class.",
		}, []string{"device", "class"}),
		readDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sensor_read_duration_seconds",
			Help:    "Duration of sensor reads, by device.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"device"}),
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "connect_attempts_total",
			Help: "Collector connection attempts, by result.",
		}, []string{"result"}),
		linkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "link_up",
			Help: "1 while a collector connection is established.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_sent_total",
			Help: "Batches written to the collector.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "batch_size",
			Help:    "Payloads per written batch.",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "write_failures_total",
			Help: "Batches lost to write errors.",
		}),
		watchdogPets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "watchdog_pets_total",
			Help: "Watchdog keep-alives issued.",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "collector_frames_total",
			Help: "Frames decoded by the collector, by node.",
		}, []string{"node"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "collector_decode_errors_total",
			Help: "Frames the collector failed to decode.",
		}),
		seqGaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "collector_sequence_gaps_total",
			Help: "Frames missing between consecutive sequence numbers, by node.",
		}, []string{"node"}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "collector_forwarded_total",
			Help: "Payloads forwarded, by sink.",
		}, []string{"sink"}),
		forwardErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "collector_forward_errors_total",
			Help: "Forwarding failures, by sink.",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		m.itemsAccepted, m.itemsDropped, m.readings, m.faults, m.readDuration,
		m.connects, m.linkUp, m.batches, m.batchSize, m.writeFailures, m.watchdogPets,
		m.framesReceived, m.decodeErrors, m.seqGaps, m.forwarded, m.forwardErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx ends.
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	})
	defer stop()

	log.Info("metrics listening", zap.String("address", addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (m *Metrics) ItemAccepted(p types.Priority) {
	if m == nil {
		return
	}
	m.itemsAccepted.WithLabelValues(p.String()).Inc()
}

func (m *Metrics) ItemDropped(p types.Priority) {
	if m == nil {
		return
	}
	m.itemsDropped.WithLabelValues(p.String()).Inc()
}

// Payload counts a produced reading or fault.
func (m *Metrics) Payload(p types.Payload) {
	if m == nil {
		return
	}
	switch v := p.(type) {
	case types.Reading:
		m.readings.WithLabelValues(v.Kind.String()).Inc()
	case types.Fault:
		m.faults.WithLabelValues(v.Device.String(), v.Class.String()).Inc()
	}
}

func (m *Metrics) SensorRead(d types.Device, took time.Duration) {
	if m == nil {
		return
	}
	m.readDuration.WithLabelValues(d.String()).Observe(took.Seconds())
}

func (m *Metrics) Connect(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.connects.WithLabelValues("ok").Inc()
		m.linkUp.Set(1)
		return
	}
	m.connects.WithLabelValues("error").Inc()
}

func (m *Metrics) LinkDown() {
	if m == nil {
		return
	}
	m.linkUp.Set(0)
}

func (m *Metrics) BatchSent(n int) {
	if m == nil {
		return
	}
	m.batches.Inc()
	m.batchSize.Observe(float64(n))
}

func (m *Metrics) WriteFailed() {
	if m == nil {
		return
	}
	m.writeFailures.Inc()
}

func (m *Metrics) WatchdogPet() {
	if m == nil {
		return
	}
	m.watchdogPets.Inc()
}

func (m *Metrics) FrameReceived(node string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(node).Inc()
}

func (m *Metrics) DecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) SequenceGap(node string, missed uint32) {
	if m == nil {
		return
	}
	m.seqGaps.WithLabelValues(node).Add(float64(missed))
}

func (m *Metrics) Forwarded(sink string, n int) {
	if m == nil {
		return
	}
	m.forwarded.WithLabelValues(sink).Add(float64(n))
}

func (m *Metrics) ForwardError(sink string) {
	if m == nil {
		return
	}
	m.forwardErrors.WithLabelValues(sink).Inc()
}
