package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/threadlens/threadlens/types"
)

type PrometheusMetrics struct {
	logger     types.Logger
	config     *types.MetricsConfig
	registry   *prometheus.Registry
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	mu         sync.RWMutex
	running    int32
}

func NewPrometheusMetrics(logger types.Logger, config *types.MetricsConfig) (types.MetricsManager, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &PrometheusMetrics{
		logger:     logger,
		config:     config,
		registry:   registry,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}

	logger.Info("Prometheus metrics initialized",
		zap.String("namespace", config.Namespace),
		zap.String("path", config.Path))

	return m, nil
}

func (p *PrometheusMetrics) Start() error {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		p.logger.Warn("Prometheus metrics is already running")
		return types.ErrServerAlreadyRunning
	}

	p.logger.Info("Prometheus metrics started")
	return nil
}

func (p *PrometheusMetrics) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.running, 1, 0) {
		p.logger.Warn("Prometheus metrics is not running")
		return types.ErrServerNotRunning
	}

	p.mu.Lock()
	p.counters = make(map[string]*prometheus.CounterVec)
	p.gauges = make(map[string]*prometheus.GaugeVec)
	p.histograms = make(map[string]*prometheus.HistogramVec)
	p.mu.Unlock()

	p.logger.Info("Prometheus metrics stopped")
	return nil
}

func (p *PrometheusMetrics) IsRunning() bool {
	return atomic.LoadInt32(&p.running) == 1
}

func (p *PrometheusMetrics) Counter(name string, labels map[string]string) types.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if counter, exists := p.counters[name]; exists {
		return &promCounter{counter: counter, labels: labels}
	}

	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: p.config.Namespace,
			Name:      name,
			Help:      fmt.Sprintf("Counter metric %s", name),
		},
		labelNames(labels),
	)

	p.registry.MustRegister(counter)
	p.counters[name] = counter

	return &promCounter{counter: counter, labels: labels}
}

func (p *PrometheusMetrics) Gauge(name string, labels map[string]string) types.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gauge, exists := p.gauges[name]; exists {
		return &promGauge{gauge: gauge, labels: labels}
	}

	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: p.config.Namespace,
			Name:      name,
			Help:      fmt.Sprintf("Gauge metric %s", name),
		},
		labelNames(labels),
	)

	p.registry.MustRegister(gauge)
	p.gauges[name] = gauge

	return &promGauge{gauge: gauge, labels: labels}
}

func (p *PrometheusMetrics) Histogram(name string, buckets []float64, labels map[string]string) types.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	if histogram, exists := p.histograms[name]; exists {
		return &promHistogram{histogram: histogram, labels: labels}
	}

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: p.config.Namespace,
			Name:      name,
			Help:      fmt.Sprintf("Histogram metric %s", name),
			Buckets:   buckets,
		},
		labelNames(labels),
	)

	p.registry.MustRegister(histogram)
	p.histograms[name] = histogram

	return &promHistogram{histogram: histogram, labels: labels}
}

func (p *PrometheusMetrics) Handler() fasthttp.RequestHandler {
	h := promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
	return fasthttpadaptor.NewFastHTTPHandler(http.Handler(h))
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	return names
}

type promCounter struct {
	counter *prometheus.CounterVec
	labels  map[string]string
}

func (c *promCounter) Inc()              { c.counter.With(c.labels).Inc() }
func (c *promCounter) Add(value float64) { c.counter.With(c.labels).Add(value) }

type promGauge struct {
	gauge  *prometheus.GaugeVec
	labels map[string]string
}

func (g *promGauge) Set(value float64) { g.gauge.With(g.labels).Set(value) }
func (g *promGauge) Inc()              { g.gauge.With(g.labels).Inc() }
func (g *promGauge) Dec()              { g.gauge.With(g.labels).Dec() }

type promHistogram struct {
	histogram *prometheus.HistogramVec
	labels    map[string]string
}

func (h *promHistogram) Observe(value float64) {
	h.histogram.With(h.labels).Observe(value)
}

func (h *promHistogram) ObserveDuration(start time.Time) {
	h.histogram.With(h.labels).Observe(time.Since(start).Seconds())
}
