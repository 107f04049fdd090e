package observability

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/yungbote/rankset/internal/platform/envutil"
	"github.com/yungbote/rankset/internal/platform/logger"
)

const (
	metricsNamespace = "rankset"
	metricsSubsystem = "ranking"
	pushJob          = "rankset_refresh"
)

// Metrics records ranking refresh timings. It implements ranking.Observer.
type Metrics struct {
	registry *prometheus.Registry

	refreshes       *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	phaseDuration   *prometheus.HistogramVec
	phaseRows       *prometheus.CounterVec
	lastSuccess     *prometheus.GaugeVec
	lockContention  *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false, nil)
}

// Init builds the process-wide metrics when METRICS_ENABLED is set and
// returns them, or nil when disabled.
func Init(log *logger.Logger) *Metrics {
	initOnce.Do(func() {
		if !Enabled() {
			return
		}
		instance = NewMetrics(prometheus.NewRegistry())
		if log != nil {
			log.Info("metrics enabled", "namespace", metricsNamespace)
		}
	})
	return instance
}

func Current() *Metrics {
	return instance
}

// NewMetrics registers the refresh collectors on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	auto := promauto.With(reg)
	labels := []string{"entity_type", "typology"}
	return &Metrics{
		registry: reg,
		refreshes: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "refreshes_total",
			Help:      "Typology refreshes by outcome.",
		}, append(labels, "status")),
		refreshDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of one typology refresh transaction.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, labels),
		phaseDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "phase_duration_seconds",
			Help:      "Duration of a refresh phase.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, append(labels, "phase")),
		phaseRows: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "phase_rows_total",
			Help:      "Ranking entries touched by a refresh phase.",
		}, append(labels, "phase")),
		lastSuccess: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful refresh.",
		}, labels),
		lockContention: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "lock_not_obtained_total",
			Help:      "Refreshes skipped because another run held the typology lock.",
		}, labels),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObservePhase(entityType, typology, phase string, rows int, dur time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(entityType, typology, phase).Observe(dur.Seconds())
	if rows > 0 {
		m.phaseRows.WithLabelValues(entityType, typology, phase).Add(float64(rows))
	}
}

func (m *Metrics) ObserveRefresh(entityType, typology, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(entityType, typology, status).Inc()
	if status != "ok" {
		return
	}
	m.refreshDuration.WithLabelValues(entityType, typology).Observe(dur.Seconds())
	m.lastSuccess.WithLabelValues(entityType, typology).SetToCurrentTime()
}

func (m *Metrics) ObserveLockNotObtained(entityType, typology string) {
	if m == nil {
		return
	}
	m.lockContention.WithLabelValues(entityType, typology).Inc()
}

// Push sends the registry to a Prometheus Pushgateway. A one-shot CLI run
// exits before any scrape, so this is how its metrics leave the process.
func (m *Metrics) Push(ctx context.Context, url string, grouping map[string]string) error {
	if m == nil || strings.TrimSpace(url) == "" {
		return nil
	}
	p := push.New(url, pushJob).Gatherer(m.registry)
	for k, v := range grouping {
		p = p.Grouping(k, v)
	}
	return p.PushContext(ctx)
}
