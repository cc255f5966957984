package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics глобальный контейнер метрик
type Metrics struct {
	// HTTP метрики
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Бизнес-метрики
	ReoptimizationsTotal  *prometheus.CounterVec
	ReoptimizationLatency *prometheus.HistogramVec
	SolveDuration         *prometheus.HistogramVec
	ActiveRoutes          prometheus.Gauge
	RouteObjectiveScore   *prometheus.GaugeVec
	MatrixCacheHits       *prometheus.CounterVec
	MatrixBuildDuration   prometheus.Histogram
	EventBusQueueDepth    prometheus.Gauge
	SimulatorTicksTotal   prometheus.Counter

	// Системные метрики
	MemoryUsage *prometheus.GaugeVec
	Goroutines  prometheus.Gauge

	// Информация о сервисе
	ServiceInfo *prometheus.GaugeVec
}

var defaultMetrics *Metrics

// InitMetrics инициализирует метрики
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		// HTTP метрики
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Бизнес-метрики
		ReoptimizationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reoptimizations_total",
				Help:      "Total number of adaptive re-optimization runs",
			},
			[]string{"strategy", "status"},
		),

		ReoptimizationLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "reoptimization_latency_seconds",
				Help:      "Time from trigger detection to committed re-optimization",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"strategy"},
		),

		SolveDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "solve_duration_seconds",
				Help:      "Duration of VRPTW solve operations",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"component"},
		),

		ActiveRoutes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "active_routes",
				Help:      "Current number of routes in active or reoptimizing state",
			},
		),

		RouteObjectiveScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "route_objective_score",
				Help:      "Last computed objective score per route",
			},
			[]string{"route_id"},
		),

		MatrixCacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "matrix_cache_requests_total",
				Help:      "Distance matrix cache lookups by outcome",
			},
			[]string{"outcome"},
		),

		MatrixBuildDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "matrix_build_duration_seconds",
				Help:      "Time to build a distance/time matrix for a set of stops",
				Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10},
			},
		),

		EventBusQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "event_bus_queue_depth",
				Help:      "Current number of buffered events awaiting dispatch",
			},
		),

		SimulatorTicksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "simulator_ticks_total",
				Help:      "Total number of condition simulator ticks processed",
			},
		),

		// Системные метрики
		MemoryUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),
	}

	defaultMetrics = m
	return m
}

// Get возвращает глобальные метрики
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("dispatch", "")
	}
	return defaultMetrics
}

// RecordHTTPRequest записывает метрики HTTP запроса
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordReoptimization записывает метрики прогона адаптивной переоптимизации
func (m *Metrics) RecordReoptimization(strategy string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}

	m.ReoptimizationsTotal.WithLabelValues(strategy, status).Inc()
	m.ReoptimizationLatency.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordSolve записывает длительность решения по компоненту (construct, local_search, full)
func (m *Metrics) RecordSolve(component string, duration time.Duration) {
	m.SolveDuration.WithLabelValues(component).Observe(duration.Seconds())
}

// RecordRouteScore записывает итоговый objective score для маршрута
func (m *Metrics) RecordRouteScore(routeID string, score float64) {
	m.RouteObjectiveScore.WithLabelValues(routeID).Set(score)
}

// RecordMatrixCacheLookup записывает исход обращения к кэшу матрицы расстояний
func (m *Metrics) RecordMatrixCacheLookup(hit bool) {
	outcome := "hit"
	if !hit {
		outcome = "miss"
	}
	m.MatrixCacheHits.WithLabelValues(outcome).Inc()
}

// SetServiceInfo устанавливает информацию о сервисе
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler возвращает HTTP handler для /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer запускает HTTP сервер для метрик
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		// Игнорируем ошибку записи - response уже отправлен
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, ошибка записи не критична
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
