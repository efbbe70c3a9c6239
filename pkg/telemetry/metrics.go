package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the OpenMatter engine.
type Metrics struct {
	config MetricsConfig

	// Registry metrics
	typesDefined *prometheus.CounterVec

	// Construction metrics
	instancesConstructed *prometheus.CounterVec
	constructDuration    *prometheus.HistogramVec
	validationFailures   *prometheus.CounterVec

	// Pattern metrics
	patternsCompiled *prometheus.CounterVec
	compileDuration  *prometheus.HistogramVec
	dispatches       *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	// Cell metrics
	lazyForces    prometheus.Counter
	forceDuration prometheus.Histogram

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// Policy metrics
	policyViolations *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		typesDefined: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "types_defined_total",
				Help:      "Total number of type definitions installed",
			},
			[]string{"kind"},
		),

		instancesConstructed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instances_constructed_total",
				Help:      "Total number of instances constructed",
			},
			[]string{"type", "variant"},
		),
		constructDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "construct_duration_seconds",
				Help:      "Duration of instance construction in seconds",
				Buckets:   buckets,
			},
			[]string{"type"},
		),
		validationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of validation failures",
			},
			[]string{"type", "error_kind"},
		),

		patternsCompiled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "patterns_compiled_total",
				Help:      "Total number of pattern compilations (cache hits excluded)",
			},
			[]string{"type", "exhaustive"},
		),
		compileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_duration_seconds",
				Help:      "Duration of pattern compilation in seconds",
				Buckets:   buckets,
			},
			[]string{"type"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Total number of pattern dispatches",
			},
			[]string{"type", "variant"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of pattern dispatch in seconds",
				Buckets:   buckets,
			},
			[]string{"type"},
		),

		lazyForces: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lazy_forces_total",
				Help:      "Total number of lazy cell computations run",
			},
		),
		forceDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "force_duration_seconds",
				Help:      "Duration of lazy cell computations in seconds",
				Buckets:   buckets,
			},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of errors by error kind",
			},
			[]string{"kind"},
		),

		policyViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_violations_total",
				Help:      "Total number of definition policy violations",
			},
			[]string{"policy"},
		),
	}

	registry.MustRegister(
		m.typesDefined,
		m.instancesConstructed,
		m.constructDuration,
		m.validationFailures,
		m.patternsCompiled,
		m.compileDuration,
		m.dispatches,
		m.dispatchDuration,
		m.lazyForces,
		m.forceDuration,
		m.errorsByKind,
		m.policyViolations,
	)

	return m, nil
}

// RecordTypeDefined increments the counter for installed definitions.
func (m *Metrics) RecordTypeDefined(kind string) {
	if m.typesDefined == nil {
		return
	}
	m.typesDefined.WithLabelValues(kind).Inc()
}

// RecordInstanceConstructed records a successful construction.
func (m *Metrics) RecordInstanceConstructed(typeName, variant string, duration time.Duration) {
	if m.instancesConstructed == nil {
		return
	}
	m.instancesConstructed.WithLabelValues(typeName, variant).Inc()
	m.constructDuration.WithLabelValues(typeName).Observe(duration.Seconds())
}

// RecordValidationFailure records a failed construction.
func (m *Metrics) RecordValidationFailure(typeName, errorKind string) {
	if m.validationFailures == nil {
		return
	}
	m.validationFailures.WithLabelValues(typeName, errorKind).Inc()
}

// RecordPatternCompiled records an actual pattern compilation.
func (m *Metrics) RecordPatternCompiled(typeName string, exhaustive bool, duration time.Duration) {
	if m.patternsCompiled == nil {
		return
	}
	m.patternsCompiled.WithLabelValues(typeName, fmt.Sprintf("%v", exhaustive)).Inc()
	m.compileDuration.WithLabelValues(typeName).Observe(duration.Seconds())
}

// RecordDispatch records a successful dispatch.
func (m *Metrics) RecordDispatch(typeName, variant string, duration time.Duration) {
	if m.dispatches == nil {
		return
	}
	m.dispatches.WithLabelValues(typeName, variant).Inc()
	m.dispatchDuration.WithLabelValues(typeName).Observe(duration.Seconds())
}

// RecordLazyForce records a lazy cell computation.
func (m *Metrics) RecordLazyForce(duration time.Duration) {
	if m.lazyForces == nil {
		return
	}
	m.lazyForces.Inc()
	m.forceDuration.Observe(duration.Seconds())
}

// RecordError records an error by kind.
func (m *Metrics) RecordError(errorKind string) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(errorKind).Inc()
}

// RecordPolicyViolation records a definition policy violation.
func (m *Metrics) RecordPolicyViolation(policy string) {
	if m.policyViolations == nil {
		return
	}
	m.policyViolations.WithLabelValues(policy).Inc()
}

// Subscriber returns an event subscriber that feeds the metrics collectors
// from the engine's event stream. Attach it to an EventPublisher to collect
// metrics without instrumenting call sites.
func (m *Metrics) Subscriber() EventSubscriber {
	return func(event Event) {
		switch event.Kind {
		case EventKindTypeDefined:
			kind, _ := event.Data["definition_kind"].(string)
			m.RecordTypeDefined(kind)
		case EventKindInstanceConstructed:
			m.RecordInstanceConstructed(event.Type, event.Variant, event.Duration)
		case EventKindValidationFailed:
			errorKind, _ := event.Data["error_kind"].(string)
			m.RecordValidationFailure(event.Type, errorKind)
			m.RecordError(errorKind)
		case EventKindPatternCompiled:
			exhaustive, _ := event.Data["exhaustive"].(bool)
			m.RecordPatternCompiled(event.Type, exhaustive, event.Duration)
		case EventKindPatternDispatched:
			m.RecordDispatch(event.Type, event.Variant, event.Duration)
		case EventKindLazyForced:
			m.RecordLazyForce(event.Duration)
		case EventKindPolicyViolation:
			policy, _ := event.Data["policy"].(string)
			m.RecordPolicyViolation(policy)
		}
	}
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
