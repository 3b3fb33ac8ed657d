// Package prometheus provides a mutter.MetricsProvider that exports runtime
// metrics with prometheus/client_golang.
package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/mutter"
)

var (
	// ErrInvalidConfig is returned when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid prometheus configuration")

	// ErrRegistrationFailed is returned when metric registration fails.
	ErrRegistrationFailed = errors.New("metric registration failed")
)

// Config configures the Provider.
type Config struct {
	// Namespace is the metrics namespace. Required.
	Namespace string

	// Subsystem is the metrics subsystem. Required.
	Subsystem string

	// Registry is the Prometheus registry to use.
	// If nil, uses prometheus.DefaultRegisterer.
	Registry prom.Registerer

	// FlushBuckets defines histogram buckets for flush duration (seconds).
	// If nil, uses default buckets.
	FlushBuckets []float64

	// ObserverBuckets defines histogram buckets for observers run per flush.
	// If nil, uses default buckets.
	ObserverBuckets []float64
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Namespace:       "mutter",
		Subsystem:       "runtime",
		FlushBuckets:    []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		ObserverBuckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	}
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return errors.New("namespace is required")
	}
	if c.Subsystem == "" {
		return errors.New("subsystem is required")
	}
	return nil
}

// Provider implements mutter.MetricsProvider. Metrics are registered on
// creation and unregistered by Close.
type Provider struct {
	registry prom.Registerer

	flushes          prom.Counter
	flushDuration    prom.Histogram
	flushObservers   prom.Histogram
	mutations        *prom.CounterVec
	copies           prom.Counter
	immutableWrites  prom.Counter
	bindingStates    *prom.CounterVec
	bindingUnhealthy prom.Gauge

	collectors []prom.Collector
}

// New creates a Provider and registers its collectors.
func New(config *Config) (*Provider, error) {
	if config == nil {
		return nil, ErrInvalidConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	cfg := *config
	if cfg.FlushBuckets == nil {
		cfg.FlushBuckets = DefaultConfig().FlushBuckets
	}
	if cfg.ObserverBuckets == nil {
		cfg.ObserverBuckets = DefaultConfig().ObserverBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prom.DefaultRegisterer
	}

	p := &Provider{registry: registry}

	p.flushes = prom.NewCounter(prom.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "flushes_total",
		Help:      "Total flushes that re-ran observers",
	})
	p.flushDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "flush_duration_seconds",
		Help:      "Time spent re-running observers per flush",
		Buckets:   cfg.FlushBuckets,
	})
	p.flushObservers = prom.NewHistogram(prom.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "flush_observers",
		Help:      "Observers re-run per flush",
		Buckets:   cfg.ObserverBuckets,
	})
	p.mutations = prom.NewCounterVec(prom.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "mutations_total",
		Help:      "Effective writes by operation",
	}, []string{"op"})
	p.copies = prom.NewCounter(prom.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "snapshot_copies_total",
		Help:      "Snapshot copies materialized",
	})
	p.immutableWrites = prom.NewCounter(prom.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "snapshot_writes_rejected_total",
		Help:      "Writes rejected because they targeted a snapshot",
	})
	p.bindingStates = prom.NewCounterVec(prom.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "binding_transitions_total",
		Help:      "Binding state transitions",
	}, []string{"from", "to"})
	p.bindingUnhealthy = prom.NewGauge(prom.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "bindings_unhealthy",
		Help:      "Bindings currently degraded or empty",
	})

	collectors := []prom.Collector{
		p.flushes, p.flushDuration, p.flushObservers, p.mutations,
		p.copies, p.immutableWrites, p.bindingStates, p.bindingUnhealthy,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			p.Close()
			return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
		}
		p.collectors = append(p.collectors, c)
	}

	return p, nil
}

// OnFlush implements mutter.MetricsProvider.
func (p *Provider) OnFlush(observers int, duration time.Duration) {
	p.flushes.Inc()
	p.flushObservers.Observe(float64(observers))
	p.flushDuration.Observe(duration.Seconds())
}

// OnMutation implements mutter.MetricsProvider.
func (p *Provider) OnMutation(op string) {
	p.mutations.WithLabelValues(op).Inc()
}

// OnCopy implements mutter.MetricsProvider.
func (p *Provider) OnCopy() {
	p.copies.Inc()
}

// OnImmutableWrite implements mutter.MetricsProvider.
func (p *Provider) OnImmutableWrite() {
	p.immutableWrites.Inc()
}

// OnBindingState implements mutter.MetricsProvider.
func (p *Provider) OnBindingState(from, to mutter.BindingState) {
	p.bindingStates.WithLabelValues(from.String(), to.String()).Inc()
	if unhealthy(to) && !unhealthy(from) {
		p.bindingUnhealthy.Inc()
	}
	if unhealthy(from) && !unhealthy(to) {
		p.bindingUnhealthy.Dec()
	}
}

// Close unregisters all collectors.
func (p *Provider) Close() {
	for _, c := range p.collectors {
		p.registry.Unregister(c)
	}
	p.collectors = nil
}

func unhealthy(s mutter.BindingState) bool {
	return s == mutter.BindingDegraded || s == mutter.BindingEmpty
}

var _ mutter.MetricsProvider = (*Provider)(nil)
