// Package otel provides a mutter.MetricsProvider that records runtime
// metrics with OpenTelemetry instruments.
package otel

import (
	"context"
	"time"

	"github.com/zoobzio/mutter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScopeName is the instrumentation scope used by NewDefault.
const ScopeName = "github.com/zoobzio/mutter"

// Provider implements mutter.MetricsProvider.
type Provider struct {
	flushDuration    metric.Float64Histogram
	flushObservers   metric.Int64Histogram
	mutations        metric.Int64Counter
	copies           metric.Int64Counter
	immutableWrites  metric.Int64Counter
	bindingStates    metric.Int64Counter
	bindingUnhealthy metric.Int64UpDownCounter
}

// NewDefault creates a Provider on the global meter provider.
func NewDefault() (*Provider, error) {
	return New(otel.Meter(ScopeName))
}

// New creates a Provider whose instruments come from meter.
func New(meter metric.Meter) (*Provider, error) {
	p := &Provider{}
	var err error

	p.flushDuration, err = meter.Float64Histogram(
		"mutter.flush.duration",
		metric.WithDescription("Time spent re-running observers per flush"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	p.flushObservers, err = meter.Int64Histogram(
		"mutter.flush.observers",
		metric.WithDescription("Observers re-run per flush"),
	)
	if err != nil {
		return nil, err
	}

	p.mutations, err = meter.Int64Counter(
		"mutter.mutations",
		metric.WithDescription("Effective writes by operation"),
	)
	if err != nil {
		return nil, err
	}

	p.copies, err = meter.Int64Counter(
		"mutter.snapshot.copies",
		metric.WithDescription("Snapshot copies materialized"),
	)
	if err != nil {
		return nil, err
	}

	p.immutableWrites, err = meter.Int64Counter(
		"mutter.snapshot.writes_rejected",
		metric.WithDescription("Writes rejected because they targeted a snapshot"),
	)
	if err != nil {
		return nil, err
	}

	p.bindingStates, err = meter.Int64Counter(
		"mutter.binding.transitions",
		metric.WithDescription("Binding state transitions"),
	)
	if err != nil {
		return nil, err
	}

	p.bindingUnhealthy, err = meter.Int64UpDownCounter(
		"mutter.binding.unhealthy",
		metric.WithDescription("Bindings currently degraded or empty"),
	)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// OnFlush implements mutter.MetricsProvider.
func (p *Provider) OnFlush(observers int, duration time.Duration) {
	ctx := context.Background()
	p.flushDuration.Record(ctx, duration.Seconds())
	p.flushObservers.Record(ctx, int64(observers))
}

// OnMutation implements mutter.MetricsProvider.
func (p *Provider) OnMutation(op string) {
	p.mutations.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
}

// OnCopy implements mutter.MetricsProvider.
func (p *Provider) OnCopy() {
	p.copies.Add(context.Background(), 1)
}

// OnImmutableWrite implements mutter.MetricsProvider.
func (p *Provider) OnImmutableWrite() {
	p.immutableWrites.Add(context.Background(), 1)
}

// OnBindingState implements mutter.MetricsProvider.
func (p *Provider) OnBindingState(from, to mutter.BindingState) {
	ctx := context.Background()
	p.bindingStates.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
	switch {
	case unhealthy(to) && !unhealthy(from):
		p.bindingUnhealthy.Add(ctx, 1)
	case unhealthy(from) && !unhealthy(to):
		p.bindingUnhealthy.Add(ctx, -1)
	}
}

func unhealthy(s mutter.BindingState) bool {
	return s == mutter.BindingDegraded || s == mutter.BindingEmpty
}

var _ mutter.MetricsProvider = (*Provider)(nil)
