// Package registrar provides the capability components use to declare their
// configuration parameters and statistics, and a live implementation backed by
// a Prometheus registry.
package registrar

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/tdma-radio-model/internal/observability"
)

// Registrar hands a component the surfaces it registers against during
// initialization.
type Registrar interface {
	Configuration() ConfigurationRegistrar
	Statistics() StatisticRegistrar
}

// ConfigurationRegistrar declares typed configuration parameters.
type ConfigurationRegistrar interface {
	RegisterNumeric(name string, opts NumericOptions) error
	RegisterBool(name string, opts BoolOptions) error
}

// StatisticRegistrar declares counters and statistic tables.
type StatisticRegistrar interface {
	RegisterCounterVec(name, help string, labels ...string) (*prometheus.CounterVec, error)
	RegisterTable(name, help string, opts TableOptions) (*StatisticTable, error)
}

// InstanceLabel is the constant label carrying the registry instance id on
// every exported metric.
const InstanceLabel = "emulator_uuid"

// Registry is the live Registrar. Statistics are exported through Prometheus;
// configuration parameters are kept in registration order and resolved with
// Resolve.
type Registry struct {
	id       uuid.UUID
	reg      prometheus.Registerer
	gatherer prometheus.Gatherer

	mu     sync.RWMutex
	params map[string]*parameter
	order  []string
}

var _ Registrar = (*Registry)(nil)

// Option customises Registry construction.
type Option func(*Registry)

// WithInstanceID fixes the registry instance id instead of generating one.
func WithInstanceID(id uuid.UUID) Option {
	return func(r *Registry) {
		r.id = id
	}
}

// New constructs a Registry exporting statistics through reg, defaulting to the
// global Prometheus registerer when nil.
func New(reg prometheus.Registerer, opts ...Option) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Registry{
		id:       uuid.New(),
		gatherer: observability.GathererFor(reg),
		params:   make(map[string]*parameter),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.reg = prometheus.WrapRegistererWith(prometheus.Labels{InstanceLabel: r.id.String()}, reg)
	return r
}

// InstanceID returns the id attached to every metric this registry exports.
func (r *Registry) InstanceID() uuid.UUID { return r.id }

// Gatherer returns the gatherer for the underlying Prometheus registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.gatherer }

// Configuration implements Registrar.
func (r *Registry) Configuration() ConfigurationRegistrar { return r }

// Statistics implements Registrar.
func (r *Registry) Statistics() StatisticRegistrar { return r }
