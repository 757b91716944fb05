package registrar

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/tdma-radio-model/internal/observability"
)

// RegisterCounterVec implements StatisticRegistrar. Registering the same
// counter twice returns the existing vector.
func (r *Registry) RegisterCounterVec(name, help string, labels ...string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labels)
	return observability.Register(r.reg, vec, name)
}

// RegisterTable implements StatisticRegistrar. Registering an identical table
// twice returns the existing table so several components can share rows.
func (r *Registry) RegisterTable(name, help string, opts TableOptions) (*StatisticTable, error) {
	table, err := NewStatisticTable(name, help, opts)
	if err != nil {
		return nil, err
	}
	return observability.Register(r.reg, table, name)
}
