package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry owns the Prometheus registry and the sync metrics
type Registry struct {
	registry    *prometheus.Registry
	syncMetrics *SyncMetrics
}

// NewRegistry creates a registry with the default namespace
func NewRegistry() *Registry {
	return NewRegistryWithConfig("ntp_sync", "")
}

// NewRegistryWithConfig creates a registry with custom namespace and subsystem
func NewRegistryWithConfig(namespace, subsystem string) *Registry {
	return &Registry{
		registry:    prometheus.NewRegistry(),
		syncMetrics: NewSyncMetricsWithConfig(namespace, subsystem),
	}
}

// Register registers the sync metrics and the Go runtime collectors
func (r *Registry) Register() error {
	if err := r.registry.Register(r.syncMetrics); err != nil {
		return err
	}

	r.registry.MustRegister(collectors.NewGoCollector())
	r.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return nil
}

// GetRegistry returns the underlying Prometheus registry
func (r *Registry) GetRegistry() *prometheus.Registry {
	return r.registry
}

// GetMetrics returns the sync metrics
func (r *Registry) GetMetrics() *SyncMetrics {
	return r.syncMetrics
}

// MustRegister registers all metrics and panics on error
func (r *Registry) MustRegister() {
	if err := r.Register(); err != nil {
		panic(err)
	}
}
