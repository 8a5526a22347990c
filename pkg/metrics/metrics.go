package metrics

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels.
const (
	ResultFound  = "found"  // A credential was returned.
	ResultAbsent = "absent" // The source had nothing for the request.
	ResultError  = "error"  // The source failed.
)

// errRegisterMetric indicates a collector could not be registered, usually a duplicate.
var errRegisterMetric = errors.New("failed to register metric")

// errWriteTextfile indicates the metrics could not be written to disk.
var errWriteTextfile = errors.New("failed to write metrics file")

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// Metrics handles the regauth Prometheus counters.
type Metrics struct {
	lookups           *prometheus.CounterVec // Supplier lookups by source and result.
	helperInvocations *prometheus.CounterVec // Credential helper runs by helper and result.
	tokenRefreshes    *prometheus.CounterVec // Cloud token refreshes by provider and result.
}

// NewWithRegistry creates a new Metrics handler registered with a custom Prometheus registry.
//
// Parameters:
//   - registry: Prometheus registerer to use for metric registration.
//
// Returns:
//   - (*Metrics, error): Metrics handler, or an error if registration fails.
func NewWithRegistry(registry prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regauth_lookups_total",
			Help: "Number of credential lookups by source and result",
		}, []string{"source", "result"}),
		helperInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regauth_helper_invocations_total",
			Help: "Number of credential helper invocations by helper and result",
		}, []string{"helper", "result"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regauth_token_refreshes_total",
			Help: "Number of cloud provider token refreshes by provider and result",
		}, []string{"provider", "result"}),
	}

	for _, collector := range []prometheus.Collector{
		metrics.lookups,
		metrics.helperInvocations,
		metrics.tokenRefreshes,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("%w: %w", errRegisterMetric, err)
		}
	}

	return metrics, nil
}

// Default initializes or returns the singleton Metrics handler. It panics on
// registration failure against the default registry.
//
// Returns:
//   - *Metrics: Metrics handler registered with prometheus.DefaultRegisterer.
func Default() *Metrics {
	metricsOnce.Do(func() {
		var err error

		metrics, err = NewWithRegistry(prometheus.DefaultRegisterer)
		if err != nil {
			panic(err)
		}
	})

	return metrics
}

// RecordLookup counts one supplier lookup.
func (m *Metrics) RecordLookup(source, result string) {
	m.lookups.WithLabelValues(source, result).Inc()
}

// RecordHelperInvocation counts one credential helper run.
func (m *Metrics) RecordHelperInvocation(helper, result string) {
	m.helperInvocations.WithLabelValues(helper, result).Inc()
}

// RecordTokenRefresh counts one cloud token refresh attempt.
func (m *Metrics) RecordTokenRefresh(provider, result string) {
	m.tokenRefreshes.WithLabelValues(provider, result).Inc()
}

// WriteTextfile writes every metric of gatherer to path in the text exposition
// format read by the node_exporter textfile collector. The file is replaced atomically.
func WriteTextfile(path string, gatherer prometheus.Gatherer) error {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("%w: %w", errWriteTextfile, err)
	}

	return nil
}
