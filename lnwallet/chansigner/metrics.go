package chansigner

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "lncommit"
	metricsSubsystem = "chansigner"
)

var (
	// policyViolations counts requests that broke the sequencing policy,
	// by signer operation.
	policyViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "policy_violations_total",
			Help:      "Signer requests refused by the policy checks",
		},
		[]string{"op"},
	)

	// disabledOpCalls counts calls to disabled operations.
	disabledOpCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "disabled_op_calls_total",
			Help:      "Calls to signer operations that were disabled",
		},
		[]string{"op"},
	)
)

// RegisterMetrics registers the signer counters with the registry.
func RegisterMetrics(registry prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		policyViolations, disabledOpCalls,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}
