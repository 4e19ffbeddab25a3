// Package metrics exposes Prometheus metrics for the media graph.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "castnode"

// GraphStates lists every lifecycle state reported by graph_state.
var GraphStates = []string{"idle", "preview", "playing", "paused", "stopped", "closed"}

var (
	graphState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "graph",
		Name:      "state",
		Help:      "1 for the current lifecycle state of the media graph, 0 otherwise",
	}, []string{"state"})

	swapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hotswap",
		Name:      "total",
		Help:      "Hot-swap operations by result",
	}, []string{"result"})

	swapDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "hotswap",
		Name:      "duration_seconds",
		Help:      "Time from block request to release for successful swaps",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	outputBranches = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "outputs",
		Name:      "attached",
		Help:      "Output branches currently linked into the live graph",
	}, []string{"category", "kind"})

	reconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outputs",
		Name:      "reconnect_attempts_total",
		Help:      "Reconnect attempts of stream branches",
	}, []string{"branch_id", "phase"})

	sinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outputs",
		Name:      "sink_errors_total",
		Help:      "Errors reported by output branch elements",
	}, []string{"branch_id"})

	remoteAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "available",
		Help:      "1 when the watched host is up and the port is open",
	}, []string{"host", "port"})

	remoteLatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "remote",
		Name:      "latency_seconds",
		Help:      "Last TCP connect latency of the watched host",
	}, []string{"host", "port"})
)

// SetGraphState marks state as the current lifecycle state.
func SetGraphState(state string) {
	for _, s := range GraphStates {
		v := 0.0
		if s == state {
			v = 1
		}
		graphState.WithLabelValues(s).Set(v)
	}
}

// ObserveSwap records a finished hot-swap. d is ignored for failures.
func ObserveSwap(ok bool, d time.Duration) {
	if !ok {
		swapsTotal.WithLabelValues("failed").Inc()
		return
	}
	swapsTotal.WithLabelValues("ok").Inc()
	swapDuration.Observe(d.Seconds())
}

// BranchAttached adjusts the attached-branch gauge by delta.
func BranchAttached(category, kind string, delta float64) {
	outputBranches.WithLabelValues(category, kind).Add(delta)
}

// Reconnect counts one reconnect phase of a branch.
func Reconnect(branchID, phase string) {
	reconnectAttempts.WithLabelValues(branchID, phase).Inc()
}

// SinkError counts an error posted by an output branch.
func SinkError(branchID string) {
	sinkErrors.WithLabelValues(branchID).Inc()
}

// SetRemote records the last check of a watched host.
func SetRemote(host, port string, available bool, latency time.Duration) {
	v := 0.0
	if available {
		v = 1
	}
	remoteAvailable.WithLabelValues(host, port).Set(v)
	remoteLatency.WithLabelValues(host, port).Set(latency.Seconds())
}

// DeleteRemote drops the series of a host that is no longer watched.
func DeleteRemote(host, port string) {
	remoteAvailable.DeleteLabelValues(host, port)
	remoteLatency.DeleteLabelValues(host, port)
}
