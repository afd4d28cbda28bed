// Package metrics exposes turret's dispatcher state as Prometheus
// gauges and counters, in the same promauto style as the teacher pack's
// internal/metrics/metrics.go, served over a local unix-domain socket
// rather than a network listener so it does not contradict spec.md's
// "network (non-local) transport" Non-goal.
package metrics

import (
	"context"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turret_connections_live",
		Help: "Number of currently live stream-socket connections.",
	})
	PendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turret_pending_requests",
		Help: "Number of in-flight invoke requests awaiting a repeater reply.",
	})
	DispatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "turret_dispatch_outcomes_total",
		Help: "Total dispatcher outcomes by error code (0 = success).",
	}, []string{"code"})
	ReplayWindowSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "turret_replay_window_size",
		Help: "Number of (principal, nonce) pairs currently retained in the replay window.",
	})
)

// Serve accepts connections on socketPath and answers them with
// promhttp.Handler() until ctx is cancelled, mirroring the
// net.Listen("unix", ...) + http.Serve idiom the teacher's
// internal/transport/server.go uses for its own local listener.
func Serve(ctx context.Context, socketPath string) error {
	os.Remove(socketPath)
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	defer os.Remove(socketPath)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux}

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	if err := srv.Serve(ln); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
