// Package metrics exposes bridge counters and the optional /metrics
// listener.
package metrics

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacebar_bridge_relayed_total",
		Help: "Messages relayed across the bridge",
	}, []string{"direction", "op"})

	RelayFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacebar_bridge_relay_failures_total",
		Help: "Relay attempts that failed on the REST call",
	}, []string{"direction", "op"})

	DroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacebar_bridge_dropped_total",
		Help: "Events dropped before relaying",
	}, []string{"direction", "reason"})

	GatewayEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacebar_bridge_gateway_events_total",
		Help: "Normalized gateway events consumed",
	}, []string{"endpoint"})
)

// Serve runs the metrics/health listener. Blocks until the listener
// fails; callers run it in a goroutine.
func Serve(addr string) error {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	slog.Info("metrics: listening", "addr", addr)
	return http.ListenAndServe(addr, r)
}
