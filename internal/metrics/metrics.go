package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FetchTotal counts fetch cycles by source and outcome. "cached" means the
	// TTL cache answered without a network round-trip.
	FetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walter",
		Name:      "fetch_total",
		Help:      "Outage fetch cycles by source and status (ok/error/cached)",
	}, []string{"source", "status"})

	// EntityErrors counts per-municipality detail fetches that were dropped
	// while the batch continued.
	EntityErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walter",
		Name:      "entity_errors_total",
		Help:      "Per-entity detail fetch failures that were skipped",
	}, []string{"source"})

	// Stops reports the record count of the last successful fetch.
	Stops = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "walter",
		Name:      "stops",
		Help:      "Outage records returned by the last successful fetch",
	}, []string{"source"})

	// MessagesSent counts Discord messages by kind (history/water/electricity).
	MessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walter",
		Name:      "messages_sent_total",
		Help:      "Discord messages sent by kind",
	}, []string{"kind"})

	// LastSuccess is the unix timestamp of the last successful fetch per source.
	LastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "walter",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the last successful fetch",
	}, []string{"source"})
)

func init() {
	prometheus.MustRegister(FetchTotal, EntityErrors, Stops, MessagesSent, LastSuccess)
}

// MarkSuccess updates the per-source success gauges after a fetch.
func MarkSuccess(source string, stops int) {
	FetchTotal.WithLabelValues(source, "ok").Inc()
	Stops.WithLabelValues(source).Set(float64(stops))
	LastSuccess.WithLabelValues(source).Set(float64(time.Now().Unix()))
}

// NewServer exposes /metrics and /healthz on addr.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
