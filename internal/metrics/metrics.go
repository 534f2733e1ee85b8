// Package metrics exposes Prometheus instrumentation for the liquidator.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycles counts evaluate-and-execute cycles by outcome (ok, failed).
var Cycles = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "liqbot_cycles_total",
		Help: "Evaluate-and-execute cycles run by the dispatcher",
	},
	[]string{"outcome"},
)

// CycleDuration records how long a full cycle takes.
var CycleDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "liqbot_cycle_duration_seconds",
		Help:    "Wall time of one evaluate-and-execute cycle",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	},
)

// Candidates counts profitable candidates produced by the pipeline.
var Candidates = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "liqbot_candidates_total",
		Help: "Profitable liquidation candidates produced",
	},
)

// Rejections counts positions dropped by the pipeline, by reason.
var Rejections = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "liqbot_pipeline_rejections_total",
		Help: "Liquidatable positions dropped during evaluation",
	},
	[]string{"reason"},
)

// Attempts counts liquidation attempts by outcome: success, failure, abandoned, panic.
var Attempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "liqbot_liquidation_attempts_total",
		Help: "Liquidation transaction attempts",
	},
	[]string{"outcome"},
)

// WatchlistSize tracks the number of positions in the watchlist.
var WatchlistSize = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "liqbot_watchlist_size",
		Help: "Positions currently tracked",
	},
)

// WatchlistEvents counts reconciler mutations and skips by kind.
var WatchlistEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "liqbot_watchlist_events_total",
		Help: "Reconciler watchlist operations",
	},
	[]string{"kind"},
)

func init() {
	prometheus.MustRegister(Cycles, CycleDuration, Candidates, Rejections)
	prometheus.MustRegister(Attempts, WatchlistSize, WatchlistEvents)
	prometheus.MustRegister(collectors.NewBuildInfoCollector())
}

// Serve exposes /metrics and /healthz on addr until ctx is cancelled.
// An empty addr disables the listener.
func Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics: server stopped", "err", err)
		}
	}()

	slog.Info("metrics: listening", "addr", addr)
	return nil
}
