// Package telemetry exposes engine counters and gauges over a Prometheus
// /metrics endpoint.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradePilot/internal/ports"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	CyclesTotal      prometheus.Counter
	DecisionsTotal   *prometheus.CounterVec
	RejectionsTotal  *prometheus.CounterVec
	ProtectiveExits  *prometheus.CounterVec
	ReviewFailures   *prometheus.CounterVec
	OpenPositions    *prometheus.GaugeVec
	DailyRealizedPNL *prometheus.GaugeVec
	CycleDuration    prometheus.Histogram
	ReviewDuration   prometheus.Histogram
}

// New registers the engine collectors on a fresh registry and returns both.
func New() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "tradepilot_cycles_total",
			Help: "Number of completed decision cycles.",
		}),
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepilot_decisions_total",
			Help: "Review decisions processed, by resolved action.",
		}, []string{"instrument", "action"}),
		RejectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepilot_rejections_total",
			Help: "Entries rejected by the sizing evaluator, by reason code.",
		}, []string{"instrument", "reason"}),
		ProtectiveExits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepilot_protective_exits_total",
			Help: "Positions closed by the protective recheck, by trigger.",
		}, []string{"instrument", "trigger"}),
		ReviewFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tradepilot_review_failures_total",
			Help: "Policy reviews resolved to hold, by cause.",
		}, []string{"instrument", "cause"}),
		OpenPositions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradepilot_open_positions",
			Help: "Open positions tracked by the ledger.",
		}, []string{"mode"}),
		DailyRealizedPNL: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradepilot_daily_realized_pnl",
			Help: "Realized profit and loss since the UTC day boundary.",
		}, []string{"mode"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradepilot_cycle_duration_seconds",
			Help:    "Wall time of a full decision cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		ReviewDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradepilot_review_duration_seconds",
			Help:    "Latency of the policy-review call.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	return m, reg
}

// Server serves the /metrics endpoint.
type Server struct {
	srv    *http.Server
	logger ports.Logger
}

// NewServer builds an HTTP server exposing the given registry on addr.
func NewServer(addr string, reg *prometheus.Registry, logger ports.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background until Stop is called.
func (s *Server) Start() {
	go func() {
		s.logger.Info(context.Background(), "Metrics endpoint listening", map[string]interface{}{"addr": s.srv.Addr})
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(context.Background(), err, "Metrics server stopped unexpectedly")
		}
	}()
}

// Stop shuts the metrics server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
