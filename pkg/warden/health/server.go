package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jamesainslie/warden/pkg/warden/lifecycle"
	"github.com/jamesainslie/warden/pkg/warden/logging"
)

// Server exposes the dashboard over HTTP: a JSON verdict on /healthz and
// Prometheus metrics on /metrics.
type Server struct {
	dash    *Dashboard
	monitor *lifecycle.Monitor
	addr    string
	logger  *logging.Logger

	registry *prometheus.Registry
	events   *prometheus.CounterVec
	verdict  prometheus.Gauge
	headroom prometheus.Gauge
	timeouts prometheus.Gauge
	workers  prometheus.Gauge

	mux *http.ServeMux
}

// NewServer creates the HTTP surface for a dashboard. The monitor is used to
// subscribe to classified events for the event counters.
func NewServer(dash *Dashboard, monitor *lifecycle.Monitor, addr string) *Server {
	s := &Server{
		dash:     dash,
		monitor:  monitor,
		addr:     addr,
		logger:   logging.Get("health"),
		registry: prometheus.NewRegistry(),
		mux:      http.NewServeMux(),
	}

	s.events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Name:      "lifecycle_events_total",
		Help:      "Classified worker lifecycle events",
	}, []string{"kind"})
	s.verdict = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Name:      "health_verdict",
		Help:      "Current health verdict (0 healthy, 1 degraded, 2 critical)",
	})
	s.headroom = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Name:      "memory_headroom_bytes",
		Help:      "Memory budget remaining after the planned configuration",
	})
	s.timeouts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Name:      "timeouts_in_window",
		Help:      "Timeout kills within the rolling window",
	})
	s.workers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "warden",
		Name:      "active_workers",
		Help:      "Workers currently tracked as alive",
	})
	s.registry.MustRegister(s.events, s.verdict, s.headroom, s.timeouts, s.workers)

	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/healthz", s.handleHealth)
	return s
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.dash.Snapshot()
	s.observe(status)

	code := http.StatusOK
	if status.Verdict == VerdictCritical {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("failed to encode health response", "error", err)
	}
}

// observe pushes a status into the gauges.
func (s *Server) observe(status Status) {
	s.verdict.Set(float64(status.Verdict))
	s.headroom.Set(float64(status.HeadroomBytes))
	s.timeouts.Set(float64(status.Timeouts))
	s.workers.Set(float64(status.ActiveWorkers))
}

// Run serves HTTP and counts classified events until the context is done.
func (s *Server) Run(ctx context.Context) error {
	// Subscribe returns nil once the monitor has shut its broadcaster; the
	// server then serves without event counters.
	if sub := s.monitor.Subscribe(); sub != nil {
		defer s.monitor.Unsubscribe(sub.ID)
		go func() {
			for ev := range sub.Events {
				s.events.WithLabelValues(ev.Kind.String()).Inc()
			}
		}()
	}

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.logger.Info("health endpoint listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
