package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"throttlerun/broker/internal/input"
	"throttlerun/broker/internal/logging"
)

// ReadinessProvider exposes broker state required for readiness checks.
type ReadinessProvider interface {
	SnapshotClientCount() int
	StartupError() error
	Uptime() time.Duration
}

// Stats aggregates the counters the broker exposes for observability.
type Stats struct {
	Clients       int               `json:"clients"`
	Ticks         uint64            `json:"ticks"`
	FramesSent    uint64            `json:"frames_sent"`
	FramesByCodec map[string]uint64 `json:"frames_by_codec,omitempty"`
	Wins          uint64            `json:"wins"`
	Losses        uint64            `json:"losses"`
	TickAverageMs float64           `json:"tick_average_ms"`
	TickMaxMs     float64           `json:"tick_max_ms"`
}

// StatsFunc returns cumulative tick and delivery statistics.
type StatsFunc func() Stats

// DropsFunc returns per-client intent drop counters.
type DropsFunc func() map[string]input.DropCounters

// Options configures the HandlerSet.
type Options struct {
	Logger     *logging.Logger
	Readiness  ReadinessProvider
	Stats      StatsFunc
	Drops      DropsFunc
	TimeSource func() time.Time
}

// HandlerSet bundles the broker operational handlers.
type HandlerSet struct {
	logger    *logging.Logger
	readiness ReadinessProvider
	stats     StatsFunc
	drops     DropsFunc
	now       func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:    logger,
		readiness: opts.Readiness,
		stats:     opts.Stats,
		drops:     opts.Drops,
		now:       now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/api/stats", h.StatsHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports broker readiness, including client counts and startup status.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Clients       int     `json:"clients"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			resp.Clients = h.readiness.SnapshotClientCount()
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		writeJSON(w, status, resp)
	}
}

// StatsHandler returns the cumulative counters as JSON.
func (h *HandlerSet) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var stats Stats
		if h.stats != nil {
			stats = h.stats()
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var stats Stats
		if h.stats != nil {
			stats = h.stats()
		}
		var uptime float64
		if h.readiness != nil {
			uptime = h.readiness.Uptime().Seconds()
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w, "# HELP broker_uptime_seconds Broker uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE broker_uptime_seconds gauge\n")
		fmt.Fprintf(w, "broker_uptime_seconds %.0f\n", uptime)

		fmt.Fprintf(w, "# HELP broker_clients Current connected WebSocket clients.\n")
		fmt.Fprintf(w, "# TYPE broker_clients gauge\n")
		fmt.Fprintf(w, "broker_clients %d\n", stats.Clients)

		fmt.Fprintf(w, "# HELP broker_ticks_total Simulation ticks advanced across all sessions.\n")
		fmt.Fprintf(w, "# TYPE broker_ticks_total counter\n")
		fmt.Fprintf(w, "broker_ticks_total %d\n", stats.Ticks)

		fmt.Fprintf(w, "# HELP broker_frames_total State frames delivered to clients.\n")
		fmt.Fprintf(w, "# TYPE broker_frames_total counter\n")
		fmt.Fprintf(w, "broker_frames_total %d\n", stats.FramesSent)
		if len(stats.FramesByCodec) > 0 {
			fmt.Fprintf(w, "# HELP broker_frames_by_codec_total State frames delivered per negotiated codec.\n")
			fmt.Fprintf(w, "# TYPE broker_frames_by_codec_total counter\n")
			for codec, count := range stats.FramesByCodec {
				fmt.Fprintf(w, "broker_frames_by_codec_total{codec=%q} %d\n", codec, count)
			}
		}

		fmt.Fprintf(w, "# HELP broker_tick_duration_ms Average and worst observed tick durations in milliseconds.\n")
		fmt.Fprintf(w, "# TYPE broker_tick_duration_ms gauge\n")
		fmt.Fprintf(w, "broker_tick_duration_ms{stat=\"avg\"} %.3f\n", stats.TickAverageMs)
		fmt.Fprintf(w, "broker_tick_duration_ms{stat=\"max\"} %.3f\n", stats.TickMaxMs)

		fmt.Fprintf(w, "# HELP broker_session_wins_total Sessions that reported a win flag.\n")
		fmt.Fprintf(w, "# TYPE broker_session_wins_total counter\n")
		fmt.Fprintf(w, "broker_session_wins_total %d\n", stats.Wins)
		fmt.Fprintf(w, "# HELP broker_session_losses_total Sessions that reported a loss flag.\n")
		fmt.Fprintf(w, "# TYPE broker_session_losses_total counter\n")
		fmt.Fprintf(w, "broker_session_losses_total %d\n", stats.Losses)

		if h.drops != nil {
			drops := h.drops()
			if len(drops) > 0 {
				fmt.Fprintf(w, "# HELP broker_intent_drops_total Intents rejected by the input gate per client and reason.\n")
				fmt.Fprintf(w, "# TYPE broker_intent_drops_total counter\n")
				for clientID, counters := range drops {
					fmt.Fprintf(w, "broker_intent_drops_total{client=%q,reason=\"sequence\"} %d\n", clientID, counters.Sequence)
					fmt.Fprintf(w, "broker_intent_drops_total{client=%q,reason=\"stale\"} %d\n", clientID, counters.Stale)
					fmt.Fprintf(w, "broker_intent_drops_total{client=%q,reason=\"rate_limit\"} %d\n", clientID, counters.RateLimited)
				}
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
