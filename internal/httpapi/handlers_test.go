package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"throttlerun/broker/internal/input"
	"throttlerun/broker/internal/logging"
)

type fakeReadiness struct {
	clients int
	err     error
	uptime  time.Duration
}

func (f *fakeReadiness) SnapshotClientCount() int { return f.clients }
func (f *fakeReadiness) StartupError() error      { return f.err }
func (f *fakeReadiness) Uptime() time.Duration    { return f.uptime }

func TestLivenessHandlerReportsAlive(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	handlers := NewHandlerSet(Options{
		Logger:     logging.NewTestLogger(),
		TimeSource: func() time.Time { return fixed },
	})

	rr := httptest.NewRecorder()
	handlers.LivenessHandler()(rr, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["status"] != "alive" {
		t.Fatalf("unexpected status field: %v", resp)
	}
	if !strings.HasPrefix(resp["timestamp"], "2024-05-01T12:00:00") {
		t.Fatalf("unexpected timestamp: %q", resp["timestamp"])
	}
}

func TestReadinessHandlerHealthy(t *testing.T) {
	handlers := NewHandlerSet(Options{
		Logger:    logging.NewTestLogger(),
		Readiness: &fakeReadiness{clients: 3, uptime: 90 * time.Second},
	})

	rr := httptest.NewRecorder()
	handlers.ReadinessHandler()(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	var resp struct {
		Status        string  `json:"status"`
		Clients       int     `json:"clients"`
		UptimeSeconds float64 `json:"uptime_seconds"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Status != "ok" || resp.Clients != 3 || resp.UptimeSeconds != 90 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestReadinessHandlerReportsStartupError(t *testing.T) {
	handlers := NewHandlerSet(Options{
		Logger:    logging.NewTestLogger(),
		Readiness: &fakeReadiness{err: errors.New("listen failed")},
	})

	rr := httptest.NewRecorder()
	handlers.ReadinessHandler()(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "listen failed") {
		t.Fatalf("missing error message: %s", rr.Body.String())
	}
}

func TestStatsHandlerReturnsJSON(t *testing.T) {
	stats := Stats{
		Clients:       2,
		Ticks:         400,
		FramesSent:    380,
		FramesByCodec: map[string]uint64{"identity": 200, "snappy": 180},
		Wins:          1,
	}
	handlers := NewHandlerSet(Options{
		Logger: logging.NewTestLogger(),
		Stats:  func() Stats { return stats },
	})

	rr := httptest.NewRecorder()
	handlers.StatsHandler()(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var resp Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Ticks != 400 || resp.FramesByCodec["snappy"] != 180 {
		t.Fatalf("unexpected stats: %+v", resp)
	}
}

func TestMetricsHandlerEmitsCounters(t *testing.T) {
	handlers := NewHandlerSet(Options{
		Logger:    logging.NewTestLogger(),
		Readiness: &fakeReadiness{clients: 1, uptime: 30 * time.Second},
		Stats: func() Stats {
			return Stats{
				Clients:       1,
				Ticks:         99,
				FramesSent:    97,
				FramesByCodec: map[string]uint64{"zstd": 97},
				Losses:        2,
				TickAverageMs: 1.25,
			}
		},
		Drops: func() map[string]input.DropCounters {
			return map[string]input.DropCounters{
				"conn-1": {Sequence: 1, RateLimited: 4},
			}
		},
	})

	rr := httptest.NewRecorder()
	handlers.MetricsHandler()(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		"broker_uptime_seconds 30",
		"broker_clients 1",
		"broker_ticks_total 99",
		"broker_frames_total 97",
		`broker_frames_by_codec_total{codec="zstd"} 97`,
		`broker_tick_duration_ms{stat="avg"} 1.250`,
		"broker_session_losses_total 2",
		`broker_intent_drops_total{client="conn-1",reason="rate_limit"} 4`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q in:\n%s", want, body)
		}
	}
}
