package input

import (
	"sync"
	"testing"
	"time"

	"throttlerun/broker/internal/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestGate(clock Clock) *Gate {
	cfg := Config{MaxAge: 250 * time.Millisecond, MinInterval: 10 * time.Millisecond}
	return NewGate(cfg, logging.NewTestLogger(), WithClock(clock))
}

func TestGateRejectsNonMonotonicSequence(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	gate := newTestGate(clock)

	first := gate.Evaluate(Frame{ClientID: "conn-1", SequenceID: 1})
	if !first.Accepted {
		t.Fatalf("first frame unexpectedly rejected: %+v", first)
	}

	second := gate.Evaluate(Frame{ClientID: "conn-1", SequenceID: 1})
	if second.Accepted || second.Reason != DropReasonSequence {
		t.Fatalf("expected sequence drop, got %+v", second)
	}

	if metrics := gate.Metrics(); metrics["conn-1"].Sequence != 1 {
		t.Fatalf("sequence drops = %d, want 1", metrics["conn-1"].Sequence)
	}
}

func TestGateRejectsZeroSequence(t *testing.T) {
	gate := newTestGate(&fakeClock{now: time.Unix(0, 0)})
	decision := gate.Evaluate(Frame{ClientID: "conn-1", SequenceID: 0})
	if decision.Accepted || decision.Reason != DropReasonSequence {
		t.Fatalf("expected sequence drop for zero id, got %+v", decision)
	}
}

func TestGateRejectsStaleFrames(t *testing.T) {
	clock := &fakeClock{now: time.Unix(10, 0)}
	gate := newTestGate(clock)

	if decision := gate.Evaluate(Frame{ClientID: "pilot", SequenceID: 1}); !decision.Accepted {
		t.Fatalf("initial frame rejected: %+v", decision)
	}

	clock.Advance(time.Second)
	captured := clock.Now().Add(-600 * time.Millisecond)
	stale := gate.Evaluate(Frame{ClientID: "pilot", SequenceID: 2, SentAt: captured})
	if stale.Accepted || stale.Reason != DropReasonStale {
		t.Fatalf("expected stale drop, got %+v", stale)
	}
	if stale.Delay != 600*time.Millisecond {
		t.Fatalf("unexpected delay %v", stale.Delay)
	}
}

func TestGateRateLimitsRapidFrames(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	gate := newTestGate(clock)

	if decision := gate.Evaluate(Frame{ClientID: "pilot", SequenceID: 1}); !decision.Accepted {
		t.Fatalf("initial frame rejected: %+v", decision)
	}

	clock.Advance(2 * time.Millisecond)
	burst := gate.Evaluate(Frame{ClientID: "pilot", SequenceID: 2})
	if burst.Accepted || burst.Reason != DropReasonRateLimited {
		t.Fatalf("expected rate limit drop, got %+v", burst)
	}

	clock.Advance(20 * time.Millisecond)
	if decision := gate.Evaluate(Frame{ClientID: "pilot", SequenceID: 3}); !decision.Accepted {
		t.Fatalf("spaced frame rejected: %+v", decision)
	}
}

func TestGateForgetResetsClient(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	gate := newTestGate(clock)

	gate.Evaluate(Frame{ClientID: "pilot", SequenceID: 9})
	gate.Evaluate(Frame{ClientID: "pilot", SequenceID: 3})
	gate.Forget("pilot")

	if metrics := gate.Metrics(); metrics != nil {
		t.Fatalf("expected empty metrics after forget, got %v", metrics)
	}
	clock.Advance(time.Second)
	if decision := gate.Evaluate(Frame{ClientID: "pilot", SequenceID: 1}); !decision.Accepted {
		t.Fatalf("sequence state survived forget: %+v", decision)
	}
}
