package gate

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestGate(clock *time.Time) *Gate {
	g := New(DefaultConfig(), zerolog.Nop())
	g.now = func() time.Time { return *clock }
	return g
}

func TestGateAdmitAndTrip(t *testing.T) {
	clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	g := newTestGate(&clock)

	if !g.Admit("payments-api") {
		t.Fatal("fresh breaker rejected")
	}

	for i := 0; i < 5; i++ {
		g.RecordOutcome("payments-api", false)
	}
	if g.Admit("payments-api") {
		t.Error("breaker admitting after 5 failures")
	}

	// Other services are unaffected.
	if !g.Admit("merchant-api") {
		t.Error("unrelated service breaker rejected")
	}
}

func TestGateRateLimit(t *testing.T) {
	clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	g := newTestGate(&clock)

	// The burst equals the per-minute budget, so roughly the first 100 pass.
	// The limiter refills on the wall clock, so allow a small margin.
	allowed := 0
	for i := 0; i < 150; i++ {
		if g.RateLimitAllow("10.0.0.1") {
			allowed++
		}
	}
	if allowed < 100 || allowed > 105 {
		t.Errorf("allowed = %d, want ~100", allowed)
	}

	// A different client has its own budget.
	if !g.RateLimitAllow("10.0.0.2") {
		t.Error("second client rejected on first request")
	}
}

func TestGateBreakerStatus(t *testing.T) {
	clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	g := newTestGate(&clock)

	if _, ok := g.BreakerStatus("unseen"); ok {
		t.Error("BreakerStatus for unseen key = ok, want miss")
	}

	g.Admit("svc")
	status, ok := g.BreakerStatus("svc")
	if !ok || status.State != StateClosed {
		t.Errorf("BreakerStatus = (%+v, %v), want closed", status, ok)
	}
}

func TestGateResetBreaker(t *testing.T) {
	clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	g := newTestGate(&clock)

	if g.ResetBreaker("unseen") {
		t.Error("ResetBreaker for unseen key = true, want false")
	}

	for i := 0; i < 5; i++ {
		g.RecordOutcome("svc", false)
	}
	if !g.ResetBreaker("svc") {
		t.Fatal("ResetBreaker = false, want true")
	}
	if !g.Admit("svc") {
		t.Error("breaker rejecting after reset")
	}
}

func TestGateTransitionHook(t *testing.T) {
	clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	g := newTestGate(&clock)

	type transition struct {
		service string
		to      BreakerState
	}
	var got []transition
	g.OnTransition = func(service string, to BreakerState) {
		got = append(got, transition{service, to})
	}

	for i := 0; i < 5; i++ {
		g.RecordOutcome("svc", false)
	}

	if len(got) != 1 || got[0].service != "svc" || got[0].to != StateOpen {
		t.Errorf("transitions = %v, want [{svc open}]", got)
	}
}

func TestGateSweep(t *testing.T) {
	clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	g := newTestGate(&clock)

	g.RateLimitAllow("idle-client")
	g.Admit("idle-service")

	// An open breaker must survive the sweep even when idle.
	for i := 0; i < 5; i++ {
		g.RecordOutcome("failing-service", false)
	}

	clock = clock.Add(16 * time.Minute)
	g.Sweep()

	nb, nl := g.Sizes()
	if nl != 0 {
		t.Errorf("limiters after sweep = %d, want 0", nl)
	}
	if nb != 1 {
		t.Errorf("breakers after sweep = %d, want 1 (the open one)", nb)
	}
	if _, ok := g.BreakerStatus("failing-service"); !ok {
		t.Error("open breaker evicted by sweep")
	}
}

func TestGateRecentEntriesSurviveSweep(t *testing.T) {
	clock := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	g := newTestGate(&clock)

	g.RateLimitAllow("old")
	clock = clock.Add(10 * time.Minute)
	g.RateLimitAllow("fresh")

	clock = clock.Add(6 * time.Minute) // old is 16m idle, fresh 6m
	g.Sweep()

	_, nl := g.Sizes()
	if nl != 1 {
		t.Errorf("limiters after sweep = %d, want 1", nl)
	}
}
