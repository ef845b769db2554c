package gate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config tunes the request gate.
type Config struct {
	// Circuit breaker.
	FailureThreshold int
	OpenTimeout      time.Duration

	// Rate limiter: requests-per-minute budget per client key. Burst equals
	// the budget so a full minute's allowance can be spent at once.
	RateLimitRPM int

	// Entry lifecycle. Keys (client IPs, service names) appear without bound,
	// so idle entries are evicted by a periodic sweep.
	IdleTTL    time.Duration
	SweepEvery time.Duration
}

// DefaultConfig mirrors the production gateway defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenTimeout:      60 * time.Second,
		RateLimitRPM:     100,
		IdleTTL:          15 * time.Minute,
		SweepEvery:       2 * time.Minute,
	}
}

// Gate owns the per-service breakers and per-client limiters. The maps have
// their own locks for insertion; each breaker carries its own mutex, and
// rate.Limiter is internally synchronized, so admitted traffic for different
// keys never serializes on a shared lock.
type Gate struct {
	cfg Config
	log zerolog.Logger
	now func() time.Time

	// OnTransition, when set, observes breaker state changes.
	OnTransition func(service string, to BreakerState)

	breakersMu sync.RWMutex
	breakers   map[string]*breakerEntry

	limitersMu sync.RWMutex
	limiters   map[string]*limiterEntry
}

type breakerEntry struct {
	cb       *CircuitBreaker
	lastSeen time.Time
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// New creates a request gate.
func New(cfg Config, log zerolog.Logger) *Gate {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 60 * time.Second
	}
	if cfg.RateLimitRPM <= 0 {
		cfg.RateLimitRPM = 100
	}
	return &Gate{
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		breakers: make(map[string]*breakerEntry),
		limiters: make(map[string]*limiterEntry),
	}
}

// Admit reports whether a call to serviceKey may proceed under its breaker.
func (g *Gate) Admit(serviceKey string) bool {
	return g.breaker(serviceKey).Allow()
}

// RecordOutcome feeds a downstream call result back into the breaker.
func (g *Gate) RecordOutcome(serviceKey string, success bool) {
	cb := g.breaker(serviceKey)
	if success {
		cb.RecordSuccess()
	} else {
		cb.RecordFailure()
	}
}

// RateLimitAllow reports whether clientKey has token budget for one request.
func (g *Gate) RateLimitAllow(clientKey string) bool {
	return g.limiter(clientKey).Allow()
}

// BreakerStatus returns the breaker snapshot for serviceKey, if one exists.
func (g *Gate) BreakerStatus(serviceKey string) (BreakerStatus, bool) {
	g.breakersMu.RLock()
	ent, ok := g.breakers[serviceKey]
	g.breakersMu.RUnlock()
	if !ok {
		return BreakerStatus{}, false
	}
	return ent.cb.Status(), true
}

// ResetBreaker forces the breaker for serviceKey closed. Returns false when
// no breaker exists for the key.
func (g *Gate) ResetBreaker(serviceKey string) bool {
	g.breakersMu.RLock()
	ent, ok := g.breakers[serviceKey]
	g.breakersMu.RUnlock()
	if !ok {
		return false
	}
	ent.cb.Reset()
	g.log.Info().Str("service", serviceKey).Msg("circuit breaker reset")
	return true
}

// Sizes returns the live entry counts (breakers, limiters).
func (g *Gate) Sizes() (int, int) {
	g.breakersMu.RLock()
	nb := len(g.breakers)
	g.breakersMu.RUnlock()

	g.limitersMu.RLock()
	nl := len(g.limiters)
	g.limitersMu.RUnlock()
	return nb, nl
}

func (g *Gate) breaker(key string) *CircuitBreaker {
	now := g.now()

	g.breakersMu.Lock()
	defer g.breakersMu.Unlock()

	if ent, ok := g.breakers[key]; ok {
		ent.lastSeen = now
		return ent.cb
	}

	cb := NewCircuitBreaker(g.cfg.FailureThreshold, g.cfg.OpenTimeout)
	service := key
	cb.onTransition = func(to BreakerState) {
		g.log.Warn().Str("service", service).Str("state", to.String()).
			Msg("circuit breaker transition")
		if g.OnTransition != nil {
			g.OnTransition(service, to)
		}
	}
	g.breakers[key] = &breakerEntry{cb: cb, lastSeen: now}
	return cb
}

func (g *Gate) limiter(key string) *rate.Limiter {
	now := g.now()

	g.limitersMu.Lock()
	defer g.limitersMu.Unlock()

	if ent, ok := g.limiters[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(g.cfg.RateLimitRPM)), g.cfg.RateLimitRPM)
	g.limiters[key] = &limiterEntry{lim: lim, lastSeen: now}
	return lim
}

// Sweep evicts entries idle beyond IdleTTL. Open or half-open breakers are
// kept regardless: forgetting one would silently re-admit traffic to a
// failing dependency.
func (g *Gate) Sweep() {
	cutoff := g.now().Add(-g.cfg.IdleTTL)

	g.limitersMu.Lock()
	for k, ent := range g.limiters {
		if ent.lastSeen.Before(cutoff) {
			delete(g.limiters, k)
		}
	}
	g.limitersMu.Unlock()

	g.breakersMu.Lock()
	for k, ent := range g.breakers {
		if ent.lastSeen.Before(cutoff) && ent.cb.Status().State == StateClosed {
			delete(g.breakers, k)
		}
	}
	g.breakersMu.Unlock()
}

// StartJanitor evicts idle entries every SweepEvery until ctx is done.
func (g *Gate) StartJanitor(ctx context.Context) {
	if g.cfg.SweepEvery <= 0 {
		return
	}
	t := time.NewTicker(g.cfg.SweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				g.Sweep()
			}
		}
	}()
}
