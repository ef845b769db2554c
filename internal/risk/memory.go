package risk

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryPositionStore keeps daily positions in memory. The map lock only
// covers lookup and insertion; each position has its own mutex, so
// concurrent settlements for different merchants do not serialize.
// Suitable for single-process deployments and tests; the Postgres store
// covers everything else.
type MemoryPositionStore struct {
	mu        sync.RWMutex
	positions map[positionKey]*positionEntry
}

type positionKey struct {
	merchantID string
	date       string
}

type positionEntry struct {
	mu  sync.Mutex
	pos DailyPosition
}

func NewMemoryPositionStore() *MemoryPositionStore {
	return &MemoryPositionStore{positions: make(map[positionKey]*positionEntry)}
}

func keyFor(merchantID string, date time.Time) positionKey {
	return positionKey{merchantID: merchantID, date: date.UTC().Format("2006-01-02")}
}

func (s *MemoryPositionStore) entry(merchantID string, date time.Time, create bool) *positionEntry {
	k := keyFor(merchantID, date)

	s.mu.RLock()
	e, ok := s.positions[k]
	s.mu.RUnlock()
	if ok || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.positions[k]; ok {
		return e
	}
	e = &positionEntry{pos: *emptyPosition(merchantID, utcDate(date))}
	s.positions[k] = e
	return e
}

func (s *MemoryPositionStore) Current(_ context.Context, merchantID string, date time.Time) (*DailyPosition, error) {
	e := s.entry(merchantID, date, false)
	if e == nil {
		return nil, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := e.pos
	return &cp, nil
}

func (s *MemoryPositionStore) Apply(_ context.Context, merchantID string, date time.Time, delta PositionDelta) (*DailyPosition, error) {
	e := s.entry(merchantID, date, true)

	e.mu.Lock()
	defer e.mu.Unlock()

	p := &e.pos
	p.TotalVolume = p.TotalVolume.Add(delta.Amount)
	p.TransactionCount++
	if delta.Approved {
		p.ApprovedVolume = p.ApprovedVolume.Add(delta.Amount)
		p.ApprovedCount++
	} else {
		p.DeclinedVolume = p.DeclinedVolume.Add(delta.Amount)
		p.DeclinedCount++
	}
	if delta.Amount.GreaterThan(p.MaxSingleTransaction) {
		p.MaxSingleTransaction = delta.Amount
	}

	cp := *p
	return &cp, nil
}

func (s *MemoryPositionStore) SetDerived(_ context.Context, merchantID string, date time.Time, avgFraudScore, exposurePercent decimal.Decimal) error {
	e := s.entry(merchantID, date, false)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos.AvgFraudScore = avgFraudScore
	e.pos.RiskExposurePercent = exposurePercent
	return nil
}

func (s *MemoryPositionStore) ListByDate(_ context.Context, date time.Time) ([]*DailyPosition, error) {
	want := date.UTC().Format("2006-01-02")

	s.mu.RLock()
	entries := make([]*positionEntry, 0, len(s.positions))
	for k, e := range s.positions {
		if k.date == want {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	out := make([]*DailyPosition, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		cp := e.pos
		e.mu.Unlock()
		out = append(out, &cp)
	}
	return out, nil
}

// MemoryAlertStore keeps alerts in memory.
type MemoryAlertStore struct {
	mu     sync.Mutex
	alerts []*Alert
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{}
}

func (s *MemoryAlertStore) Insert(_ context.Context, alert *Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *alert
	s.alerts = append(s.alerts, &cp)
	return nil
}

func (s *MemoryAlertStore) CountUnresolvedSince(_ context.Context, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, a := range s.alerts {
		if !a.Resolved && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// All returns a copy of every stored alert, newest last.
func (s *MemoryAlertStore) All() []*Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// MemoryProfileStore serves profiles from a fixed map.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*MerchantRiskProfile
}

func NewMemoryProfileStore(profiles ...*MerchantRiskProfile) *MemoryProfileStore {
	m := make(map[string]*MerchantRiskProfile, len(profiles))
	for _, p := range profiles {
		m[p.MerchantID] = p
	}
	return &MemoryProfileStore{profiles: m}
}

func (s *MemoryProfileStore) FindByMerchantID(_ context.Context, merchantID string) (*MerchantRiskProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[merchantID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

// Put adds or replaces a profile.
func (s *MemoryProfileStore) Put(p *MerchantRiskProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.MerchantID] = p
}
