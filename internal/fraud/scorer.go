// Package fraud computes the 0-100 risk score for incoming transactions.
//
// Scoring is additive over independent rules; velocity rules read the
// counter store and degrade to no-signal when it is unreachable. After
// scoring, the transaction is recorded into the store so later transactions
// see it, regardless of the verdict.
package fraud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"RiskEngine/internal/counter"
	"RiskEngine/internal/payment"
)

// Verdict buckets the score for callers. The decline boundary is a single
// consistent cutoff: <=50 approved, 51-70 review, >70 declined.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictReview   Verdict = "review"
	VerdictDeclined Verdict = "declined"
)

// Rule names, also used as the human-readable triggered reasons.
const (
	RuleHighAmount       = "High amount transaction"
	RuleRoundAmount      = "Suspicious round amount"
	RuleHighRiskMerchant = "High-risk merchant"
	RuleCardVelocity     = "High card velocity"
	RuleMerchantVelocity = "High merchant velocity"
	RuleAmountPattern    = "Unusual amount pattern"
	RuleOffHours         = "Off-hours transaction"
)

// Result is the outcome of one evaluation. Not persisted by the engine.
type Result struct {
	RiskScore      int
	TriggeredRules []string
	Verdict        Verdict
	Reason         string
}

// Rule thresholds.
var (
	highAmountFloor   = decimal.NewFromInt(1000)
	roundAmountFloor  = decimal.NewFromInt(5000)
	roundAmountUnit   = decimal.NewFromInt(1000)
	cardAmountCeiling = decimal.NewFromInt(5000)
)

const (
	cardVelocityLimit     = 5  // prior transactions per card per hour
	merchantVelocityLimit = 50 // prior transactions per merchant per 10 minutes
	amountPatternLimit    = 3  // prior identical (card, amount) pairs per day
	highRiskMerchantLevel = 3

	cardVelocityTTL     = time.Hour
	cardAmountTTL       = time.Hour
	merchantVelocityTTL = 10 * time.Minute
	amountPatternTTL    = 24 * time.Hour
)

// MerchantRiskLevels resolves a merchant's configured risk level (1-4).
// found is false for unknown merchants.
type MerchantRiskLevels interface {
	MerchantRiskLevel(ctx context.Context, merchantID string) (level int, found bool)
}

// RiskLevelFunc adapts a function to MerchantRiskLevels.
type RiskLevelFunc func(ctx context.Context, merchantID string) (int, bool)

func (f RiskLevelFunc) MerchantRiskLevel(ctx context.Context, merchantID string) (int, bool) {
	return f(ctx, merchantID)
}

// Scorer evaluates transactions against the rule set.
type Scorer struct {
	counters  counter.Store
	merchants MerchantRiskLevels
	log       zerolog.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewScorer creates a Scorer. loc controls which wall clock the off-hours
// rule reads; nil means UTC.
func NewScorer(counters counter.Store, merchants MerchantRiskLevels, log zerolog.Logger, loc *time.Location) *Scorer {
	if loc == nil {
		loc = time.UTC
	}
	return &Scorer{
		counters:  counters,
		merchants: merchants,
		log:       log,
		loc:       loc,
		now:       time.Now,
	}
}

// Evaluate scores one transaction. It never fails: counter-store outages and
// merchant-lookup misses contribute zero signal.
func (s *Scorer) Evaluate(ctx context.Context, req payment.Request) Result {
	score := 0
	var triggered []string

	hit := func(points int, rule string) {
		score += points
		triggered = append(triggered, rule)
	}

	if req.Amount.GreaterThan(highAmountFloor) {
		hit(25, RuleHighAmount)
		s.log.Debug().Str("amount", req.Amount.String()).Msg("high amount detected")
	}

	if req.Amount.Mod(roundAmountUnit).IsZero() && req.Amount.GreaterThan(roundAmountFloor) {
		hit(30, RuleRoundAmount)
		s.log.Debug().Str("amount", req.Amount.String()).Msg("suspicious round amount")
	}

	if level, found := s.merchants.MerchantRiskLevel(ctx, req.MerchantID); found && level >= highRiskMerchantLevel {
		hit(15, RuleHighRiskMerchant)
		s.log.Debug().Str("merchant_id", req.MerchantID).Int("risk_level", level).
			Msg("high-risk merchant")
	}

	if points := s.checkCardVelocity(ctx, req); points > 0 {
		hit(points, RuleCardVelocity)
	}
	if points := s.checkMerchantVelocity(ctx, req.MerchantID); points > 0 {
		hit(points, RuleMerchantVelocity)
	}
	if points := s.checkAmountPattern(ctx, req); points > 0 {
		hit(points, RuleAmountPattern)
	}
	if points := s.checkOffHours(); points > 0 {
		hit(points, RuleOffHours)
	}

	// Record this transaction so later evaluations see it. Recording
	// failures are already logged by the store and must not fail the
	// evaluation.
	s.record(ctx, req)

	if score > 100 {
		score = 100
	}

	return Result{
		RiskScore:      score,
		TriggeredRules: triggered,
		Verdict:        verdictFor(score),
		Reason:         buildReason(score, triggered),
	}
}

// checkCardVelocity scores the per-card count and amount windows. Both
// counters are read before this transaction is recorded, so a card's sixth
// transaction within the hour is the first to trip the count rule.
func (s *Scorer) checkCardVelocity(ctx context.Context, req payment.Request) int {
	points := 0

	if count, found := s.counters.GetInt(ctx, cardVelocityKey(req.CardFingerprint)); found && count >= cardVelocityLimit {
		points += 20
		s.log.Debug().Int64("count", count).Msg("card velocity risk")
	}

	total, _ := s.counters.GetDecimal(ctx, cardAmountKey(req.CardFingerprint))
	if total.Add(req.Amount).GreaterThan(cardAmountCeiling) {
		points += 25
		s.log.Debug().Str("total", total.Add(req.Amount).String()).Msg("card amount velocity risk")
	}

	return points
}

func (s *Scorer) checkMerchantVelocity(ctx context.Context, merchantID string) int {
	if count, found := s.counters.GetInt(ctx, merchantVelocityKey(merchantID)); found && count >= merchantVelocityLimit {
		s.log.Debug().Str("merchant_id", merchantID).Int64("count", count).
			Msg("merchant velocity risk")
		return 15
	}
	return 0
}

func (s *Scorer) checkAmountPattern(ctx context.Context, req payment.Request) int {
	if count, found := s.counters.GetInt(ctx, amountPatternKey(req.CardFingerprint, req.Amount)); found && count >= amountPatternLimit {
		s.log.Debug().Str("amount", req.Amount.String()).Int64("count", count).
			Msg("repeated amount pattern")
		return 20
	}
	return 0
}

func (s *Scorer) checkOffHours() int {
	hour := s.now().In(s.loc).Hour()
	if hour >= 23 || hour <= 5 {
		return 10
	}
	return 0
}

func (s *Scorer) record(ctx context.Context, req payment.Request) {
	s.counters.Increment(ctx, cardVelocityKey(req.CardFingerprint), cardVelocityTTL)
	s.counters.AddAndGet(ctx, cardAmountKey(req.CardFingerprint), req.Amount, cardAmountTTL)
	s.counters.Increment(ctx, merchantVelocityKey(req.MerchantID), merchantVelocityTTL)
	s.counters.Increment(ctx, amountPatternKey(req.CardFingerprint, req.Amount), amountPatternTTL)
}

func verdictFor(score int) Verdict {
	switch {
	case score <= 50:
		return VerdictApproved
	case score <= 70:
		return VerdictReview
	default:
		return VerdictDeclined
	}
}

func buildReason(score int, triggered []string) string {
	var base string
	switch {
	case score <= 20:
		base = "Low risk transaction"
	case score <= 50:
		base = "Medium risk - approved with monitoring"
	case score <= 70:
		base = "Elevated risk - flagged for review"
	default:
		base = "High risk - transaction declined"
	}
	if len(triggered) == 0 {
		return base
	}
	return base + " - " + strings.Join(triggered, ", ")
}

func cardVelocityKey(card string) string { return "card_velocity:" + card }

func cardAmountKey(card string) string { return "card_amount:" + card }

func merchantVelocityKey(id string) string { return "merchant_velocity:" + id }

func amountPatternKey(card string, amount decimal.Decimal) string {
	return fmt.Sprintf("amount_pattern:%s:%s", card, amount.String())
}
