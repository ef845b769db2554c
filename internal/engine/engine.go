// Package engine is the facade the payment-processing orchestration layer
// calls: admission control, fraud scoring, pre-commit risk assessment and
// post-commit settlement bookkeeping.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"RiskEngine/internal/event"
	"RiskEngine/internal/fraud"
	"RiskEngine/internal/gate"
	"RiskEngine/internal/observability"
	"RiskEngine/internal/payment"
	"RiskEngine/internal/risk"
)

// Validation errors. These are the only errors the decision surface
// returns; infrastructure failures are recovered internally.
var (
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrMissingMerchant = errors.New("merchant identifier required")
	ErrMissingCard     = errors.New("card fingerprint required")
	ErrInvalidStatus   = errors.New("settlement status must be approved or declined")
)

// fraudAlertFloor is the score above which a settled transaction also
// produces a fraud alert on the monitoring channel.
const fraudAlertFloor = 50

// TransactionStore is the slice of persistence the engine needs.
type TransactionStore interface {
	Save(ctx context.Context, t *payment.Transaction) error
	FindByID(ctx context.Context, transactionID string) (*payment.Transaction, error)
}

// Deps holds everything an Engine needs. Metrics may be nil (tests).
type Deps struct {
	Scorer       *fraud.Scorer
	Ledger       *risk.Ledger
	Gate         *gate.Gate
	Transactions TransactionStore
	Sink         event.Sink
	Log          zerolog.Logger
	Metrics      *observability.Metrics
}

// Engine is safe for concurrent use by any number of request handlers.
type Engine struct {
	scorer  *fraud.Scorer
	ledger  *risk.Ledger
	gate    *gate.Gate
	txns    TransactionStore
	sink    event.Sink
	log     zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// New assembles the engine.
func New(d Deps) *Engine {
	sink := d.Sink
	if sink == nil {
		sink = event.NopSink{}
	}
	return &Engine{
		scorer:  d.Scorer,
		ledger:  d.Ledger,
		gate:    d.Gate,
		txns:    d.Transactions,
		sink:    sink,
		log:     d.Log,
		metrics: d.Metrics,
		now:     time.Now,
	}
}

// ValidateRequest rejects malformed requests before any scoring happens.
func ValidateRequest(req payment.Request) error {
	if req.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if req.MerchantID == "" {
		return ErrMissingMerchant
	}
	if req.CardFingerprint == "" {
		return ErrMissingCard
	}
	return nil
}

// Admit reports whether a proxied call to serviceKey may proceed. A false
// result means "temporarily unavailable", never a fraud decision.
func (e *Engine) Admit(serviceKey string) bool {
	allowed := e.gate.Admit(serviceKey)
	if !allowed && e.metrics != nil {
		e.metrics.BreakerRejections.WithLabelValues(serviceKey).Inc()
	}
	return allowed
}

// RecordOutcome feeds a downstream call result into the breaker.
func (e *Engine) RecordOutcome(serviceKey string, success bool) {
	e.gate.RecordOutcome(serviceKey, success)
}

// RateLimitAllow reports whether clientKey is within its request budget.
func (e *Engine) RateLimitAllow(clientKey string) bool {
	allowed := e.gate.RateLimitAllow(clientKey)
	if !allowed {
		e.log.Debug().Str("client", clientKey).Msg("rate limit exceeded")
		if e.metrics != nil {
			e.metrics.RateLimitHits.Inc()
		}
	}
	return allowed
}

// ScoreTransaction validates and scores one transaction.
func (e *Engine) ScoreTransaction(ctx context.Context, req payment.Request) (fraud.Result, error) {
	if err := ValidateRequest(req); err != nil {
		return fraud.Result{}, err
	}

	start := e.now()
	result := e.scorer.Evaluate(ctx, req)

	if e.metrics != nil {
		e.metrics.ScoreDuration.Observe(e.now().Sub(start).Seconds())
		e.metrics.TransactionsScored.WithLabelValues(string(result.Verdict)).Inc()
		for _, rule := range result.TriggeredRules {
			e.metrics.FraudRuleHits.WithLabelValues(rule).Inc()
		}
	}

	e.log.Info().
		Str("merchant_id", req.MerchantID).
		Str("amount", req.Amount.String()).
		Int("score", result.RiskScore).
		Str("verdict", string(result.Verdict)).
		Msg("transaction scored")

	return result, nil
}

// AssessRisk runs the pre-commit limit checks.
func (e *Engine) AssessRisk(ctx context.Context, req payment.Request) (risk.Assessment, error) {
	if err := ValidateRequest(req); err != nil {
		return risk.Assessment{}, err
	}

	a := e.ledger.AssessTransactionRisk(ctx, req)

	if e.metrics != nil {
		outcome := "approved"
		if !a.Approved {
			outcome = "blocked"
		}
		e.metrics.AssessmentsTotal.WithLabelValues(outcome).Inc()
	}
	return a, nil
}

// SettleTransaction records one committed transaction: persists it, applies
// it to the merchant's daily position, and publishes the transaction event
// plus a fraud alert for high scores. Persistence failures degrade
// bookkeeping but never fail the settlement.
func (e *Engine) SettleTransaction(ctx context.Context, txn *payment.Transaction) error {
	if txn.TransactionID == "" || txn.MerchantID == "" {
		return ErrMissingMerchant
	}
	if txn.Amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if txn.Status != payment.StatusApproved && txn.Status != payment.StatusDeclined {
		return ErrInvalidStatus
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = e.now().UTC()
	}

	if err := e.txns.Save(ctx, txn); err != nil {
		e.log.Error().Err(err).Str("transaction_id", txn.TransactionID).
			Msg("transaction save failed, continuing settlement")
		if e.metrics != nil {
			e.metrics.PersistErrors.WithLabelValues("transactions").Inc()
		}
	}

	e.ledger.UpdatePosition(ctx, txn)
	if e.metrics != nil {
		e.metrics.PositionsUpdated.Inc()
	}

	e.publish(ctx, event.SubjectTransactions, event.TransactionEvent{
		TransactionID: txn.TransactionID,
		MerchantID:    txn.MerchantID,
		Amount:        txn.Amount,
		Status:        string(txn.Status),
		FraudScore:    txn.FraudScore,
		Timestamp:     txn.CreatedAt,
	})

	if txn.FraudScore > fraudAlertFloor {
		level := riskLevelFor(txn.FraudScore)
		e.publish(ctx, event.SubjectFraudAlerts, event.FraudAlert{
			TransactionID: txn.TransactionID,
			MerchantID:    txn.MerchantID,
			Amount:        txn.Amount,
			FraudScore:    txn.FraudScore,
			RiskLevel:     level,
			Message:       fmt.Sprintf("Fraud score %d on settled transaction", txn.FraudScore),
			Timestamp:     e.now().UTC(),
		})
		if e.metrics != nil {
			e.metrics.FraudAlertsSent.WithLabelValues(level).Inc()
		}
		e.log.Warn().Str("transaction_id", txn.TransactionID).
			Int("score", txn.FraudScore).Str("level", level).
			Msg("fraud alert sent")
	}

	return nil
}

// GetPortfolioSummary aggregates today's positions across all merchants.
func (e *Engine) GetPortfolioSummary(ctx context.Context) (risk.PositionSummary, error) {
	return e.ledger.GetPortfolioSummary(ctx)
}

// GetCircuitBreakerStatus returns the breaker snapshot for a service key.
func (e *Engine) GetCircuitBreakerStatus(serviceKey string) (gate.BreakerStatus, bool) {
	return e.gate.BreakerStatus(serviceKey)
}

// ResetCircuitBreaker forces a breaker closed. Admin operation.
func (e *Engine) ResetCircuitBreaker(serviceKey string) bool {
	return e.gate.ResetBreaker(serviceKey)
}

func (e *Engine) publish(ctx context.Context, subject string, payload any) {
	if err := e.sink.Publish(ctx, subject, payload); err != nil {
		e.log.Warn().Err(err).Str("subject", subject).Msg("event publish failed")
		if e.metrics != nil {
			e.metrics.EventPublishFailures.WithLabelValues(subject).Inc()
		}
	}
}

func riskLevelFor(score int) string {
	switch {
	case score > 90:
		return "CRITICAL"
	case score > 75:
		return "HIGH"
	case score > 50:
		return "MEDIUM"
	default:
		return "LOW"
	}
}
