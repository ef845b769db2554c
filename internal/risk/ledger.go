package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"RiskEngine/internal/event"
	"RiskEngine/internal/payment"
)

// approachFraction is the share of the daily limit at which a non-blocking
// warning alert fires.
var approachFraction = decimal.NewFromFloat(0.8)

// defaultLimitUnknownMerchant blocks transactions above this amount when no
// risk profile exists.
var defaultLimitUnknownMerchant = decimal.NewFromInt(5000)

// defaultExposureUnknownMerchant is the flat exposure estimate reported for
// approved transactions of unprofiled merchants.
var defaultExposureUnknownMerchant = decimal.NewFromInt(10)

var oneHundred = decimal.NewFromInt(100)

// Ledger enforces per-merchant limits and maintains daily positions.
//
// Failure posture: store errors during assessment or position updates are
// logged and absorbed; degraded risk bookkeeping is preferred over blocking
// the payment path. Only limit violations surface, as Approved=false.
type Ledger struct {
	profiles  ProfileStore
	positions PositionStore
	alerts    AlertStore
	txStats   TransactionStats
	sink      event.Sink
	log       zerolog.Logger
	now       func() time.Time

	// OnAlert, when set, observes every alert the ledger creates.
	OnAlert func(a *Alert)
	// OnStoreError, when set, observes absorbed persistence errors.
	OnStoreError func(store string)
}

// NewLedger creates a risk ledger. txStats may be nil; average fraud scores
// then stay at zero.
func NewLedger(profiles ProfileStore, positions PositionStore, alerts AlertStore, txStats TransactionStats, sink event.Sink, log zerolog.Logger) *Ledger {
	if sink == nil {
		sink = event.NopSink{}
	}
	return &Ledger{
		profiles:  profiles,
		positions: positions,
		alerts:    alerts,
		txStats:   txStats,
		sink:      sink,
		log:       log,
		now:       time.Now,
	}
}

// Today returns the current UTC position date. Day boundaries are UTC by
// decision; see DESIGN.md.
func (l *Ledger) Today() time.Time {
	return utcDate(l.now())
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AssessTransactionRisk runs the pre-commit limit checks for one request.
func (l *Ledger) AssessTransactionRisk(ctx context.Context, req payment.Request) Assessment {
	profile, err := l.profiles.FindByMerchantID(ctx, req.MerchantID)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		return l.assessUnknownMerchant(req)
	case err != nil:
		// Conservative default when the profile store is down: same policy
		// as an unknown merchant.
		l.storeError("profiles", err)
		return l.assessUnknownMerchant(req)
	case profile == nil:
		return l.assessUnknownMerchant(req)
	}

	if req.Amount.GreaterThan(profile.MaxSingleTransaction) {
		l.createAlert(ctx, &Alert{
			MerchantID:     req.MerchantID,
			Type:           AlertSingleTransactionLarge,
			Level:          LevelCritical,
			ThresholdValue: profile.MaxSingleTransaction,
			CurrentValue:   req.Amount,
			Message:        "Transaction exceeds single transaction limit",
		})
		return Assessment{
			Approved: false,
			Reason:   fmt.Sprintf("Transaction exceeds single transaction limit of $%s", profile.MaxSingleTransaction.String()),
		}
	}

	position := l.currentPosition(ctx, req.MerchantID)

	projected := position.TotalVolume.Add(req.Amount)
	if projected.GreaterThan(profile.DailyLimit) {
		l.createAlert(ctx, &Alert{
			MerchantID:     req.MerchantID,
			Type:           AlertDailyLimitExceeded,
			Level:          LevelCritical,
			ThresholdValue: profile.DailyLimit,
			CurrentValue:   projected,
			Message:        "Daily limit exceeded",
		})
		return Assessment{
			Approved: false,
			Reason:   fmt.Sprintf("Daily limit of $%s would be exceeded", profile.DailyLimit.String()),
		}
	}

	if position.TransactionCount >= profile.TransactionCountLimit {
		l.createAlert(ctx, &Alert{
			MerchantID:     req.MerchantID,
			Type:           AlertTransactionCountHigh,
			Level:          LevelWarning,
			ThresholdValue: decimal.NewFromInt(profile.TransactionCountLimit),
			CurrentValue:   decimal.NewFromInt(position.TransactionCount),
			Message:        "Daily transaction count limit reached",
		})
		return Assessment{
			Approved: false,
			Reason:   "Daily transaction count limit reached",
		}
	}

	// Approaching the daily limit is a warning, not a block.
	if projected.GreaterThan(profile.DailyLimit.Mul(approachFraction)) {
		l.createAlert(ctx, &Alert{
			MerchantID:     req.MerchantID,
			Type:           AlertDailyLimitApproached,
			Level:          LevelWarning,
			ThresholdValue: profile.DailyLimit,
			CurrentValue:   projected,
			Message:        "Approaching daily limit (80% threshold)",
		})
	}

	exposure := exposurePercent(projected, profile.DailyLimit)
	return Assessment{
		Approved:        true,
		Reason:          fmt.Sprintf("Transaction approved - %s%% of daily limit", exposure.StringFixed(1)),
		ExposurePercent: exposure,
	}
}

func (l *Ledger) assessUnknownMerchant(req payment.Request) Assessment {
	if req.Amount.GreaterThan(defaultLimitUnknownMerchant) {
		return Assessment{
			Approved: false,
			Reason:   "Amount exceeds default limit for unregistered merchant",
		}
	}
	return Assessment{
		Approved:        true,
		Reason:          "No risk profile found",
		ExposurePercent: defaultExposureUnknownMerchant,
	}
}

// UpdatePosition applies one settled transaction to the merchant's daily
// position and publishes the refreshed position. Called exactly once per
// settled transaction, after commit. All store errors are absorbed.
func (l *Ledger) UpdatePosition(ctx context.Context, txn *payment.Transaction) {
	date := l.Today()

	position, err := l.positions.Apply(ctx, txn.MerchantID, date, PositionDelta{
		Amount:   txn.Amount,
		Approved: txn.Approved(),
	})
	if err != nil {
		l.storeError("positions", err)
		l.log.Error().Err(err).Str("merchant_id", txn.MerchantID).
			Msg("position update failed, risk bookkeeping degraded")
		return
	}

	avgScore := l.averageFraudScore(ctx, txn.MerchantID, date)
	position.AvgFraudScore = avgScore

	if profile, err := l.profiles.FindByMerchantID(ctx, txn.MerchantID); err == nil && profile != nil {
		position.RiskExposurePercent = exposurePercent(position.TotalVolume, profile.DailyLimit)
	}

	if err := l.positions.SetDerived(ctx, txn.MerchantID, date, position.AvgFraudScore, position.RiskExposurePercent); err != nil {
		l.storeError("positions", err)
	}

	l.publish(ctx, event.SubjectPositions, event.PositionUpdate{
		MerchantID:       position.MerchantID,
		TotalVolume:      position.TotalVolume,
		TransactionCount: position.TransactionCount,
		RiskExposure:     position.RiskExposurePercent,
		ApprovalRate:     position.ApprovalRate(),
		Timestamp:        l.now().UTC(),
	})

	l.log.Debug().
		Str("merchant_id", txn.MerchantID).
		Str("total_volume", position.TotalVolume.String()).
		Int64("count", position.TransactionCount).
		Str("exposure", position.RiskExposurePercent.String()).
		Msg("position updated")
}

// GetPortfolioSummary aggregates today's positions across merchants.
func (l *Ledger) GetPortfolioSummary(ctx context.Context) (PositionSummary, error) {
	date := l.Today()

	positions, err := l.positions.ListByDate(ctx, date)
	if err != nil {
		return PositionSummary{}, fmt.Errorf("list positions: %w", err)
	}

	summary := PositionSummary{
		TotalVolume:    decimal.Zero,
		ApprovedVolume: decimal.Zero,
		MerchantCount:  len(positions),
		Timestamp:      l.now().UTC(),
	}
	for _, p := range positions {
		summary.TotalVolume = summary.TotalVolume.Add(p.TotalVolume)
		summary.ApprovedVolume = summary.ApprovedVolume.Add(p.ApprovedVolume)
		summary.TotalTransactions += p.TransactionCount
	}
	if !summary.TotalVolume.IsZero() {
		summary.ApprovalRate = summary.ApprovedVolume.DivRound(summary.TotalVolume, 4)
	}

	active, err := l.alerts.CountUnresolvedSince(ctx, date)
	if err != nil {
		// Summary stays useful without the alert count.
		l.storeError("alerts", err)
	} else {
		summary.ActiveAlerts = active
	}

	return summary, nil
}

// CurrentPosition returns the merchant's live position for today, zero when
// no transaction has settled yet.
func (l *Ledger) CurrentPosition(ctx context.Context, merchantID string) *DailyPosition {
	return l.currentPosition(ctx, merchantID)
}

func (l *Ledger) currentPosition(ctx context.Context, merchantID string) *DailyPosition {
	date := l.Today()
	position, err := l.positions.Current(ctx, merchantID, date)
	if err != nil {
		l.storeError("positions", err)
		return emptyPosition(merchantID, date)
	}
	if position == nil {
		return emptyPosition(merchantID, date)
	}
	return position
}

func emptyPosition(merchantID string, date time.Time) *DailyPosition {
	return &DailyPosition{
		MerchantID:           merchantID,
		Date:                 date,
		TotalVolume:          decimal.Zero,
		ApprovedVolume:       decimal.Zero,
		DeclinedVolume:       decimal.Zero,
		MaxSingleTransaction: decimal.Zero,
		AvgFraudScore:        decimal.Zero,
		RiskExposurePercent:  decimal.Zero,
	}
}

func (l *Ledger) averageFraudScore(ctx context.Context, merchantID string, since time.Time) decimal.Decimal {
	if l.txStats == nil {
		return decimal.Zero
	}
	avg, err := l.txStats.AverageFraudScoreSince(ctx, merchantID, since)
	if err != nil {
		l.storeError("transactions", err)
		return decimal.Zero
	}
	return avg.Round(2)
}

func (l *Ledger) createAlert(ctx context.Context, alert *Alert) {
	alert.ID = uuid.New()
	alert.CreatedAt = l.now().UTC()
	alert.Resolved = false

	if err := l.alerts.Insert(ctx, alert); err != nil {
		l.storeError("alerts", err)
		l.log.Error().Err(err).Str("merchant_id", alert.MerchantID).
			Str("type", string(alert.Type)).Msg("failed to persist risk alert")
	}

	l.publish(ctx, event.SubjectRiskAlerts, event.RiskAlertEvent{
		MerchantID:     alert.MerchantID,
		AlertType:      string(alert.Type),
		AlertLevel:     string(alert.Level),
		ThresholdValue: alert.ThresholdValue,
		CurrentValue:   alert.CurrentValue,
		TransactionID:  alert.TransactionID,
		Timestamp:      alert.CreatedAt,
	})

	if l.OnAlert != nil {
		l.OnAlert(alert)
	}

	l.log.Warn().
		Str("merchant_id", alert.MerchantID).
		Str("type", string(alert.Type)).
		Str("level", string(alert.Level)).
		Str("message", alert.Message).
		Msg("risk alert created")
}

func (l *Ledger) publish(ctx context.Context, subject string, payload any) {
	if err := l.sink.Publish(ctx, subject, payload); err != nil {
		l.log.Warn().Err(err).Str("subject", subject).Msg("event publish failed")
	}
}

func (l *Ledger) storeError(store string, err error) {
	l.log.Warn().Err(err).Str("store", store).Msg("store error absorbed")
	if l.OnStoreError != nil {
		l.OnStoreError(store)
	}
}

func exposurePercent(volume, limit decimal.Decimal) decimal.Decimal {
	if limit.IsZero() {
		return decimal.Zero
	}
	return volume.DivRound(limit, 4).Mul(oneHundred)
}
