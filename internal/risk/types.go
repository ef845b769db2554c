// Package risk maintains per-merchant daily positions and enforces the
// configured spend and count limits.
package risk

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrProfileNotFound is returned by ProfileStore lookups for merchants
// without a configured risk profile.
var ErrProfileNotFound = errors.New("merchant risk profile not found")

// RiskTolerance buckets a merchant's configured appetite.
type RiskTolerance string

const (
	ToleranceLow       RiskTolerance = "LOW"
	ToleranceMedium    RiskTolerance = "MEDIUM"
	ToleranceHigh      RiskTolerance = "HIGH"
	ToleranceUnlimited RiskTolerance = "UNLIMITED"
)

// RiskLevel maps the tolerance onto the 1-4 scale the fraud scorer reads.
func (t RiskTolerance) RiskLevel() int {
	switch t {
	case ToleranceLow:
		return 1
	case ToleranceMedium:
		return 2
	case ToleranceHigh:
		return 3
	case ToleranceUnlimited:
		return 4
	default:
		return 2
	}
}

// MerchantRiskProfile is read-mostly reference data owned by admin tooling.
// The engine treats it as read-only input.
type MerchantRiskProfile struct {
	MerchantID            string
	DailyLimit            decimal.Decimal
	MonthlyLimit          decimal.Decimal
	TransactionCountLimit int64
	MaxSingleTransaction  decimal.Decimal
	RiskTolerance         RiskTolerance
	Active                bool
}

// DailyPosition is the running aggregate for one (merchant, UTC day).
// Invariants after every update:
//
//	TotalVolume == ApprovedVolume + DeclinedVolume
//	TransactionCount == ApprovedCount + DeclinedCount
type DailyPosition struct {
	MerchantID           string
	Date                 time.Time // UTC midnight
	TotalVolume          decimal.Decimal
	TransactionCount     int64
	ApprovedVolume       decimal.Decimal
	ApprovedCount        int64
	DeclinedVolume       decimal.Decimal
	DeclinedCount        int64
	MaxSingleTransaction decimal.Decimal
	AvgFraudScore        decimal.Decimal
	RiskExposurePercent  decimal.Decimal
}

// ApprovalRate returns ApprovedVolume / TotalVolume, zero when there is no
// volume.
func (p *DailyPosition) ApprovalRate() decimal.Decimal {
	if p.TotalVolume.IsZero() {
		return decimal.Zero
	}
	return p.ApprovedVolume.DivRound(p.TotalVolume, 4)
}

// PositionDelta is one transaction's additive contribution to a position.
// Applying a delta is atomic so concurrent settlements for the same merchant
// never lose increments.
type PositionDelta struct {
	Amount   decimal.Decimal
	Approved bool
}

// AlertType identifies which threshold a risk alert crossed.
type AlertType string

const (
	AlertDailyLimitApproached   AlertType = "DAILY_LIMIT_APPROACHED"
	AlertDailyLimitExceeded     AlertType = "DAILY_LIMIT_EXCEEDED"
	AlertMonthlyLimitApproached AlertType = "MONTHLY_LIMIT_APPROACHED"
	AlertMonthlyLimitExceeded   AlertType = "MONTHLY_LIMIT_EXCEEDED"
	AlertTransactionCountHigh   AlertType = "TRANSACTION_COUNT_HIGH"
	AlertSingleTransactionLarge AlertType = "SINGLE_TRANSACTION_LARGE"
	AlertFraudScoreElevated     AlertType = "FRAUD_SCORE_ELEVATED"
	AlertPositionConcentration  AlertType = "POSITION_CONCENTRATION"
)

// AlertLevel is the alert severity.
type AlertLevel string

const (
	LevelInfo      AlertLevel = "INFO"
	LevelWarning   AlertLevel = "WARNING"
	LevelCritical  AlertLevel = "CRITICAL"
	LevelEmergency AlertLevel = "EMERGENCY"
)

// Alert records a crossed threshold. Immutable except for Resolved, which an
// external resolution workflow owns.
type Alert struct {
	ID             uuid.UUID
	MerchantID     string
	Type           AlertType
	Level          AlertLevel
	ThresholdValue decimal.Decimal
	CurrentValue   decimal.Decimal
	Message        string
	TransactionID  string // optional
	Resolved       bool
	CreatedAt      time.Time
}

// Assessment is the pre-commit limit decision. Limit violations are normal
// results with Approved=false, never errors.
type Assessment struct {
	Approved        bool
	Reason          string
	ExposurePercent decimal.Decimal
}

// PositionSummary aggregates today's positions across all merchants.
type PositionSummary struct {
	TotalVolume       decimal.Decimal
	TotalTransactions int64
	ApprovedVolume    decimal.Decimal
	ApprovalRate      decimal.Decimal
	ActiveAlerts      int64
	MerchantCount     int
	Timestamp         time.Time
}

// ProfileStore resolves merchant risk profiles.
type ProfileStore interface {
	FindByMerchantID(ctx context.Context, merchantID string) (*MerchantRiskProfile, error)
}

// PositionStore persists daily positions. Current returns a zero-valued
// position when none exists yet; positions are created lazily by Apply.
type PositionStore interface {
	Current(ctx context.Context, merchantID string, date time.Time) (*DailyPosition, error)
	Apply(ctx context.Context, merchantID string, date time.Time, delta PositionDelta) (*DailyPosition, error)
	SetDerived(ctx context.Context, merchantID string, date time.Time, avgFraudScore, exposurePercent decimal.Decimal) error
	ListByDate(ctx context.Context, date time.Time) ([]*DailyPosition, error)
}

// AlertStore persists risk alerts.
type AlertStore interface {
	Insert(ctx context.Context, alert *Alert) error
	CountUnresolvedSince(ctx context.Context, since time.Time) (int64, error)
}

// TransactionStats is the slice of the transaction store the ledger needs to
// recompute a merchant's average fraud score.
type TransactionStats interface {
	AverageFraudScoreSince(ctx context.Context, merchantID string, since time.Time) (decimal.Decimal, error)
}
