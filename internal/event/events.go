// Package event defines the payloads the engine publishes for dashboards and
// admin tooling, and the sink interface the transport implements.
package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// NATS subjects for outbound engine events.
const (
	SubjectTransactions = "risk.engine.transactions"
	SubjectFraudAlerts  = "risk.engine.alerts.fraud"
	SubjectRiskAlerts   = "risk.engine.alerts.risk"
	SubjectPositions    = "risk.engine.positions"
)

// TransactionEvent announces one settled transaction.
type TransactionEvent struct {
	TransactionID string          `json:"transaction_id"`
	MerchantID    string          `json:"merchant_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	FraudScore    int             `json:"fraud_score"`
	Timestamp     time.Time       `json:"timestamp"`
}

// FraudAlert flags a high-score transaction for the monitoring channel.
type FraudAlert struct {
	TransactionID string          `json:"transaction_id"`
	MerchantID    string          `json:"merchant_id"`
	Amount        decimal.Decimal `json:"amount"`
	FraudScore    int             `json:"fraud_score"`
	RiskLevel     string          `json:"risk_level"`
	Message       string          `json:"message"`
	Timestamp     time.Time       `json:"timestamp"`
}

// RiskAlertEvent mirrors a ledger alert onto the event stream.
type RiskAlertEvent struct {
	MerchantID     string          `json:"merchant_id"`
	AlertType      string          `json:"alert_type"`
	AlertLevel     string          `json:"alert_level"`
	ThresholdValue decimal.Decimal `json:"threshold_value"`
	CurrentValue   decimal.Decimal `json:"current_value"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// PositionUpdate announces the refreshed daily position of one merchant.
type PositionUpdate struct {
	MerchantID       string          `json:"merchant_id"`
	TotalVolume      decimal.Decimal `json:"total_volume"`
	TransactionCount int64           `json:"transaction_count"`
	RiskExposure     decimal.Decimal `json:"risk_exposure"`
	ApprovalRate     decimal.Decimal `json:"approval_rate"`
	Timestamp        time.Time       `json:"timestamp"`
}
