// Package payment defines the transaction types shared by the fraud scorer,
// the risk ledger and the engine facade.
package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the settled outcome of a transaction.
type Status string

const (
	StatusApproved Status = "approved"
	StatusDeclined Status = "declined"
)

// Request is an incoming transaction awaiting a decision. Card data never
// enters the engine; CardFingerprint is an opaque hash produced upstream.
// Immutable once created.
type Request struct {
	MerchantID      string
	CardFingerprint string
	Amount          decimal.Decimal
	Currency        string
	ClientIP        string
	UserAgent       string
}

// Transaction is the settled record of one processed payment.
type Transaction struct {
	TransactionID   string
	MerchantID      string
	CardFingerprint string
	Amount          decimal.Decimal
	Currency        string
	Status          Status
	FraudScore      int
	ClientIP        string
	UserAgent       string
	CreatedAt       time.Time
}

// Approved reports whether the transaction settled as approved.
func (t *Transaction) Approved() bool {
	return t.Status == StatusApproved
}
