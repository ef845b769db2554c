// Package persistence holds the Postgres-backed stores. All stores use
// database/sql with the lib/pq driver and take their queries through
// context so caller timeouts and cancellation propagate.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"RiskEngine/internal/payment"
)

// TransactionStore reads and writes settled transaction records.
type TransactionStore struct {
	db *sql.DB
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Save inserts one settled transaction. Replays of the same transaction ID
// are ignored so settlement redelivery stays idempotent.
func (s *TransactionStore) Save(ctx context.Context, t *payment.Transaction) error {
	const q = `INSERT INTO transactions
		(transaction_id, merchant_id, card_fingerprint, amount, currency, status, fraud_score, client_ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (transaction_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, q,
		t.TransactionID, t.MerchantID, t.CardFingerprint, t.Amount, t.Currency,
		string(t.Status), t.FraudScore, t.ClientIP, t.UserAgent, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", t.TransactionID, err)
	}
	return nil
}

// FindByID returns the transaction with the given ID, or (nil, nil) when it
// does not exist.
func (s *TransactionStore) FindByID(ctx context.Context, transactionID string) (*payment.Transaction, error) {
	const q = `SELECT transaction_id, merchant_id, card_fingerprint, amount, currency, status, fraud_score, client_ip, user_agent, created_at
		FROM transactions WHERE transaction_id = $1`

	var t payment.Transaction
	var status string
	err := s.db.QueryRowContext(ctx, q, transactionID).Scan(
		&t.TransactionID, &t.MerchantID, &t.CardFingerprint, &t.Amount, &t.Currency,
		&status, &t.FraudScore, &t.ClientIP, &t.UserAgent, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction %s: %w", transactionID, err)
	}
	t.Status = payment.Status(status)
	return &t, nil
}

// AverageFraudScoreSince returns the mean fraud score of a merchant's
// transactions created at or after since, zero when there are none.
func (s *TransactionStore) AverageFraudScoreSince(ctx context.Context, merchantID string, since time.Time) (decimal.Decimal, error) {
	const q = `SELECT COALESCE(AVG(fraud_score), 0)
		FROM transactions WHERE merchant_id = $1 AND created_at >= $2`

	var avg decimal.Decimal
	if err := s.db.QueryRowContext(ctx, q, merchantID, since).Scan(&avg); err != nil {
		return decimal.Zero, fmt.Errorf("avg fraud score for %s: %w", merchantID, err)
	}
	return avg, nil
}

// CountByMerchantSince returns how many transactions a merchant processed at
// or after since.
func (s *TransactionStore) CountByMerchantSince(ctx context.Context, merchantID string, since time.Time) (int64, error) {
	const q = `SELECT COUNT(*) FROM transactions WHERE merchant_id = $1 AND created_at >= $2`

	var n int64
	if err := s.db.QueryRowContext(ctx, q, merchantID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions for %s: %w", merchantID, err)
	}
	return n, nil
}

// CountByCardSince returns how many transactions a card fingerprint produced
// at or after since.
func (s *TransactionStore) CountByCardSince(ctx context.Context, cardFingerprint string, since time.Time) (int64, error) {
	const q = `SELECT COUNT(*) FROM transactions WHERE card_fingerprint = $1 AND created_at >= $2`

	var n int64
	if err := s.db.QueryRowContext(ctx, q, cardFingerprint, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions for card: %w", err)
	}
	return n, nil
}

// MerchantSummary is a trailing-window aggregate for one merchant.
type MerchantSummary struct {
	MerchantID        string
	TotalTransactions int64
	TotalAmount       decimal.Decimal
	ApprovedCount     int64
	DeclinedCount     int64
	ApprovalRate      decimal.Decimal
	AverageFraudScore decimal.Decimal
}

// Summarize aggregates a merchant's transactions created at or after since.
func (s *TransactionStore) Summarize(ctx context.Context, merchantID string, since time.Time) (*MerchantSummary, error) {
	const q = `SELECT
			COUNT(*),
			COALESCE(SUM(amount), 0),
			COUNT(*) FILTER (WHERE status = 'approved'),
			COALESCE(AVG(fraud_score), 0)
		FROM transactions WHERE merchant_id = $1 AND created_at >= $2`

	sum := &MerchantSummary{MerchantID: merchantID}
	if err := s.db.QueryRowContext(ctx, q, merchantID, since).Scan(
		&sum.TotalTransactions, &sum.TotalAmount, &sum.ApprovedCount, &sum.AverageFraudScore,
	); err != nil {
		return nil, fmt.Errorf("summarize %s: %w", merchantID, err)
	}

	sum.DeclinedCount = sum.TotalTransactions - sum.ApprovedCount
	if sum.TotalTransactions > 0 {
		sum.ApprovalRate = decimal.NewFromInt(sum.ApprovedCount).
			DivRound(decimal.NewFromInt(sum.TotalTransactions), 4).
			Mul(decimal.NewFromInt(100))
	}
	return sum, nil
}
