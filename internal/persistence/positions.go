package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"RiskEngine/internal/risk"
)

// PositionStore persists daily positions. Deltas are applied with a single
// additive upsert so concurrent settlements for the same (merchant, day)
// serialize inside Postgres and never lose increments.
type PositionStore struct {
	db *sql.DB
}

func NewPositionStore(db *sql.DB) *PositionStore {
	return &PositionStore{db: db}
}

const positionColumns = `merchant_id, position_date, total_volume, transaction_count,
	approved_volume, approved_count, declined_volume, declined_count,
	max_single_transaction, avg_fraud_score, risk_exposure_percent`

// Current returns the position for (merchantID, date), or (nil, nil) when no
// transaction has settled that day yet.
func (s *PositionStore) Current(ctx context.Context, merchantID string, date time.Time) (*risk.DailyPosition, error) {
	q := `SELECT ` + positionColumns + ` FROM daily_positions
		WHERE merchant_id = $1 AND position_date = $2`

	p, err := scanPosition(s.db.QueryRowContext(ctx, q, merchantID, dateOnly(date)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current position %s: %w", merchantID, err)
	}
	return p, nil
}

// Apply adds one transaction's contribution, creating the row lazily, and
// returns the updated position.
func (s *PositionStore) Apply(ctx context.Context, merchantID string, date time.Time, delta risk.PositionDelta) (*risk.DailyPosition, error) {
	approvedVol := decimal.Zero
	declinedVol := decimal.Zero
	approvedCnt := 0
	declinedCnt := 0
	if delta.Approved {
		approvedVol = delta.Amount
		approvedCnt = 1
	} else {
		declinedVol = delta.Amount
		declinedCnt = 1
	}

	q := `INSERT INTO daily_positions
			(merchant_id, position_date, total_volume, transaction_count,
			 approved_volume, approved_count, declined_volume, declined_count,
			 max_single_transaction)
		VALUES ($1, $2, $3, 1, $4, $5, $6, $7, $3)
		ON CONFLICT (merchant_id, position_date) DO UPDATE SET
			total_volume = daily_positions.total_volume + EXCLUDED.total_volume,
			transaction_count = daily_positions.transaction_count + 1,
			approved_volume = daily_positions.approved_volume + EXCLUDED.approved_volume,
			approved_count = daily_positions.approved_count + EXCLUDED.approved_count,
			declined_volume = daily_positions.declined_volume + EXCLUDED.declined_volume,
			declined_count = daily_positions.declined_count + EXCLUDED.declined_count,
			max_single_transaction = GREATEST(daily_positions.max_single_transaction, EXCLUDED.max_single_transaction)
		RETURNING ` + positionColumns

	p, err := scanPosition(s.db.QueryRowContext(ctx, q,
		merchantID, dateOnly(date), delta.Amount,
		approvedVol, approvedCnt, declinedVol, declinedCnt,
	))
	if err != nil {
		return nil, fmt.Errorf("apply position delta %s: %w", merchantID, err)
	}
	return p, nil
}

// SetDerived stores the recomputed average fraud score and exposure.
func (s *PositionStore) SetDerived(ctx context.Context, merchantID string, date time.Time, avgFraudScore, exposurePercent decimal.Decimal) error {
	const q = `UPDATE daily_positions
		SET avg_fraud_score = $3, risk_exposure_percent = $4
		WHERE merchant_id = $1 AND position_date = $2`

	if _, err := s.db.ExecContext(ctx, q, merchantID, dateOnly(date), avgFraudScore, exposurePercent); err != nil {
		return fmt.Errorf("set derived %s: %w", merchantID, err)
	}
	return nil
}

// ListByDate returns every merchant position for one day.
func (s *PositionStore) ListByDate(ctx context.Context, date time.Time) ([]*risk.DailyPosition, error) {
	q := `SELECT ` + positionColumns + ` FROM daily_positions WHERE position_date = $1`

	rows, err := s.db.QueryContext(ctx, q, dateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var out []*risk.DailyPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*risk.DailyPosition, error) {
	var p risk.DailyPosition
	if err := row.Scan(
		&p.MerchantID, &p.Date, &p.TotalVolume, &p.TransactionCount,
		&p.ApprovedVolume, &p.ApprovedCount, &p.DeclinedVolume, &p.DeclinedCount,
		&p.MaxSingleTransaction, &p.AvgFraudScore, &p.RiskExposurePercent,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
