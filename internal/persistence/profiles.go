package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"RiskEngine/internal/risk"
)

// ProfileStore reads merchant risk profiles. Profiles are owned by admin
// tooling; the engine never writes them.
type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

// FindByMerchantID returns the active profile for a merchant, or
// risk.ErrProfileNotFound.
func (s *ProfileStore) FindByMerchantID(ctx context.Context, merchantID string) (*risk.MerchantRiskProfile, error) {
	const q = `SELECT merchant_id, daily_limit, monthly_limit, transaction_count_limit,
			max_single_transaction, risk_tolerance, is_active
		FROM merchant_risk_profiles WHERE merchant_id = $1 AND is_active = TRUE`

	var p risk.MerchantRiskProfile
	var tolerance string
	err := s.db.QueryRowContext(ctx, q, merchantID).Scan(
		&p.MerchantID, &p.DailyLimit, &p.MonthlyLimit, &p.TransactionCountLimit,
		&p.MaxSingleTransaction, &tolerance, &p.Active,
	)
	if err == sql.ErrNoRows {
		return nil, risk.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find profile %s: %w", merchantID, err)
	}
	p.RiskTolerance = risk.RiskTolerance(tolerance)
	return &p, nil
}
