package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"RiskEngine/internal/risk"
)

// AlertStore persists risk alerts. Resolution is owned by an external
// workflow; the engine only inserts and counts.
type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

// Insert writes one alert.
func (s *AlertStore) Insert(ctx context.Context, a *risk.Alert) error {
	const q = `INSERT INTO risk_alerts
		(id, merchant_id, alert_type, alert_level, threshold_value, current_value, message, transaction_id, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10)`

	_, err := s.db.ExecContext(ctx, q,
		a.ID, a.MerchantID, string(a.Type), string(a.Level),
		a.ThresholdValue, a.CurrentValue, a.Message, a.TransactionID,
		a.Resolved, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.ID, err)
	}
	return nil
}

// CountUnresolvedSince counts open alerts created at or after since.
func (s *AlertStore) CountUnresolvedSince(ctx context.Context, since time.Time) (int64, error) {
	const q = `SELECT COUNT(*) FROM risk_alerts WHERE resolved = FALSE AND created_at >= $1`

	var n int64
	if err := s.db.QueryRowContext(ctx, q, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unresolved alerts: %w", err)
	}
	return n, nil
}

// Resolve marks one alert resolved. Used by the admin resolution workflow.
func (s *AlertStore) Resolve(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE risk_alerts SET resolved = TRUE WHERE id = $1`

	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return fmt.Errorf("resolve alert %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("resolve alert %s: not found", id)
	}
	return nil
}
