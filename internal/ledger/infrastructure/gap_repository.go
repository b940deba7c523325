package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
)

// PostgresGapStore keeps settlement gaps next to the ledger. It backs the sweeper
// when Redis is not configured.
type PostgresGapStore struct {
	db *sql.DB
}

func NewPostgresGapStore(db *sql.DB) *PostgresGapStore {
	return &PostgresGapStore{db: db}
}

// Record inserts the gap or, for a known reference, updates its reason and
// attempt count.
func (s *PostgresGapStore) Record(ctx context.Context, gap domain.SettlementGap) error {
	donor, err := json.Marshal(gap.Donor)
	if err != nil {
		return fmt.Errorf("encode settlement gap donor: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settlement_gaps (settlement_ref, subcategory_id, category_id, donor, amount, reason, captured_at, attempts)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (settlement_ref) DO UPDATE SET reason = EXCLUDED.reason, attempts = EXCLUDED.attempts`,
		gap.SettlementRef, gap.SubcategoryID, gap.CategoryID, donor, gap.Amount, gap.Reason, gap.CapturedAt, gap.Attempts,
	)
	if err != nil {
		return fmt.Errorf("record settlement gap %s: %w", gap.SettlementRef, err)
	}
	return nil
}

func (s *PostgresGapStore) List(ctx context.Context) ([]domain.SettlementGap, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT settlement_ref, subcategory_id, category_id, donor, amount, reason, captured_at, attempts
        FROM settlement_gaps ORDER BY settlement_ref`)
	if err != nil {
		return nil, fmt.Errorf("list settlement gaps: %w", err)
	}
	defer rows.Close()

	gaps := []domain.SettlementGap{}
	for rows.Next() {
		var (
			gap   domain.SettlementGap
			donor []byte
		)
		if err := rows.Scan(&gap.SettlementRef, &gap.SubcategoryID, &gap.CategoryID, &donor,
			&gap.Amount, &gap.Reason, &gap.CapturedAt, &gap.Attempts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(donor, &gap.Donor); err != nil {
			return nil, fmt.Errorf("decode settlement gap %s donor: %w", gap.SettlementRef, err)
		}
		gaps = append(gaps, gap)
	}
	return gaps, rows.Err()
}

func (s *PostgresGapStore) Resolve(ctx context.Context, settlementRef string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM settlement_gaps WHERE settlement_ref = $1`, settlementRef)
	return err
}
