package infrastructure

import (
	"context"
	"database/sql"
	"errors"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
	"github.com/shopspring/decimal"
)

type SubcategoryRepository struct {
	db *sql.DB
}

func NewSubcategoryRepository(db *sql.DB) *SubcategoryRepository {
	return &SubcategoryRepository{db: db}
}

func (r *SubcategoryRepository) FindByID(ctx context.Context, id string) (*domain.Subcategory, error) {
	var (
		subcategory domain.Subcategory
		fixedAmount decimal.NullDecimal
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT s.id, s.title, s.description, s.type, s.fixed_amount, s.status, s.category_id, c.status
        FROM subcategories s JOIN categories c ON c.id = s.category_id
        WHERE s.id = $1`, id,
	).Scan(&subcategory.ID, &subcategory.Title, &subcategory.Description, &subcategory.Type, &fixedAmount,
		&subcategory.Status, &subcategory.CategoryID, &subcategory.CategoryStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledgerErrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if fixedAmount.Valid {
		subcategory.FixedAmount = &fixedAmount.Decimal
	}
	return &subcategory, nil
}

func (r *SubcategoryRepository) Update(ctx context.Context, subcategory domain.Subcategory) error {
	var fixedAmount decimal.NullDecimal
	if subcategory.FixedAmount != nil {
		fixedAmount = decimal.NewNullDecimal(*subcategory.FixedAmount)
	}
	result, err := r.db.ExecContext(ctx,
		`UPDATE subcategories SET title = $1, description = $2, type = $3, fixed_amount = $4, status = $5 WHERE id = $6`,
		subcategory.Title, subcategory.Description, subcategory.Type, fixedAmount, subcategory.Status, subcategory.ID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}
