package infrastructure

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
)

const expenseColumns = `id, subcategory_id, title, amount, payment_method, status, transaction_ref, created_at`

type ExpenseRepository struct {
	db *sql.DB
}

func NewExpenseRepository(db *sql.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

func (r *ExpenseRepository) List(ctx context.Context, query domain.ExpenseQuery) (domain.Page[domain.Expense], error) {
	page, limit, offset := pageWindow(query.Page, query.Limit)

	var where whereBuilder
	where.add("subcategory_id = $%d", query.SubcategoryID)
	if query.PublicOnly {
		where.add("status = $%d", string(domain.ExpenseApproved))
	}
	where.applyFilter(query.Filter, "created_at", "status")

	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM expenses"+where.sql(), where.args...).Scan(&count); err != nil {
		return domain.Page[domain.Expense]{}, err
	}

	args := append(where.args, limit, offset)
	stmt := "SELECT " + expenseColumns + " FROM expenses" + where.sql() +
		orderBy(query.Filter, "created_at", "amount", "id") +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return domain.Page[domain.Expense]{}, err
	}
	defer rows.Close()

	expenses := []domain.Expense{}
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return domain.Page[domain.Expense]{}, err
		}
		expenses = append(expenses, *expense)
	}
	if err := rows.Err(); err != nil {
		return domain.Page[domain.Expense]{}, err
	}
	return domain.Page[domain.Expense]{Items: expenses, Page: page, TotalPages: totalPages(count, limit)}, nil
}

func (r *ExpenseRepository) FindByID(ctx context.Context, id string) (*domain.Expense, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE id = $1", id)
	expense, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledgerErrors.ErrNotFound
	}
	return expense, err
}

func (r *ExpenseRepository) Create(ctx context.Context, expense *domain.Expense) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, subcategory_id, title, amount, payment_method, status, transaction_ref, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		expense.ID, expense.SubcategoryID, expense.Title, expense.Amount, expense.PaymentMethod,
		expense.Status, expense.TransactionRef, expense.CreatedAt,
	)
	return err
}

func (r *ExpenseRepository) Update(ctx context.Context, expense domain.Expense) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET title = $1, amount = $2, payment_method = $3, status = $4 WHERE id = $5`,
		expense.Title, expense.Amount, expense.PaymentMethod, expense.Status, expense.ID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func (r *ExpenseRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectOneRow(result)
}

func scanExpense(row rowScanner) (*domain.Expense, error) {
	var expense domain.Expense
	if err := row.Scan(&expense.ID, &expense.SubcategoryID, &expense.Title, &expense.Amount,
		&expense.PaymentMethod, &expense.Status, &expense.TransactionRef, &expense.CreatedAt); err != nil {
		return nil, err
	}
	return &expense, nil
}
