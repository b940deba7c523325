package domain

import (
	"context"
	"strings"
	"time"

	"github.com/sebuszqo/FundLedger/internal/ledger/errors"
	"github.com/shopspring/decimal"
)

type ExpenseMethod string

const (
	ExpenseCash   ExpenseMethod = "cash"
	ExpenseOnline ExpenseMethod = "online"
	ExpenseCheque ExpenseMethod = "cheque"
)

type ExpenseStatus string

const (
	ExpensePending  ExpenseStatus = "pending"
	ExpenseApproved ExpenseStatus = "approved"
	ExpenseRejected ExpenseStatus = "rejected"
)

type Expense struct {
	ID             string          `json:"id"`
	SubcategoryID  string          `json:"subcategory_id"`
	Title          string          `json:"title"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  ExpenseMethod   `json:"payment_method"`
	Status         ExpenseStatus   `json:"status"`
	TransactionRef string          `json:"transaction_ref"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (e Expense) EntryID() string              { return e.ID }
func (e Expense) EntryAmount() decimal.Decimal { return e.Amount }
func (e Expense) EntryTime() time.Time         { return e.CreatedAt }

func (e Expense) IsPublic() bool {
	return e.Status == ExpenseApproved
}

func IsValidExpenseStatus(status ExpenseStatus) bool {
	return status == ExpensePending || status == ExpenseApproved || status == ExpenseRejected
}

func (e *Expense) Validate() error {
	var errs errors.ValidationErrors
	if strings.TrimSpace(e.Title) == "" {
		errs.Add(errors.ErrTitleRequired)
	}
	if err := ValidateAmount(e.Amount); err != nil {
		errs.Add(err)
	}
	switch e.PaymentMethod {
	case ExpenseCash, ExpenseOnline, ExpenseCheque:
	default:
		errs.Add(errors.ErrInvalidPaymentMethod)
	}
	if !IsValidExpenseStatus(e.Status) {
		errs.Add(errors.ErrInvalidStatus)
	}
	return errs.Err()
}

func (e *Expense) RoundToTwoDecimalPlaces() {
	e.Amount = e.Amount.Round(2)
}

type ExpenseUpdate struct {
	Title         *string          `json:"title,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	PaymentMethod *ExpenseMethod   `json:"payment_method,omitempty"`
	Status        *ExpenseStatus   `json:"status,omitempty"`
}

type ExpenseQuery struct {
	SubcategoryID string
	Page          int
	Limit         int
	Filter        ListFilter
	PublicOnly    bool
}

type ExpenseRepository interface {
	List(ctx context.Context, query ExpenseQuery) (Page[Expense], error)
	FindByID(ctx context.Context, id string) (*Expense, error)
	Create(ctx context.Context, expense *Expense) error
	Update(ctx context.Context, expense Expense) error
	Delete(ctx context.Context, id string) error
}
