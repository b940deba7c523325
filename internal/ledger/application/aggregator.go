package application

import (
	"sort"
	"time"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	"github.com/shopspring/decimal"
)

type Totals struct {
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}

type LedgerAggregator struct {
	resolver *CapabilityResolver
}

func NewLedgerAggregator(resolver *CapabilityResolver) *LedgerAggregator {
	return &LedgerAggregator{resolver: resolver}
}

// Aggregate totals what the actor is allowed to see for the subcategory.
func (a *LedgerAggregator) Aggregate(donations []domain.Donation, expenses []domain.Expense, actor domain.Actor, subcategoryID string, assigned ...[]string) Totals {
	viewAll := a.resolver.CanViewAllStatusesFor(actor, subcategoryID, assigned...)
	return a.AggregateFiltered(VisibleDonations(donations, viewAll), VisibleExpenses(expenses, viewAll))
}

// AggregateFiltered totals the given entries as-is. Amounts are positive magnitudes;
// only Net can be negative.
func (a *LedgerAggregator) AggregateFiltered(donations []domain.Donation, expenses []domain.Expense) Totals {
	income := decimal.Zero
	for _, d := range donations {
		income = income.Add(d.Amount)
	}
	expense := decimal.Zero
	for _, e := range expenses {
		expense = expense.Add(e.Amount)
	}
	return Totals{Income: income, Expense: expense, Net: income.Sub(expense)}
}

func VisibleDonations(donations []domain.Donation, viewAll bool) []domain.Donation {
	if viewAll {
		return donations
	}
	visible := make([]domain.Donation, 0, len(donations))
	for _, d := range donations {
		if d.IsPublic() {
			visible = append(visible, d)
		}
	}
	return visible
}

func VisibleExpenses(expenses []domain.Expense, viewAll bool) []domain.Expense {
	if viewAll {
		return expenses
	}
	visible := make([]domain.Expense, 0, len(expenses))
	for _, e := range expenses {
		if e.IsPublic() {
			visible = append(visible, e)
		}
	}
	return visible
}

// FilterDonations applies a client-side filter: date range and status.
func FilterDonations(donations []domain.Donation, filter domain.ListFilter) []domain.Donation {
	out := make([]domain.Donation, 0, len(donations))
	for _, d := range donations {
		if !inRange(d.CreatedAt, filter) {
			continue
		}
		if filter.Status != "" && string(d.PaymentStatus) != filter.Status {
			continue
		}
		out = append(out, d)
	}
	return out
}

func FilterExpenses(expenses []domain.Expense, filter domain.ListFilter) []domain.Expense {
	out := make([]domain.Expense, 0, len(expenses))
	for _, e := range expenses {
		if !inRange(e.CreatedAt, filter) {
			continue
		}
		if filter.Status != "" && string(e.Status) != filter.Status {
			continue
		}
		out = append(out, e)
	}
	return out
}

func inRange(t time.Time, filter domain.ListFilter) bool {
	if filter.From != nil && t.Before(*filter.From) {
		return false
	}
	if filter.To != nil && t.After(*filter.To) {
		return false
	}
	return true
}

// SortEntries returns a sorted copy. Equal keys keep their fetch order.
func SortEntries[T domain.Entry](entries []T, key domain.SortKey, order domain.SortOrder) []T {
	sorted := make([]T, len(entries))
	copy(sorted, entries)

	compare := func(a, b T) int {
		if key == domain.SortByAmount {
			return a.EntryAmount().Cmp(b.EntryAmount())
		}
		am, bm := a.EntryTime().UnixMilli(), b.EntryTime().UnixMilli()
		switch {
		case am < bm:
			return -1
		case am > bm:
			return 1
		}
		return 0
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		c := compare(sorted[i], sorted[j])
		if order == domain.SortAsc {
			return c < 0
		}
		return c > 0
	})
	return sorted
}
