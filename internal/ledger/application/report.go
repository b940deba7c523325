package application

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
)

const reportPageSize = 100

var ErrEmptyReport = ledgerErrors.NewValidationError("There are no entries to report")

// ReportService exports a subcategory's visible ledger as CSV.
type ReportService struct {
	donations  domain.DonationRepository
	expenses   domain.ExpenseRepository
	resolver   *CapabilityResolver
	aggregator *LedgerAggregator
}

func NewReportService(donations domain.DonationRepository, expenses domain.ExpenseRepository, resolver *CapabilityResolver, aggregator *LedgerAggregator) *ReportService {
	return &ReportService{donations: donations, expenses: expenses, resolver: resolver, aggregator: aggregator}
}

// Write streams every visible entry of the subcategory followed by the totals.
// Nothing is written unless the actor may download and at least one entry is visible.
func (s *ReportService) Write(ctx context.Context, w io.Writer, actor domain.Actor, subcategory domain.Subcategory, assigned ...[]string) error {
	if !s.resolver.CanManage(actor, subcategory.ID, assigned...) {
		return ledgerErrors.NewCapabilityError(actor.ID, "download this report")
	}
	viewAll := s.resolver.CanViewAllStatusesFor(actor, subcategory.ID, assigned...)

	donations, err := s.allDonations(ctx, subcategory.ID, !viewAll)
	if err != nil {
		return err
	}
	expenses, err := s.allExpenses(ctx, subcategory.ID, !viewAll)
	if err != nil {
		return err
	}
	donations = VisibleDonations(donations, viewAll)
	expenses = VisibleExpenses(expenses, viewAll)
	if !s.resolver.CanDownloadReport(actor, subcategory.ID, len(donations)+len(expenses), assigned...) {
		return ErrEmptyReport
	}
	totals := s.aggregator.AggregateFiltered(donations, expenses)

	cw := csv.NewWriter(w)
	rows := [][]string{{"kind", "id", "date", "description", "method", "status", "reference", "amount"}}
	for _, d := range donations {
		rows = append(rows, []string{"donation", d.ID, d.CreatedAt.UTC().Format(time.RFC3339), d.Donor.Name,
			string(d.PaymentMethod), string(d.PaymentStatus), d.TransactionRef, d.Amount.StringFixed(2)})
	}
	for _, e := range expenses {
		rows = append(rows, []string{"expense", e.ID, e.CreatedAt.UTC().Format(time.RFC3339), e.Title,
			string(e.PaymentMethod), string(e.Status), e.TransactionRef, e.Amount.StringFixed(2)})
	}
	rows = append(rows,
		[]string{"total_income", "", "", subcategory.Title, "", "", "", totals.Income.StringFixed(2)},
		[]string{"total_expense", "", "", subcategory.Title, "", "", "", totals.Expense.StringFixed(2)},
		[]string{"net", "", "", subcategory.Title, "", "", "", totals.Net.StringFixed(2)},
	)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("could not write report: %w", err)
	}
	return nil
}

func (s *ReportService) allDonations(ctx context.Context, subcategoryID string, publicOnly bool) ([]domain.Donation, error) {
	var all []domain.Donation
	for page := 1; ; page++ {
		result, err := s.donations.List(ctx, domain.DonationQuery{
			SubcategoryID: subcategoryID,
			Page:          page,
			Limit:         reportPageSize,
			Filter:        domain.ListFilter{SortBy: domain.SortByDate, Order: domain.SortAsc},
			PublicOnly:    publicOnly,
		})
		if err != nil {
			return nil, ledgerErrors.NewTransientError("report donations fetch", err)
		}
		all = append(all, result.Items...)
		if page >= result.TotalPages {
			return all, nil
		}
	}
}

func (s *ReportService) allExpenses(ctx context.Context, subcategoryID string, publicOnly bool) ([]domain.Expense, error) {
	var all []domain.Expense
	for page := 1; ; page++ {
		result, err := s.expenses.List(ctx, domain.ExpenseQuery{
			SubcategoryID: subcategoryID,
			Page:          page,
			Limit:         reportPageSize,
			Filter:        domain.ListFilter{SortBy: domain.SortByDate, Order: domain.SortAsc},
			PublicOnly:    publicOnly,
		})
		if err != nil {
			return nil, ledgerErrors.NewTransientError("report expenses fetch", err)
		}
		all = append(all, result.Items...)
		if page >= result.TotalPages {
			return all, nil
		}
	}
}
