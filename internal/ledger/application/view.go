package application

import (
	"context"
	"log"
	"sync"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
)

type Capabilities struct {
	CanManage          bool `json:"can_manage"`
	CanViewAllStatuses bool `json:"can_view_all_statuses"`
	CanDownloadReport  bool `json:"can_download_report"`
}

// SubcategoryView is what the subcategory screen needs in one response. Errors is
// keyed by part ("donations", "expenses", "managers"); a failed part does not
// hide the others.
type SubcategoryView struct {
	Subcategory  domain.Subcategory         `json:"subcategory"`
	Donations    Cursor[domain.Donation]    `json:"donations"`
	Expenses     Cursor[domain.Expense]     `json:"expenses"`
	Managers     []domain.ManagerAssignment `json:"managers"`
	Totals       Totals                     `json:"totals"`
	Capabilities Capabilities               `json:"capabilities"`
	Errors       map[string]string          `json:"errors,omitempty"`
}

type ViewLoader struct {
	subcategories domain.SubcategoryRepository
	registry      *ManagerRegistry
	resolver      *CapabilityResolver
	aggregator    *LedgerAggregator
}

func NewViewLoader(subcategories domain.SubcategoryRepository, registry *ManagerRegistry, resolver *CapabilityResolver, aggregator *LedgerAggregator) *ViewLoader {
	return &ViewLoader{subcategories: subcategories, registry: registry, resolver: resolver, aggregator: aggregator}
}

// Load fetches the first page of donations and expenses and the assignments
// concurrently and waits for all three. If the fetched assignments change what
// the actor may see, both lists are reloaded under the new visibility.
func (l *ViewLoader) Load(ctx context.Context, session *Session, subcategoryID string) (*SubcategoryView, error) {
	subcategory, err := l.Subcategory(ctx, subcategoryID)
	if err != nil {
		return nil, err
	}
	viewAllBefore := session.ViewAll(subcategoryID)

	donations := session.SubcategoryDonations(subcategoryID)
	expenses := session.SubcategoryExpenses(subcategoryID)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		partErrs = make(map[string]string)
		managers []domain.ManagerAssignment
	)
	fail := func(part string, err error) {
		mu.Lock()
		partErrs[part] = err.Error()
		mu.Unlock()
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := donations.Refresh(ctx); err != nil {
			fail("donations", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := expenses.Refresh(ctx); err != nil {
			fail("expenses", err)
		}
	}()
	go func() {
		defer wg.Done()
		assigned, err := l.registry.ListAssigned(ctx, subcategoryID)
		if err != nil {
			fail("managers", err)
			return
		}
		managers = assigned
		session.RememberAssignments(subcategoryID, domain.ManagerIDs(assigned))
	}()
	wg.Wait()

	if viewAll := session.ViewAll(subcategoryID); viewAll != viewAllBefore {
		log.Printf("level=info component=view_loader subcategory=%s actor=%s view_all=%t msg=\"visibility changed, reloading lists\"", subcategoryID, session.Actor.ID, viewAll)
		delete(partErrs, "donations")
		delete(partErrs, "expenses")
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := donations.Refresh(ctx); err != nil {
				fail("donations", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := expenses.Refresh(ctx); err != nil {
				fail("expenses", err)
			}
		}()
		wg.Wait()
	}

	if managers == nil {
		managers = l.registry.Cached(subcategoryID)
	}
	view := &SubcategoryView{
		Subcategory: *subcategory,
		Donations:   donations.Snapshot(),
		Expenses:    expenses.Snapshot(),
		Managers:    managers,
	}
	view.Totals, view.Capabilities = l.summarize(session, subcategoryID, view.Donations.Items, view.Expenses.Items)
	if len(partErrs) > 0 {
		view.Errors = partErrs
	}
	return view, nil
}

// Summary recomputes totals and capabilities over what the session has loaded so
// far, without I/O.
func (l *ViewLoader) Summary(session *Session, subcategoryID string) (Totals, Capabilities) {
	donations := session.SubcategoryDonations(subcategoryID).Snapshot().Items
	expenses := session.SubcategoryExpenses(subcategoryID).Snapshot().Items
	return l.summarize(session, subcategoryID, donations, expenses)
}

func (l *ViewLoader) summarize(session *Session, subcategoryID string, donations []domain.Donation, expenses []domain.Expense) (Totals, Capabilities) {
	sources := session.AssignmentSources(subcategoryID)
	viewAll := l.resolver.CanViewAllStatusesFor(session.Actor, subcategoryID, sources...)
	visibleDonations := VisibleDonations(donations, viewAll)
	visibleExpenses := VisibleExpenses(expenses, viewAll)
	caps := Capabilities{
		CanManage:          l.resolver.CanManage(session.Actor, subcategoryID, sources...),
		CanViewAllStatuses: viewAll,
		CanDownloadReport:  l.resolver.CanDownloadReport(session.Actor, subcategoryID, len(visibleDonations)+len(visibleExpenses), sources...),
	}
	return l.aggregator.AggregateFiltered(visibleDonations, visibleExpenses), caps
}

// Subcategory looks a subcategory up for flows that only need its state.
func (l *ViewLoader) Subcategory(ctx context.Context, subcategoryID string) (*domain.Subcategory, error) {
	subcategory, err := l.subcategories.FindByID(ctx, subcategoryID)
	if err != nil {
		return nil, err
	}
	if subcategory == nil {
		return nil, ledgerErrors.ErrNotFound
	}
	return subcategory, nil
}
