package infrastructure

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
)

// MockDonationRepository is an in-memory DonationRepository for tests.
type MockDonationRepository struct {
	mu        sync.Mutex
	Donations []domain.Donation
	CreateErr error
	ListErr   error
	Queries   []domain.DonationQuery
}

func (m *MockDonationRepository) List(ctx context.Context, query domain.DonationQuery) (domain.Page[domain.Donation], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, query)
	if m.ListErr != nil {
		return domain.Page[domain.Donation]{}, m.ListErr
	}
	var matched []domain.Donation
	for _, d := range m.Donations {
		if query.SubcategoryID != "" && d.SubcategoryID != query.SubcategoryID {
			continue
		}
		if query.DonorID != "" && (d.Donor.UserID == nil || *d.Donor.UserID != query.DonorID) {
			continue
		}
		if query.CategoryID != "" && d.CategoryID != query.CategoryID {
			continue
		}
		if query.PublicOnly && !d.IsPublic() {
			continue
		}
		if query.Filter.Status != "" && string(d.PaymentStatus) != query.Filter.Status {
			continue
		}
		if query.Filter.From != nil && d.CreatedAt.Before(*query.Filter.From) {
			continue
		}
		if query.Filter.To != nil && d.CreatedAt.After(*query.Filter.To) {
			continue
		}
		matched = append(matched, d)
	}
	sortEntries(matched, query.Filter)
	return paginate(matched, query.Page, query.Limit), nil
}

func (m *MockDonationRepository) FindByID(ctx context.Context, id string) (*domain.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.Donations {
		if d.ID == id {
			found := d
			return &found, nil
		}
	}
	return nil, ledgerErrors.ErrNotFound
}

func (m *MockDonationRepository) Create(ctx context.Context, donation *domain.Donation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return false, m.CreateErr
	}
	for _, d := range m.Donations {
		if d.TransactionRef == donation.TransactionRef {
			*donation = d
			return false, nil
		}
	}
	m.Donations = append(m.Donations, *donation)
	return true, nil
}

func (m *MockDonationRepository) Update(ctx context.Context, donation domain.Donation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.Donations {
		if d.ID == donation.ID {
			m.Donations[i] = donation
			return nil
		}
	}
	return ledgerErrors.ErrNotFound
}

func (m *MockDonationRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, d := range m.Donations {
		if d.ID == id {
			m.Donations = append(m.Donations[:i], m.Donations[i+1:]...)
			return nil
		}
	}
	return ledgerErrors.ErrNotFound
}

func (m *MockDonationRepository) Stored() []domain.Donation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Donation, len(m.Donations))
	copy(out, m.Donations)
	return out
}

type MockExpenseRepository struct {
	mu       sync.Mutex
	Expenses []domain.Expense
	ListErr  error
	Queries  []domain.ExpenseQuery
}

func (m *MockExpenseRepository) List(ctx context.Context, query domain.ExpenseQuery) (domain.Page[domain.Expense], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, query)
	if m.ListErr != nil {
		return domain.Page[domain.Expense]{}, m.ListErr
	}
	var matched []domain.Expense
	for _, e := range m.Expenses {
		if query.SubcategoryID != "" && e.SubcategoryID != query.SubcategoryID {
			continue
		}
		if query.PublicOnly && !e.IsPublic() {
			continue
		}
		if query.Filter.Status != "" && string(e.Status) != query.Filter.Status {
			continue
		}
		if query.Filter.From != nil && e.CreatedAt.Before(*query.Filter.From) {
			continue
		}
		if query.Filter.To != nil && e.CreatedAt.After(*query.Filter.To) {
			continue
		}
		matched = append(matched, e)
	}
	sortEntries(matched, query.Filter)
	return paginate(matched, query.Page, query.Limit), nil
}

func (m *MockExpenseRepository) FindByID(ctx context.Context, id string) (*domain.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Expenses {
		if e.ID == id {
			found := e
			return &found, nil
		}
	}
	return nil, ledgerErrors.ErrNotFound
}

func (m *MockExpenseRepository) Create(ctx context.Context, expense *domain.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Expenses = append(m.Expenses, *expense)
	return nil
}

func (m *MockExpenseRepository) Update(ctx context.Context, expense domain.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.Expenses {
		if e.ID == expense.ID {
			m.Expenses[i] = expense
			return nil
		}
	}
	return ledgerErrors.ErrNotFound
}

func (m *MockExpenseRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.Expenses {
		if e.ID == id {
			m.Expenses = append(m.Expenses[:i], m.Expenses[i+1:]...)
			return nil
		}
	}
	return ledgerErrors.ErrNotFound
}

// MockAssignmentRepository fails Create or Delete for the manager ids listed in
// FailCreate / FailDelete.
type MockAssignmentRepository struct {
	mu          sync.Mutex
	Assignments []domain.ManagerAssignment
	ListErr     error
	FailCreate  map[string]error
	FailDelete  map[string]error
	Calls       []string
}

func (m *MockAssignmentRepository) ListBySubcategory(ctx context.Context, subcategoryID string) ([]domain.ManagerAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "list:"+subcategoryID)
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []domain.ManagerAssignment
	for _, a := range m.Assignments {
		if a.SubcategoryID == subcategoryID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockAssignmentRepository) Create(ctx context.Context, managerID, subcategoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "create:"+managerID)
	if err := m.FailCreate[managerID]; err != nil {
		return err
	}
	m.Assignments = append(m.Assignments, domain.ManagerAssignment{ManagerID: managerID, SubcategoryID: subcategoryID, ManagerName: managerID})
	return nil
}

func (m *MockAssignmentRepository) UpdateDetails(ctx context.Context, managerID, subcategoryID string, details domain.AssignmentDetails) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "update:"+managerID)
	for i, a := range m.Assignments {
		if a.ManagerID == managerID && a.SubcategoryID == subcategoryID {
			m.Assignments[i].Details = details
			return nil
		}
	}
	return ledgerErrors.ErrNotFound
}

func (m *MockAssignmentRepository) Delete(ctx context.Context, managerID, subcategoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, "delete:"+managerID)
	if err := m.FailDelete[managerID]; err != nil {
		return err
	}
	for i, a := range m.Assignments {
		if a.ManagerID == managerID && a.SubcategoryID == subcategoryID {
			m.Assignments = append(m.Assignments[:i], m.Assignments[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MockAssignmentRepository) CallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Calls))
	copy(out, m.Calls)
	return out
}

type MockSubcategoryRepository struct {
	mu            sync.Mutex
	Subcategories map[string]domain.Subcategory
}

func (m *MockSubcategoryRepository) FindByID(ctx context.Context, id string) (*domain.Subcategory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Subcategories[id]
	if !ok {
		return nil, ledgerErrors.ErrNotFound
	}
	return &s, nil
}

func (m *MockSubcategoryRepository) Update(ctx context.Context, subcategory domain.Subcategory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Subcategories[subcategory.ID]; !ok {
		return ledgerErrors.ErrNotFound
	}
	m.Subcategories[subcategory.ID] = subcategory
	return nil
}

type MockImageStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	PutErr  error
}

func (m *MockImageStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return "", m.PutErr
	}
	if m.Objects == nil {
		m.Objects = make(map[string][]byte)
	}
	m.Objects[key] = data
	return fmt.Sprintf("mem://%s", key), nil
}

func sortEntries[T domain.Entry](entries []T, filter domain.ListFilter) {
	filter = filter.WithDefaults()
	sort.SliceStable(entries, func(i, j int) bool {
		var c int
		if filter.SortBy == domain.SortByAmount {
			c = entries[i].EntryAmount().Cmp(entries[j].EntryAmount())
		} else {
			switch a, b := entries[i].EntryTime(), entries[j].EntryTime(); {
			case a.Before(b):
				c = -1
			case a.After(b):
				c = 1
			}
		}
		if filter.Order == domain.SortAsc {
			return c < 0
		}
		return c > 0
	})
}

func paginate[T any](items []T, page, limit int) domain.Page[T] {
	if limit <= 0 {
		limit = 10
	}
	if page < 1 {
		page = 1
	}
	totalPages := (len(items) + limit - 1) / limit
	start := (page - 1) * limit
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return domain.Page[T]{Items: out, Page: page, TotalPages: totalPages}
}
