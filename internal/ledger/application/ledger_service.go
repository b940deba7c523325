package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
)

// LedgerService edits donation and expense entries of a subcategory. Every call
// checks the actor's capability for the subcategory before touching the store.
type LedgerService struct {
	donations domain.DonationRepository
	expenses  domain.ExpenseRepository
	resolver  *CapabilityResolver
}

func NewLedgerService(donations domain.DonationRepository, expenses domain.ExpenseRepository, resolver *CapabilityResolver) *LedgerService {
	return &LedgerService{donations: donations, expenses: expenses, resolver: resolver}
}

func (s *LedgerService) authorize(actor domain.Actor, subcategoryID, operation string, assigned [][]string) error {
	if !s.resolver.CanManage(actor, subcategoryID, assigned...) {
		return ledgerErrors.NewCapabilityError(actor.ID, operation)
	}
	return nil
}

func (s *LedgerService) CreateExpense(ctx context.Context, actor domain.Actor, expense *domain.Expense, assigned ...[]string) error {
	if err := s.authorize(actor, expense.SubcategoryID, "record expenses for this subcategory", assigned); err != nil {
		return err
	}
	expense.ID = uuid.NewString()
	expense.Title = strings.TrimSpace(expense.Title)
	if expense.Status == "" {
		expense.Status = domain.ExpensePending
	}
	if strings.TrimSpace(expense.TransactionRef) == "" {
		expense.TransactionRef = "expense-" + expense.ID
	}
	expense.CreatedAt = time.Now().UTC()
	expense.RoundToTwoDecimalPlaces()
	if err := expense.Validate(); err != nil {
		return err
	}
	if err := s.expenses.Create(ctx, expense); err != nil {
		return fmt.Errorf("could not create expense: %w", err)
	}
	return nil
}

func (s *LedgerService) UpdateExpense(ctx context.Context, actor domain.Actor, subcategoryID, expenseID string, update domain.ExpenseUpdate, assigned ...[]string) (*domain.Expense, error) {
	if err := s.authorize(actor, subcategoryID, "edit expenses for this subcategory", assigned); err != nil {
		return nil, err
	}
	expense, err := s.findExpense(ctx, subcategoryID, expenseID)
	if err != nil {
		return nil, err
	}
	if update.Title != nil {
		expense.Title = strings.TrimSpace(*update.Title)
	}
	if update.Amount != nil {
		expense.Amount = *update.Amount
	}
	if update.PaymentMethod != nil {
		expense.PaymentMethod = *update.PaymentMethod
	}
	if update.Status != nil {
		expense.Status = *update.Status
	}
	expense.RoundToTwoDecimalPlaces()
	if err := expense.Validate(); err != nil {
		return nil, err
	}
	if err := s.expenses.Update(ctx, *expense); err != nil {
		return nil, fmt.Errorf("could not update expense: %w", err)
	}
	return expense, nil
}

// DeleteExpense removes an expense once the caller has typed the confirmation token.
func (s *LedgerService) DeleteExpense(ctx context.Context, actor domain.Actor, subcategoryID, expenseID, token string, assigned ...[]string) error {
	if !domain.CheckDeletionToken(token) {
		return ledgerErrors.ErrConfirmationMismatch
	}
	if err := s.authorize(actor, subcategoryID, "delete expenses for this subcategory", assigned); err != nil {
		return err
	}
	if _, err := s.findExpense(ctx, subcategoryID, expenseID); err != nil {
		return err
	}
	if err := s.expenses.Delete(ctx, expenseID); err != nil {
		return fmt.Errorf("could not delete expense: %w", err)
	}
	return nil
}

func (s *LedgerService) UpdateDonation(ctx context.Context, actor domain.Actor, subcategoryID, donationID string, update domain.DonationUpdate, assigned ...[]string) (*domain.Donation, error) {
	if err := s.authorize(actor, subcategoryID, "edit donations for this subcategory", assigned); err != nil {
		return nil, err
	}
	donation, err := s.findDonation(ctx, subcategoryID, donationID)
	if err != nil {
		return nil, err
	}
	if update.Amount != nil {
		donation.Amount = *update.Amount
	}
	if update.PaymentStatus != nil {
		donation.PaymentStatus = *update.PaymentStatus
	}
	if update.Donor != nil {
		if donation.Donor.IsRegistered() {
			return nil, ledgerErrors.NewValidationError("Donor details of a registered user cannot be edited")
		}
		donation.Donor = *update.Donor
		donation.Donor.Name = strings.TrimSpace(donation.Donor.Name)
	}
	donation.RoundToTwoDecimalPlaces()
	if err := donation.Validate(); err != nil {
		return nil, err
	}
	if err := s.donations.Update(ctx, *donation); err != nil {
		return nil, fmt.Errorf("could not update donation: %w", err)
	}
	return donation, nil
}

func (s *LedgerService) DeleteDonation(ctx context.Context, actor domain.Actor, subcategoryID, donationID, token string, assigned ...[]string) error {
	if !domain.CheckDeletionToken(token) {
		return ledgerErrors.ErrConfirmationMismatch
	}
	if err := s.authorize(actor, subcategoryID, "delete donations for this subcategory", assigned); err != nil {
		return err
	}
	if _, err := s.findDonation(ctx, subcategoryID, donationID); err != nil {
		return err
	}
	if err := s.donations.Delete(ctx, donationID); err != nil {
		return fmt.Errorf("could not delete donation: %w", err)
	}
	return nil
}

// findExpense treats an entry of another subcategory as missing so a capability
// for one subcategory cannot reach into another.
func (s *LedgerService) findExpense(ctx context.Context, subcategoryID, expenseID string) (*domain.Expense, error) {
	expense, err := s.expenses.FindByID(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if expense == nil || expense.SubcategoryID != subcategoryID {
		return nil, ledgerErrors.ErrNotFound
	}
	return expense, nil
}

func (s *LedgerService) findDonation(ctx context.Context, subcategoryID, donationID string) (*domain.Donation, error) {
	donation, err := s.donations.FindByID(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if donation == nil || donation.SubcategoryID != subcategoryID {
		return nil, ledgerErrors.ErrNotFound
	}
	return donation, nil
}

type SubcategoryService struct {
	repo domain.SubcategoryRepository
}

func NewSubcategoryService(repo domain.SubcategoryRepository) *SubcategoryService {
	return &SubcategoryService{repo: repo}
}

func (s *SubcategoryService) Get(ctx context.Context, id string) (*domain.Subcategory, error) {
	subcategory, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if subcategory == nil {
		return nil, ledgerErrors.ErrNotFound
	}
	return subcategory, nil
}

// Edit applies an admin edit. Type and amount rules live in Subcategory.ApplyEdit.
func (s *SubcategoryService) Edit(ctx context.Context, actor domain.Actor, id string, edit domain.SubcategoryEdit) (*domain.Subcategory, error) {
	if !actor.IsAdmin() {
		return nil, ledgerErrors.NewCapabilityError(actor.ID, "edit subcategories")
	}
	subcategory, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := subcategory.ApplyEdit(edit); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, *subcategory); err != nil {
		return nil, fmt.Errorf("could not update subcategory: %w", err)
	}
	return subcategory, nil
}
