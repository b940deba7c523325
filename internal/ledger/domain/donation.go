package domain

import (
	"context"
	"strings"
	"time"

	"github.com/sebuszqo/FundLedger/internal/ledger/errors"
	"github.com/shopspring/decimal"
)

type DonationMethod string

const (
	DonationOnline  DonationMethod = "online"
	DonationOffline DonationMethod = "offline"
)

type DonationStatus string

const (
	DonationPending DonationStatus = "pending"
	DonationSuccess DonationStatus = "success"
	DonationFailed  DonationStatus = "failed"
)

// DonorInfo is either a registered user reference or a free-text triple captured
// offline. Stores normalize their payload shapes into this once, on read.
type DonorInfo struct {
	UserID  *string `json:"user_id,omitempty"`
	Name    string  `json:"name"`
	Phone   string  `json:"phone,omitempty"`
	Address string  `json:"address,omitempty"`
}

func (d DonorInfo) IsRegistered() bool {
	return d.UserID != nil && *d.UserID != ""
}

type Donation struct {
	ID             string          `json:"id"`
	SubcategoryID  string          `json:"subcategory_id"`
	CategoryID     string          `json:"category_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  DonationMethod  `json:"payment_method"`
	PaymentStatus  DonationStatus  `json:"payment_status"`
	Donor          DonorInfo       `json:"donor"`
	CreatedBy      *string         `json:"created_by,omitempty"`
	TransactionRef string          `json:"transaction_ref"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (d Donation) EntryID() string              { return d.ID }
func (d Donation) EntryAmount() decimal.Decimal { return d.Amount }
func (d Donation) EntryTime() time.Time         { return d.CreatedAt }

// IsPublic reports whether the donation is visible to actors without all-status access.
func (d Donation) IsPublic() bool {
	return d.PaymentStatus == DonationSuccess
}

func IsValidDonationStatus(status DonationStatus) bool {
	return status == DonationPending || status == DonationSuccess || status == DonationFailed
}

// Validate reports every violated constraint, not just the first.
func (d *Donation) Validate() error {
	var errs errors.ValidationErrors
	if err := ValidateAmount(d.Amount); err != nil {
		errs.Add(err)
	}
	if d.PaymentMethod != DonationOnline && d.PaymentMethod != DonationOffline {
		errs.Add(errors.ErrInvalidPaymentMethod)
	}
	if !IsValidDonationStatus(d.PaymentStatus) {
		errs.Add(errors.ErrInvalidStatus)
	}
	if d.PaymentMethod == DonationOffline && strings.TrimSpace(d.Donor.Name) == "" && !d.Donor.IsRegistered() {
		errs.Add(errors.ErrDonorNameRequired)
	}
	if strings.TrimSpace(d.SubcategoryID) == "" {
		errs.Add(errors.ErrSubcategoryRequired)
	}
	return errs.Err()
}

// ValidateAmount accepts positive amounts expressible in minor units.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.ErrNonPositiveAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return errors.ErrAmountPrecision
	}
	return nil
}

// RoundToTwoDecimalPlaces keeps stored amounts in the currency's minor unit.
func (d *Donation) RoundToTwoDecimalPlaces() {
	d.Amount = d.Amount.Round(2)
}

type DonationUpdate struct {
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	PaymentStatus *DonationStatus  `json:"payment_status,omitempty"`
	Donor         *DonorInfo       `json:"donor,omitempty"`
}

// DonationQuery scopes a donation list. Exactly one of SubcategoryID or DonorID is the subject;
// CategoryID narrows a donor list to one category.
type DonationQuery struct {
	SubcategoryID string
	DonorID       string
	CategoryID    string
	Page          int
	Limit         int
	Filter        ListFilter
	PublicOnly    bool
}

type DonationRepository interface {
	List(ctx context.Context, query DonationQuery) (Page[Donation], error)
	FindByID(ctx context.Context, id string) (*Donation, error)
	// Create is idempotent on TransactionRef: a second create with the same reference
	// returns the stored row with created=false.
	Create(ctx context.Context, donation *Donation) (created bool, err error)
	Update(ctx context.Context, donation Donation) error
	Delete(ctx context.Context, id string) error
}
