package domain

import (
	"context"

	"github.com/sebuszqo/FundLedger/internal/ledger/errors"
)

type CollectionMethod string

const (
	CollectionUPI         CollectionMethod = "UPI"
	CollectionBankAccount CollectionMethod = "BANK_ACCOUNT"
)

// AssignmentDetails describe how a manager collects offline payments.
type AssignmentDetails struct {
	PaymentMethod     *CollectionMethod `json:"payment_method,omitempty"`
	AccountHolderName *string           `json:"account_holder_name,omitempty"`
	PaymentImage      *string           `json:"payment_image,omitempty"` // storage reference
	UseNumberForUPI   *bool             `json:"use_number_for_upi,omitempty"`
}

type ManagerAssignment struct {
	ManagerID     string            `json:"manager_id"`
	SubcategoryID string            `json:"subcategory_id"`
	ManagerName   string            `json:"manager_name"`
	ManagerPhone  string            `json:"manager_phone,omitempty"`
	Details       AssignmentDetails `json:"details"`
}

func (d AssignmentDetails) Validate() error {
	if d.PaymentMethod != nil && *d.PaymentMethod != CollectionUPI && *d.PaymentMethod != CollectionBankAccount {
		return errors.ErrInvalidPaymentMethod
	}
	return nil
}

func ManagerIDs(assignments []ManagerAssignment) []string {
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.ManagerID)
	}
	return ids
}

type AssignmentRepository interface {
	ListBySubcategory(ctx context.Context, subcategoryID string) ([]ManagerAssignment, error)
	Create(ctx context.Context, managerID, subcategoryID string) error
	UpdateDetails(ctx context.Context, managerID, subcategoryID string, details AssignmentDetails) error
	Delete(ctx context.Context, managerID, subcategoryID string) error
}

// PaymentImageStore keeps the QR code or bank details image a manager shows to
// offline donors and returns a reference to it.
type PaymentImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
