package domain

import (
	"context"
	"strings"

	"github.com/sebuszqo/FundLedger/internal/ledger/errors"
	"github.com/shopspring/decimal"
)

type SubcategoryType string

const (
	OpenDonation   SubcategoryType = "open_donation"
	SpecificAmount SubcategoryType = "specific_amount"
)

type LifecycleStatus string

const (
	StatusActive   LifecycleStatus = "active"
	StatusInactive LifecycleStatus = "inactive"
)

type Subcategory struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	Type           SubcategoryType  `json:"type"`
	FixedAmount    *decimal.Decimal `json:"fixed_amount,omitempty"`
	Status         LifecycleStatus  `json:"status"`
	CategoryID     string           `json:"category_id"`
	CategoryStatus LifecycleStatus  `json:"category_status"`
}

// AcceptsDonations is false when either the subcategory or its parent category is inactive.
func (s Subcategory) AcceptsDonations() bool {
	return s.Status != StatusInactive && s.CategoryStatus != StatusInactive
}

func (s Subcategory) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return errors.ErrTitleRequired
	}
	switch s.Type {
	case OpenDonation:
		if s.FixedAmount != nil {
			return errors.NewValidationError("Open donation subcategories cannot have a fixed amount")
		}
	case SpecificAmount:
		if s.FixedAmount == nil || !s.FixedAmount.IsPositive() {
			return errors.ErrFixedAmountRequired
		}
	default:
		return errors.ErrInvalidSubcategory
	}
	if s.Status != StatusActive && s.Status != StatusInactive {
		return errors.ErrInvalidStatus
	}
	return nil
}

type SubcategoryEdit struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Type        *SubcategoryType `json:"type,omitempty"`
	FixedAmount *decimal.Decimal `json:"fixed_amount,omitempty"`
	Status      *LifecycleStatus `json:"status,omitempty"`
}

// ApplyEdit mutates s in place. Moving to open_donation clears the amount; moving
// to specific_amount requires a positive one, either in the edit or already set.
func (s *Subcategory) ApplyEdit(edit SubcategoryEdit) error {
	next := *s
	if edit.Title != nil {
		next.Title = strings.TrimSpace(*edit.Title)
	}
	if edit.Description != nil {
		next.Description = *edit.Description
	}
	if edit.Status != nil {
		next.Status = *edit.Status
	}
	if edit.FixedAmount != nil {
		amount := *edit.FixedAmount
		next.FixedAmount = &amount
	}
	if edit.Type != nil {
		next.Type = *edit.Type
	}
	if next.Type == OpenDonation {
		next.FixedAmount = nil
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*s = next
	return nil
}

type SubcategoryRepository interface {
	FindByID(ctx context.Context, id string) (*Subcategory, error)
	Update(ctx context.Context, subcategory Subcategory) error
}
