package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is anything a paginated ledger list can hold.
type Entry interface {
	EntryID() string
	EntryAmount() decimal.Decimal
	EntryTime() time.Time
}

type SortKey string

const (
	SortByDate   SortKey = "date"
	SortByAmount SortKey = "amount"
)

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListFilter is the active filter snapshot of a list. Status is the raw status
// string of the entry kind (donation payment status or expense status).
// PublicOnly is set by the server from the actor's visibility, never by clients.
type ListFilter struct {
	From       *time.Time `json:"from,omitempty"`
	To         *time.Time `json:"to,omitempty"`
	Status     string     `json:"status,omitempty"`
	SortBy     SortKey    `json:"sort_by,omitempty"`
	Order      SortOrder  `json:"order,omitempty"`
	PublicOnly bool       `json:"public_only"`
}

func (f ListFilter) WithDefaults() ListFilter {
	if f.SortBy == "" {
		f.SortBy = SortByDate
	}
	if f.Order == "" {
		f.Order = SortDesc
	}
	return f
}

func IsValidSort(key SortKey, order SortOrder) bool {
	return (key == "" || key == SortByDate || key == SortByAmount) && (order == "" || order == SortAsc || order == SortDesc)
}

type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

const confirmationToken = "CONFIRM"

// CheckDeletionToken accepts the literal CONFIRM in any letter case. Surrounding
// whitespace is not forgiven.
func CheckDeletionToken(token string) bool {
	return strings.EqualFold(token, confirmationToken)
}

func (f ListFilter) Equal(other ListFilter) bool {
	return sameTime(f.From, other.From) && sameTime(f.To, other.To) &&
		f.Status == other.Status && f.SortBy == other.SortBy && f.Order == other.Order &&
		f.PublicOnly == other.PublicOnly
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
