package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementGap is an online payment the gateway captured but the ledger never
// recorded. It stays open until a donation with the same reference exists.
type SettlementGap struct {
	SettlementRef string          `json:"settlement_ref"`
	SubcategoryID string          `json:"subcategory_id"`
	CategoryID    string          `json:"category_id"`
	Donor         DonorInfo       `json:"donor"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
	CapturedAt    time.Time       `json:"captured_at"`
	Attempts      int             `json:"attempts"`
}

// Donation rebuilds the record that should have been written at capture time.
func (g SettlementGap) Donation() Donation {
	return Donation{
		SubcategoryID:  g.SubcategoryID,
		CategoryID:     g.CategoryID,
		Amount:         g.Amount,
		PaymentMethod:  DonationOnline,
		PaymentStatus:  DonationSuccess,
		Donor:          g.Donor,
		TransactionRef: g.SettlementRef,
		CreatedAt:      g.CapturedAt,
	}
}

type SettlementGapStore interface {
	Record(ctx context.Context, gap SettlementGap) error
	List(ctx context.Context) ([]SettlementGap, error)
	Resolve(ctx context.Context, settlementRef string) error
}
