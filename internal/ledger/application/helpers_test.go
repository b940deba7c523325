package application

import (
	"context"
	"sync"
	"time"

	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	"github.com/sebuszqo/FundLedger/pkg/gateway"
	"github.com/shopspring/decimal"
)

var (
	adminActor    = domain.Actor{ID: "admin-1", Name: "Asha", AccountType: domain.AccountTypeManagement, Roles: []domain.Role{domain.RoleAdmin}}
	subAdminActor = domain.Actor{ID: "sub-1", Name: "Sunil", AccountType: domain.AccountTypeManagement, Roles: []domain.Role{domain.RoleSubAdmin}}
	managerActor  = domain.Actor{ID: "m1", Name: "Meera", AccountType: domain.AccountTypeManagement, Roles: []domain.Role{domain.RoleDonationManager}}
	donorActor    = domain.Actor{ID: "donor-1", Name: "Dev", AccountType: "USER"}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func at(day int) time.Time {
	return time.Date(2024, time.March, day, 10, 0, 0, 0, time.UTC)
}

func openSubcategory(id string) domain.Subcategory {
	return domain.Subcategory{ID: id, Title: "Temple roof", Type: domain.OpenDonation, Status: domain.StatusActive, CategoryID: "cat-1", CategoryStatus: domain.StatusActive}
}

func fixedSubcategory(id, amount string) domain.Subcategory {
	s := openSubcategory(id)
	s.Type = domain.SpecificAmount
	s.FixedAmount = decPtr(amount)
	return s
}

type fakeGateway struct {
	mu       sync.Mutex
	requests []gateway.CheckoutRequest
	settle   func(req gateway.CheckoutRequest) (*gateway.Settlement, error)
}

func (g *fakeGateway) OpenCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.Settlement, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	settle := g.settle
	g.mu.Unlock()
	if settle == nil {
		return &gateway.Settlement{Reference: "pay_" + req.CorrelationID, AmountMinor: req.AmountMinor, Status: "captured"}, nil
	}
	return settle(req)
}

func (g *fakeGateway) Requests() []gateway.CheckoutRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]gateway.CheckoutRequest, len(g.requests))
	copy(out, g.requests)
	return out
}
