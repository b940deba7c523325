package interfaces

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sebuszqo/FundLedger/internal/auth"
	"github.com/sebuszqo/FundLedger/internal/ledger/application"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	"github.com/sebuszqo/FundLedger/internal/ledger/infrastructure"
	"github.com/sebuszqo/FundLedger/internal/notify"
	"github.com/sebuszqo/FundLedger/pkg/gateway"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	adminActor   = domain.Actor{ID: "admin-1", Name: "Asha", AccountType: domain.AccountTypeManagement, Roles: []domain.Role{domain.RoleAdmin}}
	managerActor = domain.Actor{ID: "m1", Name: "Meera", AccountType: domain.AccountTypeManagement, Roles: []domain.Role{domain.RoleDonationManager}}
	outsider     = domain.Actor{ID: "m9", Name: "Naveen", AccountType: domain.AccountTypeManagement, Roles: []domain.Role{domain.RoleDonationManager}}
	donorActor   = domain.Actor{ID: "donor-1", Name: "Dev", AccountType: "USER"}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 10, 0, 0, 0, time.UTC)
}

type stubGateway struct {
	mu  sync.Mutex
	err error
}

func (g *stubGateway) OpenCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.Settlement, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.Settlement{Reference: "pay_" + req.CorrelationID, AmountMinor: req.AmountMinor, Status: "captured"}, nil
}

type handlerFixture struct {
	router      chi.Router
	donations   *infrastructure.MockDonationRepository
	expenses    *infrastructure.MockExpenseRepository
	assignments *infrastructure.MockAssignmentRepository
	images      *infrastructure.MockImageStore
	gaps        *infrastructure.MemoryGapStore
	gateway     *stubGateway
}

func newHandlerFixture() *handlerFixture {
	userID := donorActor.ID
	f := &handlerFixture{
		donations: &infrastructure.MockDonationRepository{Donations: []domain.Donation{
			{ID: "d1", SubcategoryID: "sub-1", CategoryID: "cat-1", Amount: dec("100.10"), PaymentMethod: domain.DonationOnline, PaymentStatus: domain.DonationSuccess, Donor: domain.DonorInfo{UserID: &userID, Name: "Dev"}, TransactionRef: "pay_a", CreatedAt: day(1)},
			{ID: "d2", SubcategoryID: "sub-1", CategoryID: "cat-1", Amount: dec("50.20"), PaymentMethod: domain.DonationOnline, PaymentStatus: domain.DonationPending, TransactionRef: "pay_b", CreatedAt: day(2)},
			{ID: "d3", SubcategoryID: "sub-1", CategoryID: "cat-1", Amount: dec("0.30"), PaymentMethod: domain.DonationOnline, PaymentStatus: domain.DonationFailed, TransactionRef: "pay_c", CreatedAt: day(3)},
			{ID: "d4", SubcategoryID: "sub-1", CategoryID: "cat-1", Amount: dec("200.00"), PaymentMethod: domain.DonationOffline, PaymentStatus: domain.DonationSuccess, Donor: domain.DonorInfo{Name: "Ravi"}, TransactionRef: "offline-d", CreatedAt: day(4)},
		}},
		expenses: &infrastructure.MockExpenseRepository{Expenses: []domain.Expense{
			{ID: "e1", SubcategoryID: "sub-1", Title: "Scaffolding", PaymentMethod: domain.ExpenseCash, Amount: dec("80.05"), Status: domain.ExpenseApproved, CreatedAt: day(1)},
			{ID: "e2", SubcategoryID: "sub-1", Title: "Roof tiles", PaymentMethod: domain.ExpenseCash, Amount: dec("500.00"), Status: domain.ExpensePending, CreatedAt: day(2)},
		}},
		assignments: &infrastructure.MockAssignmentRepository{Assignments: []domain.ManagerAssignment{
			{ManagerID: "m1", SubcategoryID: "sub-1", ManagerName: "Meera"},
			{ManagerID: "m2", SubcategoryID: "sub-1", ManagerName: "Mohan"},
		}},
		images:  &infrastructure.MockImageStore{},
		gaps:    &infrastructure.MemoryGapStore{},
		gateway: &stubGateway{},
	}
	subcategories := &infrastructure.MockSubcategoryRepository{Subcategories: map[string]domain.Subcategory{
		"sub-1":   {ID: "sub-1", Title: "Temple roof", Type: domain.OpenDonation, Status: domain.StatusActive, CategoryID: "cat-1", CategoryStatus: domain.StatusActive},
		"sub-off": {ID: "sub-off", Title: "Old drive", Type: domain.OpenDonation, Status: domain.StatusInactive, CategoryID: "cat-1", CategoryStatus: domain.StatusActive},
	}}

	resolver := application.NewCapabilityResolver()
	aggregator := application.NewLedgerAggregator(resolver)
	registry := application.NewManagerRegistry(f.assignments, f.images)
	sessions := application.NewSessionRegistry(application.SessionDeps{
		Donations: f.donations,
		Expenses:  f.expenses,
		Resolver:  resolver,
		Registry:  registry,
		PageSize:  2,
		Flow: application.FlowDeps{
			Registry:  registry,
			Donations: f.donations,
			Gateway:   f.gateway,
			Gaps:      f.gaps,
			Notifier:  &notify.RecordingSink{},
			Resolver:  resolver,
			Settings:  application.DefaultFlowSettings(),
		},
	})

	handler := NewLedgerHandler(Services{
		Sessions:      sessions,
		Views:         application.NewViewLoader(subcategories, registry, resolver, aggregator),
		Registry:      registry,
		Ledger:        application.NewLedgerService(f.donations, f.expenses, resolver),
		Subcategories: application.NewSubcategoryService(subcategories),
		Reports:       application.NewReportService(f.donations, f.expenses, resolver, aggregator),
	}, respondJSON, respondError)

	router := chi.NewRouter()
	handler.Routes(router)
	f.router = router
	return f
}

func (f *handlerFixture) do(actor *domain.Actor, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req = req.WithContext(auth.WithActor(req.Context(), *actor))
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Errors  []string        `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return env
}

type listPayload struct {
	Page    int  `json:"page"`
	HasMore bool `json:"has_more"`
	Items   []struct {
		ID string `json:"id"`
	} `json:"items"`
}

func (l listPayload) ids() []string {
	ids := make([]string, len(l.Items))
	for i, item := range l.Items {
		ids[i] = item.ID
	}
	return ids
}

func TestLedgerHandler_RequiresActor(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(nil, http.MethodGet, "/subcategories/sub-1/", nil)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoadView_PublicActor(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(&donorActor, http.MethodGet, "/subcategories/sub-1/", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var view struct {
		Donations    listPayload `json:"donations"`
		Expenses     listPayload `json:"expenses"`
		Capabilities struct {
			CanManage bool `json:"can_manage"`
		} `json:"capabilities"`
		Managers []domain.ManagerAssignment `json:"managers"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &view))
	assert.Equal(t, []string{"d4", "d1"}, view.Donations.ids())
	assert.Equal(t, []string{"e1"}, view.Expenses.ids())
	assert.Len(t, view.Managers, 2)
	assert.False(t, view.Capabilities.CanManage)
}

func TestLoadView_UnknownSubcategory(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(&adminActor, http.MethodGet, "/subcategories/ghost/", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "error", decodeEnvelope(t, rr).Status)
}

func TestDonationList_Pagination(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(&adminActor, http.MethodGet, "/subcategories/sub-1/donations", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var first listPayload
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &first))
	assert.Equal(t, 1, first.Page)
	assert.True(t, first.HasMore)
	assert.Equal(t, []string{"d4", "d3"}, first.ids())

	rr = f.do(&adminActor, http.MethodPost, "/subcategories/sub-1/donations/more", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var second listPayload
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &second))
	assert.Equal(t, 2, second.Page)
	assert.False(t, second.HasMore)
	assert.Equal(t, []string{"d4", "d3", "d2", "d1"}, second.ids())

	rr = f.do(&adminActor, http.MethodPost, "/subcategories/sub-1/donations/more", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var exhausted listPayload
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &exhausted))
	assert.Equal(t, 2, exhausted.Page, "an exhausted list does not fetch again")
}

func TestDonationList_Filters(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(&adminActor, http.MethodPut, "/subcategories/sub-1/donations/filters",
		map[string]string{"sort_by": "amount", "order": "asc"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var list listPayload
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &list))
	assert.Equal(t, []string{"d3", "d2"}, list.ids())

	rr = f.do(&adminActor, http.MethodPut, "/subcategories/sub-1/donations/filters",
		map[string]string{"sort_by": "name"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(&adminActor, http.MethodPut, "/subcategories/sub-1/donations/filters",
		map[string]string{"from": "2024-03-05T00:00:00Z", "to": "2024-03-01T00:00:00Z"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDonationList_StoreFailure(t *testing.T) {
	f := newHandlerFixture()
	f.donations.ListErr = errors.New("connection refused")

	rr := f.do(&adminActor, http.MethodGet, "/subcategories/sub-1/donations", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestDonorHistory(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(&donorActor, http.MethodGet, "/me/donations?category=cat-1", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var list listPayload
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &list))
	assert.Equal(t, []string{"d1"}, list.ids())
}

func TestDeleteDonation(t *testing.T) {
	tests := []struct {
		name       string
		actor      domain.Actor
		entryID    string
		token      string
		wantStatus int
		wantLeft   int
	}{
		{"wrong token", adminActor, "d1", "CONFIRM ", http.StatusBadRequest, 4},
		{"unassigned manager", outsider, "d1", "CONFIRM", http.StatusForbidden, 4},
		{"missing entry", adminActor, "ghost", "CONFIRM", http.StatusNotFound, 4},
		{"assigned manager", managerActor, "d2", "confirm", http.StatusOK, 3},
		{"admin", adminActor, "d1", "CONFIRM", http.StatusOK, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newHandlerFixture()

			rr := f.do(&tt.actor, http.MethodDelete, "/subcategories/sub-1/donations/"+tt.entryID,
				map[string]string{"confirmation": tt.token})

			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			assert.Len(t, f.donations.Stored(), tt.wantLeft)
		})
	}
}

func TestCapability_ClientManagerListIsIgnored(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(&outsider, http.MethodGet, "/subcategories/sub-1/?managers=m9", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var view application.SubcategoryView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &view))
	assert.False(t, view.Capabilities.CanManage)

	rr = f.do(&outsider, http.MethodDelete, "/subcategories/sub-1/donations/d1?managers=m9",
		map[string]string{"confirmation": "CONFIRM"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(&outsider, http.MethodPost, "/subcategories/sub-1/offline-donations?managers=m9",
		map[string]interface{}{"donor": map[string]string{"name": "Lakshmi"}, "amount": "1000000"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(&outsider, http.MethodGet, "/subcategories/sub-1/donations?managers=m9", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list listPayload
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &list))
	assert.Equal(t, []string{"d4", "d1"}, list.ids())

	assert.Len(t, f.donations.Stored(), 4)
}

func TestExpenses_CreateAndUpdate(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(&managerActor, http.MethodPost, "/subcategories/sub-1/expenses",
		map[string]string{"title": " Cement ", "amount": "1200.456", "payment_method": "cheque"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created domain.Expense
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &created))
	assert.Equal(t, "Cement", created.Title)
	assert.Equal(t, "1200.46", created.Amount.StringFixed(2))
	assert.Equal(t, domain.ExpensePending, created.Status)
	assert.Equal(t, "sub-1", created.SubcategoryID)

	rr = f.do(&managerActor, http.MethodPatch, "/subcategories/sub-1/expenses/"+created.ID,
		map[string]string{"status": "approved"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated domain.Expense
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &updated))
	assert.Equal(t, domain.ExpenseApproved, updated.Status)

	rr = f.do(&outsider, http.MethodPost, "/subcategories/sub-1/expenses",
		map[string]string{"title": "Cement", "amount": "10", "payment_method": "cash"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(&managerActor, http.MethodPost, "/subcategories/sub-1/expenses",
		map[string]string{"title": "", "amount": "10", "payment_method": "cash"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Title is required", decodeEnvelope(t, rr).Message)

	rr = f.do(&managerActor, http.MethodPost, "/subcategories/sub-1/expenses",
		map[string]string{"title": "", "amount": "0.004", "payment_method": "card"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.Equal(t, "Validation errors occurred", env.Message)
	assert.Equal(t, []string{"Title is required", "Amount must be greater than zero", "Invalid payment method"}, env.Errors)
}

func TestUpdateDonation_RegisteredDonorIsReadOnly(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(&adminActor, http.MethodPatch, "/subcategories/sub-1/donations/d1",
		map[string]interface{}{"donor": map[string]string{"name": "Someone else"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(&adminActor, http.MethodPatch, "/subcategories/sub-1/donations/d4",
		map[string]interface{}{"donor": map[string]string{"name": "Ravi Kumar"}, "amount": "210"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var updated domain.Donation
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &updated))
	assert.Equal(t, "Ravi Kumar", updated.Donor.Name)
	assert.Equal(t, "210.00", updated.Amount.StringFixed(2))
}

func TestDonationFlow_StepByStep(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(&donorActor, http.MethodPost, "/subcategories/sub-1/flow", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(&donorActor, http.MethodPost, "/subcategories/sub-1/flow", nil)
	assert.Equal(t, http.StatusConflict, rr.Code, "one attempt at a time")

	rr = f.do(&donorActor, http.MethodPost, "/flow/online", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(&donorActor, http.MethodPost, "/flow/amount", map[string]string{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(&donorActor, http.MethodPost, "/flow/amount", map[string]string{"amount": "0.004"})
	assert.Equal(t, http.StatusBadRequest, rr.Code, "rounds to zero")

	rr = f.do(&donorActor, http.MethodPost, "/flow/amount", map[string]string{"amount": "500"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(&donorActor, http.MethodPost, "/flow/settle", map[string]interface{}{"prefill": map[string]string{"name": "Dev"}})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var settled struct {
		Flow   flowView                 `json:"flow"`
		Result application.SettleResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &settled))
	assert.Equal(t, application.StateIdle, settled.Flow.State)
	assert.Equal(t, application.OutcomeRecorded, settled.Result.Outcome)
	assert.Equal(t, int64(51000), settled.Result.ChargedMinor)
	assert.Len(t, f.donations.Stored(), 5)
}

func TestDonationFlow_InactiveSubcategory(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(&donorActor, http.MethodPost, "/subcategories/sub-off/flow", nil)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestDonationFlow_OfflineBrowse(t *testing.T) {
	f := newHandlerFixture()
	require.Equal(t, http.StatusOK, f.do(&donorActor, http.MethodPost, "/subcategories/sub-1/flow", nil).Code)

	rr := f.do(&donorActor, http.MethodPost, "/flow/offline", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = f.do(&donorActor, http.MethodPost, "/flow/manager", map[string]string{"manager_id": "ghost"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(&donorActor, http.MethodPost, "/flow/manager", map[string]string{"manager_id": "m2"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(&donorActor, http.MethodPost, "/flow/finish", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(&donorActor, http.MethodGet, "/flow/", nil)
	var state struct {
		Flow flowView `json:"flow"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &state))
	assert.Equal(t, application.StateIdle, state.Flow.State)
	assert.Nil(t, state.Flow.Attempt)
	assert.Len(t, f.donations.Stored(), 4)
}

func TestDonateNow_Failures(t *testing.T) {
	t.Run("gateway declines", func(t *testing.T) {
		f := newHandlerFixture()
		f.gateway.err = errors.New("card declined")

		rr := f.do(&donorActor, http.MethodPost, "/subcategories/sub-1/donate", map[string]string{"amount": "100"})

		assert.Equal(t, http.StatusPaymentRequired, rr.Code)
		assert.Len(t, f.donations.Stored(), 4)
	})

	t.Run("charged but not recorded", func(t *testing.T) {
		f := newHandlerFixture()
		f.donations.CreateErr = errors.New("ledger unavailable")

		rr := f.do(&donorActor, http.MethodPost, "/subcategories/sub-1/donate", map[string]string{"amount": "250"})

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		env := decodeEnvelope(t, rr)
		require.Len(t, env.Errors, 2)
		assert.True(t, strings.HasPrefix(env.Errors[0], "settlement_ref: pay_"))
		assert.Equal(t, "amount: 250.00", env.Errors[1])

		gaps, err := f.gaps.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, gaps, 1)
	})

	t.Run("cancelled checkout", func(t *testing.T) {
		f := newHandlerFixture()
		f.gateway.err = gateway.ErrCheckoutCancelled

		rr := f.do(&donorActor, http.MethodPost, "/subcategories/sub-1/donate", map[string]string{"amount": "250"})

		require.Equal(t, http.StatusOK, rr.Code)
		var data struct {
			Result application.SettleResult `json:"result"`
		}
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &data))
		assert.Equal(t, application.OutcomeCancelled, data.Result.Outcome)
	})
}

func TestCaptureOffline(t *testing.T) {
	f := newHandlerFixture()
	entry := map[string]interface{}{"donor": map[string]string{"name": "Lakshmi"}, "amount": "300"}

	rr := f.do(&donorActor, http.MethodPost, "/subcategories/sub-1/offline-donations", entry)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.do(&managerActor, http.MethodPost, "/subcategories/sub-1/offline-donations", entry)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var donation domain.Donation
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &donation))
	assert.Equal(t, domain.DonationOffline, donation.PaymentMethod)
	assert.True(t, strings.HasPrefix(donation.TransactionRef, "offline-"))
	assert.Len(t, f.donations.Stored(), 5)
}

func TestCaptureOffline_TransactionReference(t *testing.T) {
	f := newHandlerFixture()

	taken := map[string]interface{}{"donor": map[string]string{"name": "Lakshmi"}, "amount": "300", "transaction_ref": "pay_a"}
	rr := f.do(&managerActor, http.MethodPost, "/subcategories/sub-1/offline-donations", taken)
	assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	assert.Len(t, f.donations.Stored(), 4)

	receipt := map[string]interface{}{"donor": map[string]string{"name": "Lakshmi"}, "amount": "300", "transaction_ref": "receipt-17"}
	first := f.do(&managerActor, http.MethodPost, "/subcategories/sub-1/offline-donations", receipt)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	retry := f.do(&managerActor, http.MethodPost, "/subcategories/sub-1/offline-donations", receipt)
	require.Equal(t, http.StatusCreated, retry.Code, retry.Body.String())

	var a, b domain.Donation
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, first).Data, &a))
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, retry).Data, &b))
	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, f.donations.Stored(), 5)
}

func TestSaveManagers(t *testing.T) {
	t.Run("requires admin", func(t *testing.T) {
		f := newHandlerFixture()

		rr := f.do(&managerActor, http.MethodPut, "/subcategories/sub-1/managers", map[string][]string{"manager_ids": {"m1"}})

		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("applies the diff", func(t *testing.T) {
		f := newHandlerFixture()

		rr := f.do(&adminActor, http.MethodPut, "/subcategories/sub-1/managers", map[string][]string{"manager_ids": {"m2", "m3"}})

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var data struct {
			Diff application.AssignmentDiff `json:"diff"`
		}
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &data))
		assert.Equal(t, []string{"m3"}, data.Diff.ToAdd)
		assert.Equal(t, []string{"m1"}, data.Diff.ToRemove)
	})

	t.Run("partial failure", func(t *testing.T) {
		f := newHandlerFixture()
		f.assignments.FailCreate = map[string]error{"m3": errors.New("constraint violation")}

		rr := f.do(&adminActor, http.MethodPut, "/subcategories/sub-1/managers", map[string][]string{"manager_ids": {"m1", "m2", "m3", "m4"}})

		assert.Equal(t, http.StatusMultiStatus, rr.Code)
		env := decodeEnvelope(t, rr)
		require.Len(t, env.Errors, 1)
		assert.Contains(t, env.Errors[0], "add m3")
	})

	t.Run("everything failed", func(t *testing.T) {
		f := newHandlerFixture()
		f.assignments.FailDelete = map[string]error{"m1": errors.New("timeout"), "m2": errors.New("timeout")}

		rr := f.do(&adminActor, http.MethodPut, "/subcategories/sub-1/managers", map[string][]string{"manager_ids": {}})

		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Len(t, decodeEnvelope(t, rr).Errors, 2)
	})
}

func TestManagerDetailsAndImage(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(&adminActor, http.MethodPut, "/subcategories/sub-1/managers/m1",
		map[string]interface{}{"payment_method": "UPI", "use_number_for_upi": true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "qr.png")
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/subcategories/sub-1/managers/m1/image", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req = req.WithContext(auth.WithActor(req.Context(), adminActor))
	upload := httptest.NewRecorder()
	f.router.ServeHTTP(upload, req)

	require.Equal(t, http.StatusCreated, upload.Code, upload.Body.String())
	assert.Contains(t, f.images.Objects, "payment-images/sub-1/m1")

	rr = f.do(&adminActor, http.MethodDelete, "/subcategories/sub-1/managers/m2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var remaining []domain.ManagerAssignment
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rr).Data, &remaining))
	require.Len(t, remaining, 1)
	assert.Equal(t, "m1", remaining[0].ManagerID)
	require.NotNil(t, remaining[0].Details.PaymentImage)
	assert.Equal(t, "mem://payment-images/sub-1/m1", *remaining[0].Details.PaymentImage)
}

func TestDownloadReport(t *testing.T) {
	f := newHandlerFixture()

	rr := f.do(&adminActor, http.MethodGet, "/subcategories/sub-1/report.csv", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "sub-1-report.csv")
	rows, err := csv.NewReader(rr.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "kind", rows[0][0])

	rr = f.do(&outsider, http.MethodGet, "/subcategories/sub-1/report.csv", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
