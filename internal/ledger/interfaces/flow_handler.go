package interfaces

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sebuszqo/FundLedger/internal/ledger/application"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
	"github.com/sebuszqo/FundLedger/pkg/gateway"
	"github.com/shopspring/decimal"
)

type flowView struct {
	State   application.FlowState        `json:"state"`
	Attempt *application.DonationAttempt `json:"attempt,omitempty"`
}

func (h *LedgerHandler) respondFlow(w http.ResponseWriter, flow *application.DonationFlow, extra map[string]interface{}) {
	data := map[string]interface{}{
		"flow": flowView{State: flow.State(), Attempt: flow.Attempt()},
	}
	for k, v := range extra {
		data[k] = v
	}
	h.success(w, http.StatusOK, "", data)
}

func (h *LedgerHandler) FlowState(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	h.respondFlow(w, session.Flow, nil)
}

func (h *LedgerHandler) StartFlow(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	subcategory, err := h.Views.Subcategory(r.Context(), chi.URLParam(r, "subID"))
	if err != nil {
		h.fail(w, err, "Failed to load subcategory")
		return
	}
	if err := session.Flow.Start(*subcategory); err != nil {
		h.fail(w, err, "Failed to start donation")
		return
	}
	h.respondFlow(w, session.Flow, nil)
}

func (h *LedgerHandler) ChooseOnline(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := session.Flow.ChooseOnline(); err != nil {
		h.fail(w, err, "Failed to choose online payment")
		return
	}
	h.respondFlow(w, session.Flow, nil)
}

func (h *LedgerHandler) EnterAmount(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := session.Flow.EnterAmount(req.Amount); err != nil {
		h.fail(w, err, "Failed to set amount")
		return
	}
	h.respondFlow(w, session.Flow, nil)
}

func (h *LedgerHandler) ChooseOffline(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	managers, err := session.Flow.ChooseOffline(r.Context())
	if err != nil {
		h.fail(w, err, "Failed to load managers")
		return
	}
	h.respondFlow(w, session.Flow, map[string]interface{}{"managers": managers})
}

func (h *LedgerHandler) SelectManager(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		ManagerID string `json:"manager_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	manager, err := session.Flow.SelectManager(req.ManagerID)
	if err != nil {
		h.fail(w, err, "Failed to select manager")
		return
	}
	h.respondFlow(w, session.Flow, map[string]interface{}{"manager": manager})
}

func (h *LedgerHandler) FinishFlow(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.Flow.Finish(); err != nil {
		h.fail(w, err, "Failed to finish donation")
		return
	}
	h.respondFlow(w, session.Flow, nil)
}

func (h *LedgerHandler) CancelFlow(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	session.Flow.Cancel()
	h.respondFlow(w, session.Flow, nil)
}

func (h *LedgerHandler) Settle(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Prefill gateway.Prefill `json:"prefill"`
	}
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	result, err := session.Flow.Settle(r.Context(), req.Prefill)
	if err != nil {
		h.failPayment(w, err)
		return
	}
	h.respondFlow(w, session.Flow, map[string]interface{}{"result": result})
}

// DonateNow runs the whole online path in one request.
func (h *LedgerHandler) DonateNow(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount  *decimal.Decimal `json:"amount,omitempty"`
		Prefill gateway.Prefill  `json:"prefill"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	subcategory, err := h.Views.Subcategory(r.Context(), chi.URLParam(r, "subID"))
	if err != nil {
		h.fail(w, err, "Failed to load subcategory")
		return
	}
	result, err := session.Flow.DonateNow(r.Context(), *subcategory, req.Amount, req.Prefill)
	if err != nil {
		h.failPayment(w, err)
		return
	}
	h.respondFlow(w, session.Flow, map[string]interface{}{"result": result})
}

// failPayment reports a gateway failure as 402; ledger errors go through fail.
func (h *LedgerHandler) failPayment(w http.ResponseWriter, err error) {
	if !isLedgerError(err) {
		h.respondError(w, http.StatusPaymentRequired, "Payment failed, please try again")
		return
	}
	h.fail(w, err, "Payment failed")
}

func isLedgerError(err error) bool {
	return ledgerErrors.IsValidationError(err) ||
		ledgerErrors.IsCapabilityError(err) ||
		ledgerErrors.IsSettledNotRecorded(err) ||
		ledgerErrors.IsTransientError(err) ||
		errors.Is(err, ledgerErrors.ErrAttemptActive) ||
		errors.Is(err, ledgerErrors.ErrInvalidTransition) ||
		errors.Is(err, ledgerErrors.ErrInactive) ||
		errors.Is(err, context.Canceled)
}

func (h *LedgerHandler) CaptureOffline(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var entry application.OfflineEntry
	if !h.decode(w, r, &entry) {
		return
	}
	subID := chi.URLParam(r, "subID")
	subcategory, err := h.Views.Subcategory(r.Context(), subID)
	if err != nil {
		h.fail(w, err, "Failed to load subcategory")
		return
	}
	h.sources(r.Context(), session, subID)
	donation, err := session.Flow.CaptureOffline(r.Context(), *subcategory, entry, session.LoadedManagers(subID))
	if err != nil {
		h.fail(w, err, "Failed to record donation")
		return
	}
	h.success(w, http.StatusCreated, "Donation recorded.", donation)
}
