package interfaces

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
)

type deleteRequest struct {
	Confirmation string `json:"confirmation"`
}

func (h *LedgerHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var expense domain.Expense
	if !h.decode(w, r, &expense) {
		return
	}
	subID := chi.URLParam(r, "subID")
	expense.SubcategoryID = subID
	sources := h.sources(r.Context(), session, subID)
	if err := h.Ledger.CreateExpense(r.Context(), session.Actor, &expense, sources...); err != nil {
		h.fail(w, err, "Failed to create expense")
		return
	}
	h.success(w, http.StatusCreated, "Expense created.", expense)
}

func (h *LedgerHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var update domain.ExpenseUpdate
	if !h.decode(w, r, &update) {
		return
	}
	subID := chi.URLParam(r, "subID")
	sources := h.sources(r.Context(), session, subID)
	expense, err := h.Ledger.UpdateExpense(r.Context(), session.Actor, subID, chi.URLParam(r, "entryID"), update, sources...)
	if err != nil {
		h.fail(w, err, "Failed to update expense")
		return
	}
	h.success(w, http.StatusOK, "Expense updated.", expense)
}

func (h *LedgerHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req deleteRequest
	if !h.decode(w, r, &req) {
		return
	}
	subID := chi.URLParam(r, "subID")
	sources := h.sources(r.Context(), session, subID)
	if err := h.Ledger.DeleteExpense(r.Context(), session.Actor, subID, chi.URLParam(r, "entryID"), req.Confirmation, sources...); err != nil {
		h.fail(w, err, "Failed to delete expense")
		return
	}
	h.success(w, http.StatusOK, "Expense deleted.", nil)
}

func (h *LedgerHandler) UpdateDonation(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var update domain.DonationUpdate
	if !h.decode(w, r, &update) {
		return
	}
	subID := chi.URLParam(r, "subID")
	sources := h.sources(r.Context(), session, subID)
	donation, err := h.Ledger.UpdateDonation(r.Context(), session.Actor, subID, chi.URLParam(r, "entryID"), update, sources...)
	if err != nil {
		h.fail(w, err, "Failed to update donation")
		return
	}
	h.success(w, http.StatusOK, "Donation updated.", donation)
}

func (h *LedgerHandler) DeleteDonation(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req deleteRequest
	if !h.decode(w, r, &req) {
		return
	}
	subID := chi.URLParam(r, "subID")
	sources := h.sources(r.Context(), session, subID)
	if err := h.Ledger.DeleteDonation(r.Context(), session.Actor, subID, chi.URLParam(r, "entryID"), req.Confirmation, sources...); err != nil {
		h.fail(w, err, "Failed to delete donation")
		return
	}
	h.success(w, http.StatusOK, "Donation deleted.", nil)
}
