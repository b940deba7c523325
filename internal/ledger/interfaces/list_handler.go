package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sebuszqo/FundLedger/internal/ledger/application"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
)

type listOp int

const (
	listGet listOp = iota
	listMore
	listFilters
	listRefresh
)

func (h *LedgerHandler) subcategoryDonations(op listOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := h.session(w, r)
		if !ok {
			return
		}
		subID := chi.URLParam(r, "subID")
		h.sources(r.Context(), session, subID)
		serveList(h, w, r, session.SubcategoryDonations(subID), op)
	}
}

func (h *LedgerHandler) subcategoryExpenses(op listOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := h.session(w, r)
		if !ok {
			return
		}
		subID := chi.URLParam(r, "subID")
		h.sources(r.Context(), session, subID)
		serveList(h, w, r, session.SubcategoryExpenses(subID), op)
	}
}

// donorDonations serves the actor's own donation history, optionally narrowed by
// ?category=.
func (h *LedgerHandler) donorDonations(op listOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := h.session(w, r)
		if !ok {
			return
		}
		serveList(h, w, r, session.DonorDonations(r.URL.Query().Get("category")), op)
	}
}

func serveList[T domain.Entry](h *LedgerHandler, w http.ResponseWriter, r *http.Request, list *application.ListCoordinator[T], op listOp) {
	ctx := r.Context()
	var err error
	switch op {
	case listGet:
		if raw := r.URL.Query().Get("page"); raw != "" {
			page, convErr := strconv.Atoi(raw)
			if convErr != nil || page < 1 {
				h.respondError(w, http.StatusBadRequest, "Invalid page")
				return
			}
			err = list.Fetch(ctx, page, list.Snapshot().Filter)
		} else if list.Snapshot().Page == 0 {
			err = list.Refresh(ctx)
		}
	case listMore:
		err = list.LoadMore(ctx)
	case listRefresh:
		err = list.Refresh(ctx)
	case listFilters:
		var filter domain.ListFilter
		if decodeErr := json.NewDecoder(r.Body).Decode(&filter); decodeErr != nil {
			h.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if !domain.IsValidSort(filter.SortBy, filter.Order) {
			h.respondError(w, http.StatusBadRequest, "Invalid sort")
			return
		}
		if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
			h.respondError(w, http.StatusBadRequest, "Start date must not be after end date")
			return
		}
		err = list.SetFilters(ctx, filter)
	}
	if err != nil {
		h.fail(w, err, "Failed to load entries")
		return
	}
	h.success(w, http.StatusOK, "", list.Snapshot())
}
