package interfaces

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
)

// LoadView returns the first page of both lists, the assigned managers, the
// totals and the actor's capabilities. A failed part is reported in errors and
// does not fail the request.
func (h *LedgerHandler) LoadView(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := h.Views.Load(r.Context(), session, chi.URLParam(r, "subID"))
	if err != nil {
		h.fail(w, err, "Failed to load subcategory")
		return
	}
	h.success(w, http.StatusOK, "", view)
}

func (h *LedgerHandler) Summary(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	subID := chi.URLParam(r, "subID")
	totals, caps := h.Views.Summary(session, subID)
	h.success(w, http.StatusOK, "", map[string]interface{}{
		"totals":       totals,
		"capabilities": caps,
	})
}

func (h *LedgerHandler) EditSubcategory(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var edit domain.SubcategoryEdit
	if !h.decode(w, r, &edit) {
		return
	}
	subcategory, err := h.Subcategories.Edit(r.Context(), session.Actor, chi.URLParam(r, "subID"), edit)
	if err != nil {
		h.fail(w, err, "Failed to update subcategory")
		return
	}
	h.success(w, http.StatusOK, "Subcategory updated.", subcategory)
}

// DownloadReport renders the whole CSV before writing, so a failure halfway
// still produces a JSON error.
func (h *LedgerHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	subID := chi.URLParam(r, "subID")
	subcategory, err := h.Views.Subcategory(r.Context(), subID)
	if err != nil {
		h.fail(w, err, "Failed to load subcategory")
		return
	}
	sources := h.sources(r.Context(), session, subID)

	var buf bytes.Buffer
	if err := h.Reports.Write(r.Context(), &buf, session.Actor, *subcategory, sources...); err != nil {
		h.fail(w, err, "Failed to build report")
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", subID+"-report.csv"))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
