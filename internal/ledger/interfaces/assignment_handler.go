package interfaces

import (
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sebuszqo/FundLedger/internal/ledger/domain"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
)

const maxPaymentImageSize = 5 << 20

func (h *LedgerHandler) ListManagers(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	subID := chi.URLParam(r, "subID")
	managers, err := h.Registry.ListAssigned(r.Context(), subID)
	if err != nil {
		log.Printf("level=warn component=ledger_handler subcategory=%s msg=\"list managers failed\" err=%v", subID, err)
		h.respondError(w, http.StatusServiceUnavailable, "Failed to load managers")
		return
	}
	h.success(w, http.StatusOK, "", managers)
}

// SaveManagers replaces the assigned manager set with the one in the body.
func (h *LedgerHandler) SaveManagers(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		ManagerIDs []string `json:"manager_ids"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	subID := chi.URLParam(r, "subID")
	diff, err := h.Registry.Apply(r.Context(), session.Actor, subID, req.ManagerIDs)
	if err != nil {
		var partial *ledgerErrors.PartialFailureError
		if errors.As(err, &partial) {
			log.Printf("level=warn component=ledger_handler subcategory=%s msg=\"manager save partially failed\" failed=%d succeeded=%d",
				subID, len(partial.Failed), partial.Succeeded)
		}
		h.fail(w, err, "Failed to save managers")
		return
	}
	h.success(w, http.StatusOK, "Managers saved.", map[string]interface{}{
		"diff":     diff,
		"managers": h.Registry.Cached(subID),
	})
}

func (h *LedgerHandler) SetManagerDetails(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var details domain.AssignmentDetails
	if !h.decode(w, r, &details) {
		return
	}
	subID, managerID := chi.URLParam(r, "subID"), chi.URLParam(r, "managerID")
	if err := h.Registry.SetAssignment(r.Context(), session.Actor, managerID, subID, details); err != nil {
		h.fail(w, err, "Failed to save manager details")
		return
	}
	assignment, _ := h.Registry.Find(subID, managerID)
	h.success(w, http.StatusOK, "Manager details saved.", assignment)
}

func (h *LedgerHandler) RemoveManager(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	subID, managerID := chi.URLParam(r, "subID"), chi.URLParam(r, "managerID")
	if err := h.Registry.RemoveAssignment(r.Context(), session.Actor, managerID, subID); err != nil {
		h.fail(w, err, "Failed to remove manager")
		return
	}
	h.success(w, http.StatusOK, "Manager removed.", h.Registry.Cached(subID))
}

// UploadPaymentImage accepts a multipart form with the QR or bank image in "image".
func (h *LedgerHandler) UploadPaymentImage(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxPaymentImageSize+1024)
	if err := r.ParseMultipartForm(maxPaymentImageSize); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid upload")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Image file is required")
		return
	}
	defer file.Close()
	if header.Size > maxPaymentImageSize {
		h.respondError(w, http.StatusRequestEntityTooLarge, "Image is too large")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Could not read image")
		return
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	subID, managerID := chi.URLParam(r, "subID"), chi.URLParam(r, "managerID")
	ref, err := h.Registry.AttachPaymentImage(r.Context(), session.Actor, managerID, subID, data, contentType)
	if err != nil {
		h.fail(w, err, "Failed to upload payment image")
		return
	}
	h.success(w, http.StatusCreated, "Payment image uploaded.", map[string]string{"payment_image": ref})
}
