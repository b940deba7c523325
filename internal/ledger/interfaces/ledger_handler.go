package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sebuszqo/FundLedger/internal/auth"
	"github.com/sebuszqo/FundLedger/internal/ledger/application"
	ledgerErrors "github.com/sebuszqo/FundLedger/internal/ledger/errors"
	"github.com/sebuszqo/FundLedger/internal/ledger/infrastructure"
)

type Services struct {
	Sessions      *application.SessionRegistry
	Views         *application.ViewLoader
	Registry      *application.ManagerRegistry
	Ledger        *application.LedgerService
	Subcategories *application.SubcategoryService
	Reports       *application.ReportService
}

type LedgerHandler struct {
	Services
	respondJSON  func(w http.ResponseWriter, status int, payload interface{})
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string)
}

func NewLedgerHandler(
	services Services,
	respondJSON func(w http.ResponseWriter, status int, payload interface{}),
	respondError func(w http.ResponseWriter, status int, message string, errors ...[]string),
) *LedgerHandler {
	if services.Sessions == nil || services.Views == nil || services.Registry == nil ||
		services.Ledger == nil || services.Subcategories == nil || services.Reports == nil {
		log.Fatal("Ledger services must not be nil")
		return nil
	}
	if respondJSON == nil {
		log.Fatal("RespondJSON function must not be nil")
		return nil
	}
	if respondError == nil {
		log.Fatal("RespondError function must not be nil")
		return nil
	}
	return &LedgerHandler{
		Services:     services,
		respondJSON:  respondJSON,
		respondError: respondError,
	}
}

// Routes mounts every ledger endpoint. The caller wraps the router with the
// access token middleware.
func (h *LedgerHandler) Routes(r chi.Router) {
	r.Route("/subcategories/{subID}", func(r chi.Router) {
		r.Get("/", h.LoadView)
		r.Patch("/", h.EditSubcategory)
		r.Get("/summary", h.Summary)
		r.Get("/report.csv", h.DownloadReport)

		r.Get("/donations", h.subcategoryDonations(listGet))
		r.Post("/donations/more", h.subcategoryDonations(listMore))
		r.Put("/donations/filters", h.subcategoryDonations(listFilters))
		r.Post("/donations/refresh", h.subcategoryDonations(listRefresh))
		r.Patch("/donations/{entryID}", h.UpdateDonation)
		r.Delete("/donations/{entryID}", h.DeleteDonation)
		r.Post("/offline-donations", h.CaptureOffline)

		r.Get("/expenses", h.subcategoryExpenses(listGet))
		r.Post("/expenses", h.CreateExpense)
		r.Post("/expenses/more", h.subcategoryExpenses(listMore))
		r.Put("/expenses/filters", h.subcategoryExpenses(listFilters))
		r.Post("/expenses/refresh", h.subcategoryExpenses(listRefresh))
		r.Patch("/expenses/{entryID}", h.UpdateExpense)
		r.Delete("/expenses/{entryID}", h.DeleteExpense)

		r.Get("/managers", h.ListManagers)
		r.Put("/managers", h.SaveManagers)
		r.Put("/managers/{managerID}", h.SetManagerDetails)
		r.Delete("/managers/{managerID}", h.RemoveManager)
		r.Post("/managers/{managerID}/image", h.UploadPaymentImage)

		r.Post("/flow", h.StartFlow)
		r.Post("/donate", h.DonateNow)
	})

	r.Route("/flow", func(r chi.Router) {
		r.Get("/", h.FlowState)
		r.Delete("/", h.CancelFlow)
		r.Post("/online", h.ChooseOnline)
		r.Post("/amount", h.EnterAmount)
		r.Post("/offline", h.ChooseOffline)
		r.Post("/manager", h.SelectManager)
		r.Post("/finish", h.FinishFlow)
		r.Post("/settle", h.Settle)
	})

	r.Get("/me/donations", h.donorDonations(listGet))
	r.Post("/me/donations/more", h.donorDonations(listMore))
	r.Put("/me/donations/filters", h.donorDonations(listFilters))
	r.Post("/me/donations/refresh", h.donorDonations(listRefresh))
}

func (h *LedgerHandler) session(w http.ResponseWriter, r *http.Request) (*application.Session, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		h.respondError(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}
	return h.Sessions.ForActor(actor), true
}

// sources returns the assignment sources for a capability check. When they do
// not already grant management, assignments are fetched once.
func (h *LedgerHandler) sources(ctx context.Context, session *application.Session, subcategoryID string) [][]string {
	if !session.Actor.IsManagementAccount() || session.Actor.IsAdmin() || session.CanManage(subcategoryID) {
		return session.AssignmentSources(subcategoryID)
	}
	if _, err := h.Registry.ListAssigned(ctx, subcategoryID); err != nil {
		log.Printf("level=warn component=ledger_handler subcategory=%s msg=\"assignment refresh failed\" err=%v", subcategoryID, err)
	}
	return session.AssignmentSources(subcategoryID)
}

func (h *LedgerHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func (h *LedgerHandler) success(w http.ResponseWriter, status int, message string, data interface{}) {
	payload := map[string]interface{}{"status": "success"}
	if message != "" {
		payload["message"] = message
	}
	if data != nil {
		payload["data"] = data
	}
	h.respondJSON(w, status, payload)
}

// fail maps the ledger error taxonomy to a response. fallback is the message for
// anything unexpected.
func (h *LedgerHandler) fail(w http.ResponseWriter, err error, fallback string) {
	var (
		validationErrs *ledgerErrors.ValidationErrors
		partial        *ledgerErrors.PartialFailureError
		gap            *ledgerErrors.SettledNotRecordedError
	)
	switch {
	case errors.As(err, &validationErrs):
		messages := make([]string, len(validationErrs.Errors))
		for i, vErr := range validationErrs.Errors {
			messages[i] = vErr.Error()
		}
		h.respondError(w, http.StatusBadRequest, "Validation errors occurred", messages)
	case ledgerErrors.IsValidationError(err):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case ledgerErrors.IsCapabilityError(err):
		h.respondError(w, http.StatusForbidden, "You are not allowed to perform this action")
	case errors.Is(err, ledgerErrors.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ledgerErrors.ErrUnknownManager):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledgerErrors.ErrAttemptActive),
		errors.Is(err, ledgerErrors.ErrInvalidTransition),
		errors.Is(err, ledgerErrors.ErrInactive),
		errors.Is(err, ledgerErrors.ErrNoManagerAssigned):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &partial):
		messages := make([]string, len(partial.Failed))
		for i, op := range partial.Failed {
			messages[i] = op.Kind + " " + op.ManagerID + ": " + op.Err.Error()
		}
		status := http.StatusMultiStatus
		if partial.Succeeded == 0 {
			status = http.StatusBadGateway
		}
		h.respondError(w, status, "Some manager changes could not be saved", messages)
	case errors.As(err, &gap):
		h.respondError(w, http.StatusBadGateway,
			"Payment received but not recorded yet; it will be reconciled",
			[]string{"settlement_ref: " + gap.SettlementRef, "amount: " + gap.Amount.StringFixed(2)})
	case errors.Is(err, infrastructure.ErrImageStoreDisabled):
		h.respondError(w, http.StatusServiceUnavailable, "Payment image storage is not configured")
	case ledgerErrors.IsTransientError(err):
		h.respondError(w, http.StatusServiceUnavailable, "Temporarily unavailable, please retry")
	case errors.Is(err, context.Canceled):
		h.respondError(w, http.StatusRequestTimeout, "Request cancelled")
	default:
		log.Printf("level=error component=ledger_handler msg=%q err=%v", fallback, err)
		h.respondError(w, http.StatusInternalServerError, fallback)
	}
}
