package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	catalogdomain "github.com/argsms/rangepool/internal/catalog/domain"
	identitydomain "github.com/argsms/rangepool/internal/identity/domain"
	pricingdomain "github.com/argsms/rangepool/internal/pricing/domain"
	reservationdomain "github.com/argsms/rangepool/internal/reservation/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeDomainError maps engine/domain errors to stable HTTP statuses for the
// calling layer's user-facing messaging. None of these are retried here.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, reservationdomain.ErrInsufficientBalance):
		writeJSON(w, http.StatusPaymentRequired, GenericErrorResponse{Error: "insufficient_balance"})
	case errors.Is(err, reservationdomain.ErrInsufficientInventory):
		writeJSON(w, http.StatusConflict, GenericErrorResponse{Error: "insufficient_inventory"})
	case errors.Is(err, reservationdomain.ErrNotHeld):
		writeJSON(w, http.StatusForbidden, GenericErrorResponse{Error: "not_held"})
	case errors.Is(err, catalogdomain.ErrRangeNotFound):
		writeJSON(w, http.StatusNotFound, GenericErrorResponse{Error: "range_not_found"})
	case errors.Is(err, catalogdomain.ErrNumberPermanentlyHeld):
		writeJSON(w, http.StatusConflict, GenericErrorResponse{Error: "number_permanently_held"})
	case errors.Is(err, pricingdomain.ErrNoDefaultPrice):
		writeJSON(w, http.StatusUnprocessableEntity, GenericErrorResponse{Error: "pricing_unresolved"})
	case errors.Is(err, pricingdomain.ErrRuleNotFound):
		writeJSON(w, http.StatusNotFound, GenericErrorResponse{Error: "price_rule_not_found"})
	case errors.Is(err, identitydomain.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, GenericErrorResponse{Error: "user_not_found"})
	case errors.Is(err, identitydomain.ErrNotAdmin):
		writeJSON(w, http.StatusForbidden, GenericErrorResponse{Error: "admin_required"})
	default:
		logger.Error("internal error serving request", "error", err)
		writeJSON(w, http.StatusInternalServerError, GenericErrorResponse{Error: "internal_error"})
	}
}
