package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	billingapp "github.com/argsms/rangepool/internal/billing/app"
	identityapp "github.com/argsms/rangepool/internal/identity/app"
	reservationapp "github.com/argsms/rangepool/internal/reservation/app"
)

// AdminHandler exposes operations that require an admin capability. Every
// route here must be mounted behind the AdminAuth middleware.
type AdminHandler struct {
	engine   *reservationapp.Engine
	identity *identityapp.IdentityService
	ledger   *billingapp.LedgerService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewAdminHandler(
	engine *reservationapp.Engine,
	identity *identityapp.IdentityService,
	ledger *billingapp.LedgerService,
	validate *validator.Validate,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		engine:   engine,
		identity: identity,
		ledger:   ledger,
		validate: validate,
		logger:   logger.With("handler", "admin"),
	}
}

// RegisterRoutes registers admin routes with the given router.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Post("/admin/release-all", h.handleReleaseAll)
	r.Post("/admin/balance", h.handleAdjustBalance)
	r.Post("/admin/set-admin", h.handleSetAdmin)
	r.Get("/admin/stats", h.handleStats)
}

func (h *AdminHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, GenericErrorResponse{Error: "invalid_payload", Details: err.Error()})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, GenericErrorResponse{Error: "validation_failed", Details: err.Error()})
		return false
	}
	return true
}

func (h *AdminHandler) handleReleaseAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cap, ok := capabilityFromContext(ctx)
	if !ok {
		writeJSON(w, http.StatusForbidden, GenericErrorResponse{Error: "admin_required"})
		return
	}

	var req ReleaseAllRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	released, err := h.engine.ReleaseAll(ctx, cap, req.RangeID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.logger.InfoContext(ctx, "bulk release executed",
		"actor_id", cap.ActorID(), "released", released)
	writeJSON(w, http.StatusOK, ReleaseAllResponse{Released: released})
}

func (h *AdminHandler) handleAdjustBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cap, ok := capabilityFromContext(ctx)
	if !ok {
		writeJSON(w, http.StatusForbidden, GenericErrorResponse{Error: "admin_required"})
		return
	}

	var req AdjustBalanceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.identity.GetOrCreate(ctx, req.ChatID, "")
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	tx, err := h.ledger.AdminAdjust(ctx, cap, user.ID, req.Amount, req.Description)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, TransactionResponse{
		ID:          tx.ID.String(),
		Amount:      tx.Amount,
		Category:    string(tx.Category),
		Description: tx.Description,
		CreatedAt:   tx.CreatedAt,
	})
}

func (h *AdminHandler) handleSetAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cap, ok := capabilityFromContext(ctx)
	if !ok {
		writeJSON(w, http.StatusForbidden, GenericErrorResponse{Error: "admin_required"})
		return
	}

	var req SetAdminRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.identity.GetOrCreate(ctx, req.ChatID, "")
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	if req.Admin {
		err = h.identity.PromoteAdmin(ctx, cap, user.ID)
	} else {
		err = h.identity.DemoteAdmin(ctx, cap, user.ID)
	}
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cap, ok := capabilityFromContext(ctx)
	if !ok {
		writeJSON(w, http.StatusForbidden, GenericErrorResponse{Error: "admin_required"})
		return
	}

	stats, err := h.identity.Stats(ctx, cap)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		TotalUsers:    stats.TotalUsers,
		AdminCount:    stats.AdminCount,
		RecentActions: stats.RecentActions,
	})
}
