package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	pricingapp "github.com/argsms/rangepool/internal/pricing/app"
	pricingdomain "github.com/argsms/rangepool/internal/pricing/domain"
)

// PricingHandler manages pricing rules. Mutating routes stay behind AdminAuth.
type PricingHandler struct {
	resolver *pricingapp.Resolver
	validate *validator.Validate
	logger   *slog.Logger
}

func NewPricingHandler(resolver *pricingapp.Resolver, validate *validator.Validate, logger *slog.Logger) *PricingHandler {
	return &PricingHandler{
		resolver: resolver,
		validate: validate,
		logger:   logger.With("handler", "pricing"),
	}
}

// RegisterAdminRoutes registers rule mutation routes (admin only).
func (h *PricingHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/pricing/rules", h.handleCreateRule)
	r.Delete("/pricing/rules/{ruleID}", h.handleDeleteRule)
}

// RegisterRoutes registers the read-only rule listing.
func (h *PricingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/pricing/rules", h.handleListRules)
}

func ruleToResponse(rule pricingdomain.PriceRule) PriceRuleResponse {
	return PriceRuleResponse{
		ID:        rule.ID.String(),
		Pattern:   rule.Pattern,
		Price:     rule.Price,
		CreatedAt: rule.CreatedAt,
	}
}

func (h *PricingHandler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cap, ok := capabilityFromContext(ctx)
	if !ok {
		writeJSON(w, http.StatusForbidden, GenericErrorResponse{Error: "admin_required"})
		return
	}

	var req PriceRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, GenericErrorResponse{Error: "invalid_payload", Details: err.Error()})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, GenericErrorResponse{Error: "validation_failed", Details: err.Error()})
		return
	}

	rule, err := h.resolver.CreateRule(ctx, cap, req.Pattern, req.Price)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, ruleToResponse(*rule))
}

func (h *PricingHandler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cap, ok := capabilityFromContext(ctx)
	if !ok {
		writeJSON(w, http.StatusForbidden, GenericErrorResponse{Error: "admin_required"})
		return
	}

	ruleID, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, GenericErrorResponse{Error: "invalid_rule_id"})
		return
	}

	if err := h.resolver.DeleteRule(ctx, cap, ruleID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PricingHandler) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.resolver.ListRules(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	resp := make([]PriceRuleResponse, 0, len(rules))
	for _, rule := range rules {
		resp = append(resp, ruleToResponse(rule))
	}
	writeJSON(w, http.StatusOK, resp)
}
