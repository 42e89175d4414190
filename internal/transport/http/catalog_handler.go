package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	catalogapp "github.com/argsms/rangepool/internal/catalog/app"
)

// CatalogHandler manages range and number inventory. Mutations are admin
// only; reads are open to holders browsing the catalog.
type CatalogHandler struct {
	catalog  *catalogapp.CatalogService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewCatalogHandler(catalog *catalogapp.CatalogService, validate *validator.Validate, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog:  catalog,
		validate: validate,
		logger:   logger.With("handler", "catalog"),
	}
}

// RegisterAdminRoutes registers catalog mutation routes (admin only).
func (h *CatalogHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/catalog/ranges", h.handleUpsertRange)
	r.Delete("/catalog/ranges/{rangeID}", h.handleDeleteRange)
	r.Post("/catalog/numbers", h.handleUpsertNumber)
}

// RegisterRoutes registers read-only catalog routes.
func (h *CatalogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/catalog/ranges/{rangeID}", h.handleGetRange)
	r.Get("/catalog/ranges/{rangeID}/available", h.handleListAvailable)
}

func (h *CatalogHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
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

func (h *CatalogHandler) handleUpsertRange(w http.ResponseWriter, r *http.Request) {
	var req UpsertRangeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	rng, err := h.catalog.UpsertRange(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, RangeResponse{ID: rng.ID, Name: rng.Name})
}

func (h *CatalogHandler) handleDeleteRange(w http.ResponseWriter, r *http.Request) {
	rangeID := chi.URLParam(r, "rangeID")
	if err := h.catalog.DeleteRange(r.Context(), rangeID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) handleUpsertNumber(w http.ResponseWriter, r *http.Request) {
	var req UpsertNumberRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	num, err := h.catalog.UpsertNumber(r.Context(), req.Number, req.RangeID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, num)
}

func (h *CatalogHandler) handleGetRange(w http.ResponseWriter, r *http.Request) {
	rng, err := h.catalog.GetRange(r.Context(), chi.URLParam(r, "rangeID"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, RangeResponse{ID: rng.ID, Name: rng.Name})
}

func (h *CatalogHandler) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	numbers, err := h.catalog.ListAvailable(r.Context(), chi.URLParam(r, "rangeID"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, numbers)
}
