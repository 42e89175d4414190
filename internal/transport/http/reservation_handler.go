package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	billingapp "github.com/argsms/rangepool/internal/billing/app"
	identityapp "github.com/argsms/rangepool/internal/identity/app"
	reservationapp "github.com/argsms/rangepool/internal/reservation/app"
	reservationdomain "github.com/argsms/rangepool/internal/reservation/domain"
)

// ReservationHandler exposes the engine's holder-facing surface.
type ReservationHandler struct {
	engine   *reservationapp.Engine
	identity *identityapp.IdentityService
	ledger   *billingapp.LedgerService
	validate *validator.Validate
	logger   *slog.Logger
}

func NewReservationHandler(
	engine *reservationapp.Engine,
	identity *identityapp.IdentityService,
	ledger *billingapp.LedgerService,
	validate *validator.Validate,
	logger *slog.Logger,
) *ReservationHandler {
	return &ReservationHandler{
		engine:   engine,
		identity: identity,
		ledger:   ledger,
		validate: validate,
		logger:   logger.With("handler", "reservation"),
	}
}

// RegisterRoutes registers reservation routes with the given router.
func (h *ReservationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/reservations/allocate", h.handleAllocate)
	r.Post("/reservations/search-attempt", h.handleSearchAttempt)
	r.Post("/reservations/settle", h.handleSettle)
	r.Get("/reservations/holds", h.handleListHolds)
	r.Get("/ledger/balance", h.handleBalance)
	r.Get("/ledger/history", h.handleHistory)
	r.Post("/ledger/recharge", h.handleRecharge)
}

func (h *ReservationHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
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

func holdToResponse(hold reservationdomain.Hold) HoldResponse {
	return HoldResponse{
		Number:          hold.Number,
		Permanent:       hold.Permanent,
		CreatedAt:       hold.CreatedAt,
		FirstSearchedAt: hold.FirstSearchedAt,
	}
}

func (h *ReservationHandler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AllocateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.identity.GetOrCreate(ctx, req.ChatID, req.Username)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	h.identity.LogAccess(ctx, user.ID, "allocate_"+req.RangeID)

	holds, err := h.engine.Allocate(ctx, user.ID, req.RangeID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	resp := AllocateResponse{RangeID: req.RangeID, Holds: make([]HoldResponse, 0, len(holds))}
	for _, hold := range holds {
		resp.Holds = append(resp.Holds, holdToResponse(hold))
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *ReservationHandler) handleSearchAttempt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SearchAttemptRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.identity.GetOrCreate(ctx, req.ChatID, "")
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	deadline, err := h.engine.RecordSearchAttempt(ctx, user.ID, req.Number)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	resp := SearchAttemptResponse{Number: req.Number}
	if !deadline.IsZero() {
		resp.ExpiresAt = &deadline
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ReservationHandler) handleSettle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SettleRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.identity.GetOrCreate(ctx, req.ChatID, "")
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	if err := h.engine.Settle(ctx, user.ID, req.Number, req.Found); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReservationHandler) chatIDFromQuery(w http.ResponseWriter, r *http.Request) (int64, bool) {
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if err != nil || chatID == 0 {
		writeJSON(w, http.StatusBadRequest, GenericErrorResponse{Error: "invalid_chat_id"})
		return 0, false
	}
	return chatID, true
}

func (h *ReservationHandler) handleListHolds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID, ok := h.chatIDFromQuery(w, r)
	if !ok {
		return
	}
	user, err := h.identity.GetOrCreate(ctx, chatID, "")
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	holds, err := h.engine.Holds(ctx, user.ID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	resp := make([]HoldResponse, 0, len(holds))
	for _, hold := range holds {
		resp = append(resp, holdToResponse(hold))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ReservationHandler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID, ok := h.chatIDFromQuery(w, r)
	if !ok {
		return
	}
	user, err := h.identity.GetOrCreate(ctx, chatID, "")
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	balance, err := h.ledger.Balance(ctx, user.ID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{ChatID: chatID, Balance: balance})
}

func (h *ReservationHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	chatID, ok := h.chatIDFromQuery(w, r)
	if !ok {
		return
	}
	user, err := h.identity.GetOrCreate(ctx, chatID, "")
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	transactions, err := h.ledger.History(ctx, user.ID, limit, offset)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	resp := make([]TransactionResponse, 0, len(transactions))
	for _, tx := range transactions {
		resp = append(resp, TransactionResponse{
			ID:          tx.ID.String(),
			Amount:      tx.Amount,
			Category:    string(tx.Category),
			Description: tx.Description,
			CreatedAt:   tx.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ReservationHandler) handleRecharge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RechargeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := h.identity.GetOrCreate(ctx, req.ChatID, "")
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	tx, err := h.ledger.Recharge(ctx, user.ID, req.Amount, req.Description)
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
