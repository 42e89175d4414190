package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalogdomain "github.com/argsms/rangepool/internal/catalog/domain"
	identitydomain "github.com/argsms/rangepool/internal/identity/domain"
	pricingdomain "github.com/argsms/rangepool/internal/pricing/domain"
	reservationdomain "github.com/argsms/rangepool/internal/reservation/domain"
)

func TestWriteDomainError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"InsufficientBalance", reservationdomain.ErrInsufficientBalance, http.StatusPaymentRequired, "insufficient_balance"},
		{"InsufficientInventory", reservationdomain.ErrInsufficientInventory, http.StatusConflict, "insufficient_inventory"},
		{"NotHeld", reservationdomain.ErrNotHeld, http.StatusForbidden, "not_held"},
		{"RangeNotFound", catalogdomain.ErrRangeNotFound, http.StatusNotFound, "range_not_found"},
		{"NumberPermanentlyHeld", catalogdomain.ErrNumberPermanentlyHeld, http.StatusConflict, "number_permanently_held"},
		{"PricingUnresolved", pricingdomain.ErrNoDefaultPrice, http.StatusUnprocessableEntity, "pricing_unresolved"},
		{"NotAdmin", identitydomain.ErrNotAdmin, http.StatusForbidden, "admin_required"},
		{"Unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeDomainError(rec, logger, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			var body GenericErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Error)
		})
	}
}

func TestWriteDomainError_WrappedErrorsStillMap(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()

	wrapped := errors.Join(errors.New("context"), reservationdomain.ErrInsufficientBalance)
	writeDomainError(rec, logger, wrapped)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}
