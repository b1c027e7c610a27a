package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/carepoint-hms/carepoint/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("invoice x: %w", shared.ErrNotFound), http.StatusNotFound},
		{&shared.InsufficientStockError{StockItemID: "i", BatchNumber: "B1"}, http.StatusConflict},
		{shared.ErrAlreadyFinalState, http.StatusConflict},
		{shared.ErrLimitReached, http.StatusPaymentRequired},
		{shared.ErrPermissionDenied, http.StatusForbidden},
		{shared.ErrValidation, http.StatusBadRequest},
		{shared.ErrUnauthenticated, http.StatusUnauthorized},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestInsufficientStockProblemCarriesQuantities(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, &shared.InsufficientStockError{
		StockItemID: "item-1", BatchNumber: "B1",
		Available: decimal.NewFromInt(0), Requested: decimal.NewFromInt(1),
	})
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "item-1", body.Extensions["stockItemId"])
	require.Contains(t, body.Detail, "B1")
}

type paymentBody struct {
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Method string          `json:"method" validate:"required"`
}

func TestBindValidatesDecimals(t *testing.T) {
	v := NewValidator()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"0","method":"cash"}`))
	var dst paymentBody
	err := Bind(req, v, &dst)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "amount")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"40.5","method":"cash"}`))
	require.NoError(t, Bind(req, v, &dst))
	require.True(t, dst.Amount.Equal(decimal.RequireFromString("40.5")))
}
