package responses

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
	"github.com/clubemecanico/courses-backend/pkg/logger"
	"github.com/clubemecanico/courses-backend/pkg/types"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) types.ErrorEnvelope {
	t.Helper()
	var env types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestWriteSuccessWrapsDataWithStatusOK(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]any{"order_number": "PED-20260301120000-ABC123"})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var env struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, "PED-20260301120000-ABC123", env.Data["order_number"])
}

func TestWriteSuccessStatusUsesGivenStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccessStatus(rec, http.StatusCreated, map[string]bool{"received": true})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.JSONEq(t, `{"data":{"received":true}}`, rec.Body.String())
}

func TestWriteErrorMapsCodesToStatus(t *testing.T) {
	cases := []struct {
		code   pkgerrors.Code
		status int
	}{
		{pkgerrors.CodeValidation, http.StatusBadRequest},
		{pkgerrors.CodeUnauthorized, http.StatusUnauthorized},
		{pkgerrors.CodeForbidden, http.StatusForbidden},
		{pkgerrors.CodeNotFound, http.StatusNotFound},
		{pkgerrors.CodeConflict, http.StatusConflict},
		{pkgerrors.CodeStateConflict, http.StatusUnprocessableEntity},
		{pkgerrors.CodeInternal, http.StatusInternalServerError},
		{pkgerrors.CodeDependency, http.StatusServiceUnavailable},
		{pkgerrors.CodeIdempotency, http.StatusConflict},
		{pkgerrors.CodeRateLimit, http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(context.Background(), nil, rec, pkgerrors.New(tc.code, "x"))

		assert.Equal(t, tc.status, rec.Code, string(tc.code))
		assert.Equal(t, string(tc.code), decodeError(t, rec).Error.Code)
	}
}

func TestWriteErrorKeepsClientMessages(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty"))

	env := decodeError(t, rec)
	require.Equal(t, "cart is empty", env.Error.Message)
}

func TestWriteErrorHidesInternalMessages(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, pkgerrors.New(pkgerrors.CodeInternal, "select orders: connection refused"))

	env := decodeError(t, rec)
	require.Equal(t, "internal server error", env.Error.Message)
}

func TestWriteErrorDependencyUsesPublicMessageAndDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeDependency, "mercadopago create_checkout: status 502").
		WithDetails(map[string]any{"order_id": 9})
	WriteError(context.Background(), nil, rec, err)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := decodeError(t, rec)
	require.Equal(t, "payment provider unavailable", env.Error.Message)
	require.Equal(t, map[string]any{"order_id": float64(9)}, env.Error.Details)
}

func TestWriteErrorDropsDetailsWhenNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	err := pkgerrors.New(pkgerrors.CodeNotFound, "order not found").WithDetails(map[string]any{"user_id": 3})
	WriteError(context.Background(), nil, rec, err)

	env := decodeError(t, rec)
	require.Equal(t, "order not found", env.Error.Message)
	require.Nil(t, env.Error.Details)
}

func TestWriteErrorWrapsUntypedErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, fmt.Errorf("load cart: %w", errors.New("boom")))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, string(pkgerrors.CodeInternal), decodeError(t, rec).Error.Code)

	rec = httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWriteErrorLogsTypedCodeAndStep(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: buf})

	err := pkgerrors.Wrap(pkgerrors.CodeConflict, errors.New("duplicate"), "course already in cart").
		WithDetails(map[string]any{"step": "cart.add"})
	WriteError(context.Background(), logg, httptest.NewRecorder(), err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "request.rejected", entry["message"])
	require.Equal(t, "warn", entry["level"])
	require.Equal(t, string(pkgerrors.CodeConflict), entry["error_code"])
	require.Equal(t, "cart.add", entry["step"])
	require.NotContains(t, entry, "stack")
}

func TestWriteErrorLogsServerFailuresWithStack(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: buf})

	WriteError(context.Background(), logg, httptest.NewRecorder(), errors.New("select orders: connection refused"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "request.error", entry["message"])
	require.Equal(t, "error", entry["level"])
	require.Equal(t, string(pkgerrors.CodeInternal), entry["error_code"])
	require.Contains(t, entry, "stack")
}

func TestWriteErrorAsksClientsToBackOffWhenGatewayIsDown(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(context.Background(), nil, rec, pkgerrors.New(pkgerrors.CodeDependency, "mercadopago unreachable"))
	require.Equal(t, "5", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	rec.Header().Set("Retry-After", "60")
	WriteError(context.Background(), nil, rec, pkgerrors.New(pkgerrors.CodeRateLimit, "slow down"))
	require.Equal(t, "60", rec.Header().Get("Retry-After"))
	require.Equal(t, "slow down", decodeError(t, rec).Error.Message)
}
