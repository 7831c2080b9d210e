package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/google"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "client error", err: apierror.BadRequest("Username is required", "username"), status: http.StatusBadRequest, code: "BAD_REQUEST"},
		{name: "wrapped sentinel", err: fmt.Errorf("load user: %w", model.ErrUserNotFound), status: http.StatusNotFound, code: "NOT_FOUND"},
		{name: "credentials", err: model.ErrInvalidCredentials, status: http.StatusUnauthorized, code: "INVALID_CREDENTIALS"},
		{name: "google not configured wins over invalid token", err: fmt.Errorf("%w: %w", model.ErrExternalTokenInvalid, google.ErrNotConfigured), status: http.StatusBadRequest, code: "GOOGLE_NOT_CONFIGURED"},
		{name: "mail failure", err: fmt.Errorf("%w: dial tcp", model.ErrMailDelivery), status: http.StatusBadGateway, code: "MAIL_DELIVERY_FAILED"},
		{name: "unknown", err: fmt.Errorf("boom"), status: http.StatusInternalServerError, code: "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)

			assert.Equal(t, tc.status, rec.Code)

			var body model.APIResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Run("malformed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
		var dst model.LoginRequest
		err := decodeJSON(httptest.NewRecorder(), req, &dst)

		var apiErr *apierror.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	})

	t.Run("empty body is optional", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		var dst model.PlaceOrderRequest
		require.NoError(t, decodeOptionalJSON(httptest.NewRecorder(), req, &dst))
		require.Error(t, decodeJSON(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", http.NoBody), &dst))
	})

	t.Run("too large", func(t *testing.T) {
		payload := `{"username":"` + strings.Repeat("a", maxJSONBody) + `"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
		rec := httptest.NewRecorder()

		var dst model.LoginRequest
		err := decodeJSON(rec, req, &dst)
		require.Error(t, err)

		writeError(rec, err)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}
