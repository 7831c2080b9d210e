package handler

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/google"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/storage"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

const maxJSONBody = 1 << 20

// writeJSON writes v as a bare JSON body. The auth endpoints answer this way.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	writeJSON(w, status, model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order; wrapped errors match their first entry.
var errorMappings = []errorMapping{
	{model.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password"},
	{model.ErrEmailNotVerified, http.StatusUnauthorized, "EMAIL_NOT_VERIFIED", "Please verify your email before logging in"},
	{model.ErrAccountDisabled, http.StatusUnauthorized, "ACCOUNT_DISABLED", "Account is disabled"},
	{model.ErrInvalidToken, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token"},
	{model.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required"},
	{model.ErrForbidden, http.StatusForbidden, "FORBIDDEN", "Access denied"},
	{google.ErrNotConfigured, http.StatusBadRequest, "GOOGLE_NOT_CONFIGURED", "google sign-in is not configured"},
	{model.ErrExternalTokenInvalid, http.StatusBadRequest, "INVALID_GOOGLE_TOKEN", "Invalid Google credential"},
	{model.ErrDuplicateUser, http.StatusBadRequest, "ALREADY_EXISTS", "Username or email already exists"},
	{model.ErrMailDelivery, http.StatusBadGateway, "MAIL_DELIVERY_FAILED", "Could not send email, please try again later"},
	{model.ErrCartEmpty, http.StatusBadRequest, "CART_EMPTY", "Cart is empty"},
	{model.ErrUserNotFound, http.StatusNotFound, "NOT_FOUND", "User not found"},
	{model.ErrBikeNotFound, http.StatusNotFound, "NOT_FOUND", "Bike not found"},
	{model.ErrOrderNotFound, http.StatusNotFound, "NOT_FOUND", "Order not found"},
	{model.ErrTokenNotFound, http.StatusBadRequest, "INVALID_TOKEN", "Invalid token"},
	{model.ErrTokenExpired, http.StatusBadRequest, "INVALID_TOKEN", "Token has expired"},
	{model.ErrInvalidInput, http.StatusBadRequest, "BAD_REQUEST", "Invalid input"},
	{storage.ErrExists, http.StatusConflict, "ALREADY_EXISTS", "File already exists"},
	{fs.ErrNotExist, http.StatusNotFound, "NOT_FOUND", "File not found"},
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := model.APIResponse{
		Success: false,
		Error:   "Unexpected server error",
		Code:    "INTERNAL_ERROR",
	}

	var apiErr *apierror.APIError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Error = apiErr.Message
		body.Details = apiErr.Details
	case errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
		body.Code = "PAYLOAD_TOO_LARGE"
		body.Error = "Request body is too large"
	default:
		matched := false
		for _, m := range errorMappings {
			if errors.Is(err, m.target) {
				status, body.Code, body.Error = m.status, m.code, m.message
				matched = true
				break
			}
		}
		if !matched {
			slog.Error("unhandled error in writeError", "error", err)
		}
	}

	writeJSON(w, status, body)
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, false)
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeBody(w, r, dst, true)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case optional && errors.Is(err, io.EOF):
			return nil
		}
		return apierror.BadRequest("invalid JSON body", "")
	}
	return nil
}
