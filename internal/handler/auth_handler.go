package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/google"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/service"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

// AuthHandler serves the credential endpoints. Successful responses are flat
// JSON objects rather than the data envelope.
type AuthHandler struct {
	auth     *service.AuthService
	accounts *service.AccountService
}

func NewAuthHandler(auth *service.AuthService, accounts *service.AccountService) *AuthHandler {
	return &AuthHandler{auth: auth, accounts: accounts}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.auth.Login(r.Context(), payload.Username, payload.Password, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var payload model.GoogleLoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	credential := strings.TrimSpace(payload.Credential)
	if credential == "" {
		writeError(w, apierror.BadRequest("credential is required", "credential"))
		return
	}

	resp, err := h.auth.GoogleLogin(r.Context(), credential, actorFromRequest(r))
	if err != nil {
		writeError(w, googleFailure(err))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.accounts.Register(r.Context(), payload, actorFromRequest(r))
	if errors.Is(err, model.ErrMailDelivery) {
		writeError(w, apierror.New("MAIL_DELIVERY_FAILED", "Could not send verification email, please register again", "", http.StatusBadRequest))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var payload model.VerifyEmailRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.accounts.VerifyEmail(r.Context(), payload.Token, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var payload model.PasswordResetRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.accounts.RequestPasswordReset(r.Context(), payload.Email, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var payload model.PasswordResetConfirmRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.accounts.ConfirmPasswordReset(r.Context(), payload.Token, payload.Password, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// googleFailure folds every Google sign-in failure into a 400. Known causes
// keep their own code and message.
func googleFailure(err error) error {
	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.HTTPStatus == http.StatusBadRequest:
		return err
	case errors.Is(err, google.ErrNotConfigured), errors.Is(err, model.ErrExternalTokenInvalid):
		return err
	case errors.Is(err, model.ErrAccountDisabled):
		return apierror.New("ACCOUNT_DISABLED", "Account is disabled", "", http.StatusBadRequest)
	default:
		return apierror.New("GOOGLE_LOGIN_FAILED", "Google sign-in failed", "", http.StatusBadRequest)
	}
}
