package model

import "errors"

var (
	// Authentication errors
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountDisabled      = errors.New("account disabled")
	ErrEmailNotVerified     = errors.New("email not verified")
	ErrInvalidToken         = errors.New("invalid token")
	ErrExternalTokenInvalid = errors.New("external identity token invalid")

	// User related errors
	ErrUserNotFound  = errors.New("user not found")
	ErrDuplicateUser = errors.New("duplicate user")

	// Action token related errors
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")

	// Catalog and checkout errors
	ErrBikeNotFound  = errors.New("bike not found")
	ErrOrderNotFound = errors.New("order not found")
	ErrCartEmpty     = errors.New("cart is empty")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Collaborator errors
	ErrMailDelivery = errors.New("mail delivery failed")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
