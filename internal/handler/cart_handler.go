package handler

import (
	"net/http"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/service"
	"github.com/lhlamlehoang/BigBikeBlitz/pkg/apierror"
)

// CartHandler always acts on the principal's own cart.
type CartHandler struct {
	cart *service.CartService
}

func NewCartHandler(cart *service.CartService) *CartHandler {
	return &CartHandler{cart: cart}
}

func (h *CartHandler) View(w http.ResponseWriter, r *http.Request) {
	principal, err := requirePrincipal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	cart, err := h.cart.View(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, cart, nil)
}

func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	principal, err := requirePrincipal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.AddToCartRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.BikeID <= 0 {
		writeError(w, apierror.BadRequest("bikeId is required", "bikeId"))
		return
	}

	cart, err := h.cart.Add(r.Context(), principal.UserID, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, cart, nil)
}

func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	principal, err := requirePrincipal(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.RemoveFromCartRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	cart, err := h.cart.Remove(r.Context(), principal.UserID, payload.BikeID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, cart, nil)
}
