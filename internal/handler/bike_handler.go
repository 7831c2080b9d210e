package handler

import (
	"net/http"

	"github.com/lhlamlehoang/BigBikeBlitz/internal/model"
	"github.com/lhlamlehoang/BigBikeBlitz/internal/service"
)

type BikeHandler struct {
	catalog *service.CatalogService
}

func NewBikeHandler(catalog *service.CatalogService) *BikeHandler {
	return &BikeHandler{catalog: catalog}
}

func (h *BikeHandler) List(w http.ResponseWriter, r *http.Request) {
	bikes, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, bikes, nil)
}

func (h *BikeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	bike, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, bike, nil)
}

func (h *BikeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload model.Bike
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	bike, err := h.catalog.Create(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, bike, nil)
}

func (h *BikeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var payload model.Bike
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	bike, err := h.catalog.Update(r.Context(), id, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, bike, nil)
}

func (h *BikeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.catalog.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
