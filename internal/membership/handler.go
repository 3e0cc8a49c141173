// internal/membership/handler.go
package membership

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"libraengage/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleRegisterPatron(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	patron, err := h.service.RegisterPatron(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, patron)
}

func (h *Handler) HandleGetPatron(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")

	patron, err := h.service.GetPatron(r.Context(), barcode)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, patron)
}

func (h *Handler) HandleSetPhoto(w http.ResponseWriter, r *http.Request) {
	var req PhotoRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	patron, err := h.service.SetPhoto(r.Context(), chi.URLParam(r, "barcode"), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, patron)
}

func (h *Handler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	var req SuspendRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	patron, err := h.service.Suspend(r.Context(), chi.URLParam(r, "barcode"), req.Suspended)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, patron)
}
