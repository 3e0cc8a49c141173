// internal/catalog/handler.go
package catalog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"libraengage/internal/domain"
	"libraengage/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	item, err := h.service.AddItem(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) HandleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItem(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) HandleListItems(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter
	if v := r.URL.Query().Get("checked_out"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httpx.WriteError(w, domain.InvalidArgument("checked_out must be a boolean"))
			return
		}
		filter.CheckedOutOnly = b
	}

	items, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}
