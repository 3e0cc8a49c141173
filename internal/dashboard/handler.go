package dashboard

import (
	"net/http"

	"libraengage/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	days, err := httpx.QueryInt(r, "overdue_days", 0)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	d, err := h.service.GetDashboard(r.Context(), days)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}
