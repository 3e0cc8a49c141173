package ranking

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

func (h *Handler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	year, err := httpx.PathInt(r, "year")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	month, err := httpx.PathInt(r, "month")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 0)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	board, err := h.service.GetMonthlyLeaderboard(r.Context(), year, month, limit)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, board)
}

// HandleRecompute forces a persisting recompute regardless of the read throttle.
func (h *Handler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	year, err := httpx.PathInt(r, "year")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	month, err := httpx.PathInt(r, "month")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	board, err := h.service.RecomputeMonth(r.Context(), year, month, 0)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, board)
}
