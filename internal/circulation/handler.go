// internal/circulation/handler.go
package circulation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"libraengage/internal/auth"
	"libraengage/internal/domain"
	"libraengage/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// selfOnly rejects patrons acting on someone else's account.
func selfOnly(r *http.Request, patronBarcode string) error {
	actor, ok := auth.ActorFrom(r.Context())
	if ok && actor.Role == domain.RolePatron && actor.ID != patronBarcode {
		return domain.Forbidden("patrons may only act on their own account")
	}
	return nil
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := selfOnly(r, req.PatronBarcode); err != nil {
		httpx.WriteError(w, err)
		return
	}
	eventID, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	req.EventID = eventID

	result, err := h.service.Checkout(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) HandleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	eventID, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	req.EventID = eventID

	result, err := h.service.CheckIn(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	var req RenewRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	if err := selfOnly(r, req.PatronBarcode); err != nil {
		httpx.WriteError(w, err)
		return
	}
	eventID, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	req.EventID = eventID

	result, err := h.service.Renew(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleListOverdue(w http.ResponseWriter, r *http.Request) {
	minDays, err := httpx.QueryInt(r, "min_days", 0)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	items, err := h.service.ListOverdue(r.Context(), minDays)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *Handler) HandleGetItemHistory(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.GetItemHistory(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, item)
}
