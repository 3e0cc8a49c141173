package review

import (
	"net/http"

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

func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
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
	actor, _ := auth.ActorFrom(r.Context())

	summary, err := h.service.SubmitSummary(r.Context(), actor, req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, summary)
}

func (h *Handler) HandleStaffSubmit(w http.ResponseWriter, r *http.Request) {
	var req StaffSubmitRequest
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
	actor, _ := auth.ActorFrom(r.Context())

	summary, err := h.service.SubmitStaffSummary(r.Context(), actor, req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, summary)
}

func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	var req ReviewRequest
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
	actor, _ := auth.ActorFrom(r.Context())

	summary, err := h.service.ReviewSummary(r.Context(), actor, id, req)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathUUID(r, "id")
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	summary, err := h.service.GetSummary(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if actor, ok := auth.ActorFrom(r.Context()); ok && actor.Role == domain.RolePatron && actor.ID != summary.PatronBarcode {
		httpx.WriteError(w, domain.Forbidden("patrons may only read their own summaries"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

// HandleList lists summaries by status. Patrons only see their own.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Status:        domain.SummaryStatus(r.URL.Query().Get("status")),
		PatronBarcode: r.URL.Query().Get("patron"),
	}
	if actor, ok := auth.ActorFrom(r.Context()); ok && actor.Role == domain.RolePatron {
		filter.PatronBarcode = actor.ID
	}

	summaries, err := h.service.ListSummaries(r.Context(), filter)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"summaries": summaries, "count": len(summaries)})
}
