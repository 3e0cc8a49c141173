package attendance

import (
	"net/http"
	"time"

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

func (h *Handler) HandleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	var req markAttendanceRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	classDate, err := time.Parse(time.DateOnly, req.ClassDate)
	if err != nil {
		httpx.WriteError(w, domain.InvalidArgument("class_date must be YYYY-MM-DD"))
		return
	}
	eventID, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	rec, err := h.service.MarkAttendance(r.Context(), MarkRequest{
		EventID:       eventID,
		PatronBarcode: req.PatronBarcode,
		ClassName:     req.ClassName,
		ClassDate:     classDate,
		Points:        req.Points,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rec)
}

func (h *Handler) HandleListAttendance(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")

	records, err := h.service.ListAttendance(r.Context(), barcode)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, records)
}
