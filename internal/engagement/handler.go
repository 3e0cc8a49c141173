// internal/engagement/handler.go
package engagement

import (
	"net/http"

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

type recordActivityRequest struct {
	PatronBarcode string               `json:"patron_barcode" validate:"required"`
	Year          int                  `json:"year" validate:"required"`
	Month         int                  `json:"month" validate:"required,min=1,max=12"`
	Delta         domain.ActivityDelta `json:"delta"`
}

// HandleRecordActivity applies a staff adjustment to the ledger.
func (h *Handler) HandleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req recordActivityRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	eventID, err := httpx.IdempotencyKey(r)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}

	result, err := h.service.RecordActivity(r.Context(), RecordRequest{
		EventID:       eventID,
		PatronBarcode: req.PatronBarcode,
		Year:          req.Year,
		Month:         req.Month,
		Delta:         req.Delta,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

// HandleGetMonthlyActivity returns one ledger row.
func (h *Handler) HandleGetMonthlyActivity(w http.ResponseWriter, r *http.Request) {
	barcode := chi.URLParam(r, "barcode")
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

	row, err := h.service.GetMonthlyActivity(r.Context(), barcode, year, month)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, row)
}
