package consistency

import (
	"net/http"

	"libraengage/internal/httpx"
)

type Handler struct {
	auditor *Auditor
}

func NewHandler(auditor *Auditor) *Handler {
	return &Handler{auditor: auditor}
}

// HandleAudit always answers 200; callers read Healthy from the report.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := h.auditor.Run(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}
