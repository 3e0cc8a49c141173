package attendance

import (
	"time"

	"github.com/google/uuid"
)

// MarkRequest records that a patron attended a class. A nil Points means the policy default.
type MarkRequest struct {
	EventID       uuid.UUID
	PatronBarcode string
	ClassName     string
	ClassDate     time.Time
	Points        *int
}

type markAttendanceRequest struct {
	PatronBarcode string `json:"patron_barcode" validate:"required"`
	ClassName     string `json:"class_name" validate:"required,max=200"`
	ClassDate     string `json:"class_date" validate:"required,datetime=2006-01-02"`
	Points        *int   `json:"points" validate:"omitempty,min=0"`
}
