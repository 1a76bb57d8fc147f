package messages

import (
	"time"

	"github.com/google/uuid"
)

// ProgressReported: отчёт перевозчика о прогрессе, приходит из route.progress
// (телематика, мобильное приложение водителя).
type ProgressReported struct {
	RouteID         uuid.UUID `json:"route_id"`
	CarrierID       uuid.UUID `json:"carrier_id"`
	ProgressPercent int       `json:"progress_percent"`
	Location        string    `json:"location,omitempty"`
	ReportedAt      time.Time `json:"reported_at"`
}
