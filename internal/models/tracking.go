package models

import (
	"time"

	"github.com/google/uuid"
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Tracking — состояние движения по маршруту, одна запись на маршрут.
// CurrentLat/CurrentLng могут быть пустыми: тогда позиция берётся из пункта отправления.
type Tracking struct {
	RouteID         uuid.UUID `json:"route_id"`
	CurrentLocation string    `json:"current_location"`
	CurrentLat      *float64  `json:"current_lat,omitempty"`
	CurrentLng      *float64  `json:"current_lng,omitempty"`
	ProgressPercent int       `json:"progress_percent"`
	LastUpdate      time.Time `json:"last_update"`
}

func (t *Tracking) HasCoords() bool {
	return t.CurrentLat != nil && t.CurrentLng != nil
}

func (t *Tracking) SetCoords(p Point) {
	lat, lng := p.Lat, p.Lng
	t.CurrentLat = &lat
	t.CurrentLng = &lng
}

// TrackingView отдаём наружу для карты.
type TrackingView struct {
	RouteID         uuid.UUID   `json:"route_id"`
	Origin          Point       `json:"origin"`
	Destination     Point       `json:"destination"`
	Current         Point       `json:"current"`
	ProgressPercent int         `json:"progress_percent"`
	CurrentLocation string      `json:"current_location"`
	Status          RouteStatus `json:"status"`
	LastUpdate      time.Time   `json:"last_update"`
}
