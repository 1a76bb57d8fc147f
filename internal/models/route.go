package models

import (
	"time"

	"github.com/google/uuid"
)

type RouteStatus string

const (
	RouteStatusPending   RouteStatus = "pending"
	RouteStatusInTransit RouteStatus = "in_transit"
	RouteStatusDelivered RouteStatus = "delivered"
	RouteStatusCancelled RouteStatus = "cancelled"
	RouteStatusExpired   RouteStatus = "expired"
)

// Допустимые переходы. Всё, чего нет в таблице, запрещено; в pending не возвращаемся никогда.
var routeTransitions = map[RouteStatus][]RouteStatus{
	RouteStatusPending:   {RouteStatusInTransit, RouteStatusCancelled, RouteStatusExpired},
	RouteStatusInTransit: {RouteStatusDelivered},
}

func (s RouteStatus) Valid() bool {
	switch s {
	case RouteStatusPending, RouteStatusInTransit, RouteStatusDelivered, RouteStatusCancelled, RouteStatusExpired:
		return true
	}
	return false
}

func (s RouteStatus) IsTerminal() bool {
	return s.Valid() && len(routeTransitions[s]) == 0
}

func (s RouteStatus) CanTransitionTo(next RouteStatus) bool {
	for _, to := range routeTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

type Place struct {
	City    string  `json:"city"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

func (p Place) Point() Point {
	return Point{Lat: p.Lat, Lng: p.Lng}
}

type Route struct {
	ID          uuid.UUID  `json:"id"`
	CompanyID   uuid.UUID  `json:"company_id"`
	CarrierID   *uuid.UUID `json:"carrier_id,omitempty"`
	Origin      Place      `json:"origin"`
	Destination Place      `json:"destination"`

	CargoType string  `json:"cargo_type"`
	Weight    float64 `json:"weight"`
	Volume    float64 `json:"volume"`
	Price     float64 `json:"price"`

	PickupDate   time.Time `json:"pickup_date"`
	DeliveryDate time.Time `json:"delivery_date"`
	Description  string    `json:"description,omitempty"`

	Status    RouteStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// IsCarrier сообщает, назначен ли userID перевозчиком маршрута.
func (r *Route) IsCarrier(userID uuid.UUID) bool {
	return r.CarrierID != nil && *r.CarrierID == userID
}

func (r *Route) IsOwner(userID uuid.UUID) bool {
	return r.CompanyID == userID
}

type RouteCreateInput struct {
	Origin       Place     `json:"origin"`
	Destination  Place     `json:"destination"`
	CargoType    string    `json:"cargo_type"`
	Weight       float64   `json:"weight"`
	Volume       float64   `json:"volume"`
	Price        float64   `json:"price"`
	PickupDate   time.Time `json:"pickup_date"`
	DeliveryDate time.Time `json:"delivery_date"`
	Description  string    `json:"description"`
}

type RouteFilter struct {
	CompanyID *uuid.UUID
	Statuses  []RouteStatus
	// City ищется без учёта регистра и в пункте отправления, и в пункте назначения.
	City   string
	Limit  int
	Offset int
}
