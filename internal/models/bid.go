package models

import (
	"time"

	"github.com/google/uuid"
)

type Bid struct {
	ID                uuid.UUID `json:"id"`
	RouteID           uuid.UUID `json:"route_id"`
	CarrierID         uuid.UUID `json:"carrier_id"`
	ProposedPrice     float64   `json:"proposed_price"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
	Message           string    `json:"message,omitempty"`
	IsAccepted        bool      `json:"is_accepted"`
	CreatedAt         time.Time `json:"created_at"`
}

type BidCreateInput struct {
	ProposedPrice     float64   `json:"proposed_price"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
	Message           string    `json:"message"`
}
