package models

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Role string

const (
	RoleCompany Role = "company"
	RoleCarrier Role = "carrier"
)

var ErrUnknownRole = errors.New("unknown role")

// Actor — пользователь, от имени которого выполняется операция.
// Набор закрыт: Company и Carrier. Проверки прав живут здесь, а не в хендлерах.
type Actor interface {
	ID() uuid.UUID
	Role() Role
	CanCreateRoute() bool
	CanBid() bool
	CanAccept() bool
	CanComplete(r *Route) bool
	IsParticipant(r *Route) bool
}

type Company struct {
	UserID uuid.UUID
}

func (c Company) ID() uuid.UUID          { return c.UserID }
func (c Company) Role() Role             { return RoleCompany }
func (c Company) CanCreateRoute() bool   { return true }
func (c Company) CanBid() bool           { return false }
func (c Company) CanAccept() bool        { return true }
func (c Company) CanComplete(r *Route) bool {
	return r != nil && r.IsOwner(c.UserID)
}
func (c Company) IsParticipant(r *Route) bool {
	return r != nil && r.IsOwner(c.UserID)
}

type Carrier struct {
	UserID uuid.UUID
}

func (c Carrier) ID() uuid.UUID        { return c.UserID }
func (c Carrier) Role() Role           { return RoleCarrier }
func (c Carrier) CanCreateRoute() bool { return false }
func (c Carrier) CanBid() bool         { return true }
func (c Carrier) CanAccept() bool      { return false }
func (c Carrier) CanComplete(r *Route) bool {
	return r != nil && r.IsCarrier(c.UserID)
}
func (c Carrier) IsParticipant(r *Route) bool {
	return r != nil && r.IsCarrier(c.UserID)
}

func NewActor(id uuid.UUID, role string) (Actor, error) {
	if id == uuid.Nil {
		return nil, errors.New("actor id is required")
	}
	switch Role(role) {
	case RoleCompany:
		return Company{UserID: id}, nil
	case RoleCarrier:
		return Carrier{UserID: id}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownRole, "role %q", role)
	}
}
