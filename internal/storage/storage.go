package storage

import (
	"github.com/BearBump/FreightBox/internal/models"
	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict — нарушение уникальности (например, повторная ставка того же перевозчика).
	ErrConflict = errors.New("conflict")
	// ErrStale — статус маршрута уже не тот, на который рассчитывал compare-and-swap.
	ErrStale = errors.New("stale state")
)

// AcceptResult: итог атомарного принятия ставки.
type AcceptResult struct {
	Route    *models.Route
	Bid      *models.Bid
	Tracking *models.Tracking
}
