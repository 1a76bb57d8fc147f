package freight_api

import (
	"log/slog"
	"net/http"

	"github.com/BearBump/FreightBox/internal/services/routes"
	"github.com/pkg/errors"
)

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, routes.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, routes.ErrNotCarrier),
		errors.Is(err, routes.ErrNotCompany),
		errors.Is(err, routes.ErrNoAccess):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, routes.ErrNotOwner),
		errors.Is(err, routes.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, routes.ErrRouteNotBiddable),
		errors.Is(err, routes.ErrDuplicateBid),
		errors.Is(err, routes.ErrRouteNotAvailable),
		errors.Is(err, routes.ErrRouteNotInTransit):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, routes.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err)
	default:
		slog.Error("request failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}
