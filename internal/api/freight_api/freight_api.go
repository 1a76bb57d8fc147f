package freight_api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/BearBump/FreightBox/internal/models"
	"github.com/BearBump/FreightBox/internal/services/routes"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type FreightAPI struct {
	svc *routes.Service
}

func New(svc *routes.Service) *FreightAPI {
	return &FreightAPI{svc: svc}
}

// Mount вешает /v1 на роутер. Все ручки требуют токен.
func (a *FreightAPI) Mount(r chi.Router, parser *TokenParser) {
	r.Route("/v1", func(r chi.Router) {
		r.Use(Auth(parser))

		r.Get("/board", a.board)
		r.Get("/routes", a.listRoutes)
		r.Post("/routes", a.createRoute)
		r.Get("/routes/{id}", a.getRoute)
		r.Post("/routes/{id}/cancel", a.cancelRoute)
		r.Post("/routes/{id}/bids", a.submitBid)
		r.Post("/routes/{id}/complete", a.completeRoute)
		r.Get("/routes/{id}/tracking", a.viewTracking)
		r.Post("/routes/{id}/tracking", a.updateTracking)
		r.Post("/bids/{id}/accept", a.acceptBid)
	})
}

func (a *FreightAPI) board(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := a.svc.Board(r.Context(), limit)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": out})
}

func (a *FreightAPI) listRoutes(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	f := models.RouteFilter{City: r.URL.Query().Get("city")}
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, st := range strings.Split(raw, ",") {
			f.Statuses = append(f.Statuses, models.RouteStatus(strings.TrimSpace(st)))
		}
	}
	var err error
	if f.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if f.Offset, err = queryInt(r, "offset"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out, err := a.svc.ListRoutes(r.Context(), actor, f)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": out})
}

func (a *FreightAPI) createRoute(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())

	var in models.RouteCreateInput
	if !decodeBody(w, r, &in) {
		return
	}
	out, err := a.svc.CreateRoute(r.Context(), actor, in)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *FreightAPI) getRoute(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := a.svc.GetRouteDetail(r.Context(), actor, id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *FreightAPI) cancelRoute(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := a.svc.CancelRoute(r.Context(), actor, id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *FreightAPI) submitBid(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in models.BidCreateInput
	if !decodeBody(w, r, &in) {
		return
	}
	out, err := a.svc.SubmitBid(r.Context(), actor, id, in)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *FreightAPI) acceptBid(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := a.svc.AcceptBid(r.Context(), actor, id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *FreightAPI) completeRoute(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := a.svc.CompleteRoute(r.Context(), actor, id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *FreightAPI) viewTracking(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := a.svc.ViewTracking(r.Context(), actor, id)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type updateTrackingRequest struct {
	ProgressPercent *int   `json:"progress_percent"`
	CurrentLocation string `json:"current_location"`
}

func (a *FreightAPI) updateTracking(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFrom(r.Context())
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateTrackingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProgressPercent == nil {
		writeError(w, http.StatusBadRequest, errors.New("progress_percent is required"))
		return
	}
	out, err := a.svc.UpdateTracking(r.Context(), actor, id, *req.ProgressPercent, req.CurrentLocation)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Errorf("invalid %s", name)
	}
	return v, nil
}

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "invalid body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
