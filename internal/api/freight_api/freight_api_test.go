package freight_api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BearBump/FreightBox/internal/notify"
	"github.com/BearBump/FreightBox/internal/services/routes"
	"github.com/BearBump/FreightBox/internal/storage/memfreight"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func token(t *testing.T, sub, role string, method jwt.SigningMethod, key any) string {
	t.Helper()
	tok := jwt.NewWithClaims(method, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func bearer(t *testing.T, id uuid.UUID, role string) string {
	return "Bearer " + token(t, id.String(), role, jwt.SigningMethodHS256, []byte(testSecret))
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := memfreight.New()
	svc := routes.New(st, notify.New(st, nil, ""))

	r := chi.NewRouter()
	New(svc).Mount(r, NewTokenParser(testSecret))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, auth string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if s, ok := body.(string); ok {
		rd = bytes.NewReader([]byte(s))
	} else {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func routeBody() map[string]any {
	pickup := time.Now().UTC().Add(24 * time.Hour)
	return map[string]any{
		"origin":        map[string]any{"city": "Kyiv", "country": "UA", "lat": 50.45, "lng": 30.52},
		"destination":   map[string]any{"city": "Lviv", "country": "UA", "lat": 49.84, "lng": 24.03},
		"cargo_type":    "pallets",
		"weight":        1200,
		"volume":        14,
		"price":         5000,
		"pickup_date":   pickup.Format(time.RFC3339),
		"delivery_date": pickup.Add(48 * time.Hour).Format(time.RFC3339),
	}
}

func TestAuth_Rejects(t *testing.T) {
	srv := newServer(t)
	id := uuid.New()

	code, body := do(t, srv, http.MethodGet, "/v1/board", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "unauthorized", body["error"])

	wrongKey := "Bearer " + token(t, id.String(), "company", jwt.SigningMethodHS256, []byte("other"))
	code, _ = do(t, srv, http.MethodGet, "/v1/board", wrongKey, nil)
	require.Equal(t, http.StatusUnauthorized, code)

	none := "Bearer " + token(t, id.String(), "company", jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)
	code, _ = do(t, srv, http.MethodGet, "/v1/board", none, nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, srv, http.MethodGet, "/v1/board", bearer(t, id, "admin"), nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, srv, http.MethodGet, "/v1/board", "Bearer "+token(t, "not-a-uuid", "company", jwt.SigningMethodHS256, []byte(testSecret)), nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, srv, http.MethodGet, "/v1/board", bearer(t, id, "carrier"), nil)
	require.Equal(t, http.StatusOK, code)
}

func TestFreightAPI_Flow(t *testing.T) {
	srv := newServer(t)
	company := bearer(t, uuid.New(), "company")
	carrier := bearer(t, uuid.New(), "carrier")

	code, route := do(t, srv, http.MethodPost, "/v1/routes", company, routeBody())
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, "pending", route["status"])
	routeID := route["id"].(string)

	code, _ = do(t, srv, http.MethodPost, "/v1/routes", carrier, routeBody())
	require.Equal(t, http.StatusForbidden, code)

	code, detail := do(t, srv, http.MethodGet, "/v1/routes/"+routeID, carrier, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, detail["can_bid"])

	bidReq := map[string]any{
		"proposed_price":     4500,
		"estimated_delivery": time.Now().UTC().Add(72 * time.Hour).Format(time.RFC3339),
		"message":            "ready",
	}
	code, bid := do(t, srv, http.MethodPost, "/v1/routes/"+routeID+"/bids", carrier, bidReq)
	require.Equal(t, http.StatusCreated, code)
	bidID := bid["id"].(string)

	code, _ = do(t, srv, http.MethodPost, "/v1/routes/"+routeID+"/bids", carrier, bidReq)
	require.Equal(t, http.StatusConflict, code)
	code, _ = do(t, srv, http.MethodPost, "/v1/routes/"+routeID+"/bids", company, bidReq)
	require.Equal(t, http.StatusForbidden, code)

	code, _ = do(t, srv, http.MethodPost, "/v1/bids/"+bidID+"/accept", bearer(t, uuid.New(), "company"), nil)
	require.Equal(t, http.StatusNotFound, code)

	code, accepted := do(t, srv, http.MethodPost, "/v1/bids/"+bidID+"/accept", company, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "in_transit", accepted["status"])
	require.EqualValues(t, 4500, accepted["price"])

	code, _ = do(t, srv, http.MethodPost, "/v1/bids/"+bidID+"/accept", company, nil)
	require.Equal(t, http.StatusConflict, code)

	code, _ = do(t, srv, http.MethodPost, "/v1/routes/"+routeID+"/tracking", carrier, map[string]any{})
	require.Equal(t, http.StatusBadRequest, code)

	code, upd := do(t, srv, http.MethodPost, "/v1/routes/"+routeID+"/tracking", carrier, map[string]any{"progress_percent": 100})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, upd["completion_recommended"])

	code, view := do(t, srv, http.MethodGet, "/v1/routes/"+routeID+"/tracking", company, nil)
	require.Equal(t, http.StatusOK, code)
	for _, k := range []string{"origin", "destination", "current", "progress_percent", "current_location"} {
		require.Contains(t, view, k)
	}
	require.EqualValues(t, 100, view["progress_percent"])
	require.Equal(t, "Lviv", view["current_location"])
	require.Equal(t, map[string]any{"lat": 49.84, "lng": 24.03}, view["current"])

	code, _ = do(t, srv, http.MethodGet, "/v1/routes/"+routeID+"/tracking", bearer(t, uuid.New(), "carrier"), nil)
	require.Equal(t, http.StatusForbidden, code)

	code, done := do(t, srv, http.MethodPost, "/v1/routes/"+routeID+"/complete", carrier, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "delivered", done["status"])

	code, _ = do(t, srv, http.MethodPost, "/v1/routes/"+routeID+"/complete", company, nil)
	require.Equal(t, http.StatusConflict, code)
}

func TestFreightAPI_ListAndCancel(t *testing.T) {
	srv := newServer(t)
	company := bearer(t, uuid.New(), "company")

	_, route := do(t, srv, http.MethodPost, "/v1/routes", company, routeBody())
	routeID := route["id"].(string)

	code, list := do(t, srv, http.MethodGet, "/v1/routes?status=pending&city=lviv&limit=5", company, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, list["routes"], 1)

	code, _ = do(t, srv, http.MethodGet, "/v1/routes?status=lost", company, nil)
	require.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, srv, http.MethodGet, "/v1/routes?limit=ten", company, nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, http.MethodPost, "/v1/routes/"+routeID+"/cancel", bearer(t, uuid.New(), "company"), nil)
	require.Equal(t, http.StatusNotFound, code)
	code, cancelled := do(t, srv, http.MethodPost, "/v1/routes/"+routeID+"/cancel", company, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "cancelled", cancelled["status"])

	code, board := do(t, srv, http.MethodGet, "/v1/board", company, nil)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, board["routes"])
}

func TestFreightAPI_BadRequests(t *testing.T) {
	srv := newServer(t)
	company := bearer(t, uuid.New(), "company")

	code, _ := do(t, srv, http.MethodGet, "/v1/routes/nope", company, nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, http.MethodPost, "/v1/routes", company, "{broken")
	require.Equal(t, http.StatusBadRequest, code)

	body := routeBody()
	body["price"] = -5
	code, resp := do(t, srv, http.MethodPost, "/v1/routes", company, body)
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, resp["error"], "invalid input")

	code, _ = do(t, srv, http.MethodGet, "/v1/routes/"+uuid.NewString(), company, nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestHandleError_StatusCodes(t *testing.T) {
	cases := map[error]int{
		errors.Wrap(routes.ErrInvalidInput, "x"): http.StatusBadRequest,
		routes.ErrNotCarrier:                     http.StatusForbidden,
		routes.ErrNoAccess:                       http.StatusForbidden,
		routes.ErrNotOwner:                       http.StatusNotFound,
		routes.ErrDuplicateBid:                   http.StatusConflict,
		routes.ErrRouteNotInTransit:              http.StatusConflict,
		routes.ErrRateLimited:                    http.StatusTooManyRequests,
		errors.New("pg down"):                    http.StatusInternalServerError,
	}
	for err, want := range cases {
		rec := httptest.NewRecorder()
		handleError(rec, err)
		require.Equal(t, want, rec.Code, err.Error())
	}

	rec := httptest.NewRecorder()
	handleError(rec, errors.New("secret dsn leaked"))
	require.NotContains(t, rec.Body.String(), "secret")
}
