package http_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	httpapi "fitdash/internal/http"
	"fitdash/internal/infra"
	"fitdash/internal/modules/user"
	"fitdash/internal/types"
)

type verifier struct{ uid string }

func (v verifier) VerifyIDToken(_ context.Context, _ string) (*infra.FirebaseToken, error) {
	return &infra.FirebaseToken{UID: v.uid}, nil
}

type roles map[types.ID]user.Role

func (r roles) RoleOf(_ context.Context, id types.ID) (user.Role, error) {
	if role, ok := r[id]; ok {
		return role, nil
	}
	return user.RoleCustomer, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func newEngine(uid string, health error) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return httpapi.NewServer(httpapi.ServerDeps{
		Roles:    roles{"admin1": user.RoleAdmin, "driver1": user.RoleDriver},
		Verifier: verifier{uid: uid},
		Health:   pinger{err: health},
	}).Routes()
}

func request(r *gin.Engine, method, path string) int {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer t")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestHealth(t *testing.T) {
	assert.Equal(t, http.StatusOK, request(newEngine("", nil), http.MethodGet, "/health"))
	assert.Equal(t, http.StatusServiceUnavailable, request(newEngine("", errors.New("down")), http.MethodGet, "/health"))
}

func TestMetricsExposed(t *testing.T) {
	assert.Equal(t, http.StatusOK, request(newEngine("", nil), http.MethodGet, "/metrics"))
}

func TestRoleGates(t *testing.T) {
	// Gates run before any handler, so nil services are never reached.
	assert.Equal(t, http.StatusForbidden, request(newEngine("cust1", nil), http.MethodPost, "/api/admin/orders/o1/dispatch"))
	assert.Equal(t, http.StatusForbidden, request(newEngine("driver1", nil), http.MethodGet, "/api/admin/drivers/nearby"))
	assert.Equal(t, http.StatusForbidden, request(newEngine("cust1", nil), http.MethodPut, "/api/drivers/me/location"))
	assert.Equal(t, http.StatusForbidden, request(newEngine("cust1", nil), http.MethodPost, "/api/orders/o1/complete"))
	assert.Equal(t, http.StatusForbidden, request(newEngine("cust1", nil), http.MethodPost, "/api/orders/o1/status"))
}
