package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	h.Register(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestLivenessAndStatus(t *testing.T) {
	h := New("test")

	rr := serve(h, "/health/live")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rr.Body.String())

	rr = serve(h, "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, "test", status.Environment)
	assert.Equal(t, Version, status.Version)
}

func TestReadiness(t *testing.T) {
	h := New("test")
	h.RegisterCheck("redis", func(context.Context) error { return nil })

	rr := serve(h, "/health/ready")
	require.Equal(t, http.StatusOK, rr.Code)

	h.RegisterCheck("postgres", func(context.Context) error { return errors.New("connection refused") })
	rr = serve(h, "/health/ready")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "up", resp.Checks["redis"])
	assert.Equal(t, "down: connection refused", resp.Checks["postgres"])
}
