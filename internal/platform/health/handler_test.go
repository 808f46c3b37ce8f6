package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

func TestStatusIdentifiesWorker(t *testing.T) {
	r := newTestRouter(New("provisioner", "test"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "provisioner", status.Service)
	assert.Equal(t, "test", status.Environment)
	assert.NotEmpty(t, status.Version)
	assert.NotEmpty(t, status.Timestamp)
}

func TestLivenessIgnoresFailingChecks(t *testing.T) {
	h := New("provisioner", "test")
	h.RegisterCheck("kafka", func() error { return errors.New("no active partition assignment") })
	r := newTestRouter(h)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadiness(t *testing.T) {
	t.Run("all checks passing", func(t *testing.T) {
		h := New("provisioner", "test")
		h.RegisterCheck("kafka", func() error { return nil })
		h.RegisterCheck("database", func() error { return nil })
		r := newTestRouter(h)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var ready ReadinessResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
		assert.Equal(t, "ready", ready.Status)
		assert.Equal(t, "up", ready.Checks["kafka"])
		assert.Equal(t, "up", ready.Checks["database"])
	})

	t.Run("failing check flips to 503", func(t *testing.T) {
		h := New("provisioner", "test")
		h.RegisterCheck("kafka", func() error { return errors.New("no active partition assignment") })
		h.RegisterCheck("database", func() error { return nil })
		r := newTestRouter(h)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var ready ReadinessResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
		assert.Equal(t, "not_ready", ready.Status)
		assert.Equal(t, "down: no active partition assignment", ready.Checks["kafka"])
		assert.Equal(t, "up", ready.Checks["database"])
	})

	t.Run("no checks registered", func(t *testing.T) {
		r := newTestRouter(New("provisioner", "test"))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
