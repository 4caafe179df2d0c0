package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/sensorsim/internal/lib/logger/sl"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAggregatesCheckers(t *testing.T) {
	s := NewServer(sl.Discard(), ":0", nil)
	s.AddChecker(NewSinkHealthChecker("file", func(ctx context.Context) error { return nil }))
	s.AddChecker(NewSinkHealthChecker("kafka", func(ctx context.Context) error { return errors.New("no broker") }))

	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusDegraded, resp.Status)
	require.Len(t, resp.Components, 2)
	assert.Equal(t, "sink:kafka", resp.Components[1].Name)
	assert.Equal(t, "no broker", resp.Components[1].Message)

	s.AddChecker(NewStoreHealthChecker(func(ctx context.Context) (int64, error) {
		return 0, errors.New("database is locked")
	}, 0))
	rec = get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStoreHealthChecker(t *testing.T) {
	c := NewStoreHealthChecker(func(ctx context.Context) (int64, error) { return 5000, nil }, 1000)
	status, msg := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, status)
	assert.NotEmpty(t, msg)

	c = NewStoreHealthChecker(func(ctx context.Context) (int64, error) { return 5000, nil }, 0)
	status, _ = c.Check(context.Background())
	assert.Equal(t, StatusHealthy, status)
}

func TestReadyAndLive(t *testing.T) {
	s := NewServer(sl.Discard(), ":0", nil)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/ready").Code)

	s.SetReady(true)
	assert.Equal(t, http.StatusOK, get(t, h, "/ready").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "sensorsim_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	rec := get(t, NewServer(sl.Discard(), ":0", reg).Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sensorsim_test_total 3")

	rec = get(t, NewServer(sl.Discard(), ":0", nil).Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
