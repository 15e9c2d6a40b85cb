package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAggregates(t *testing.T) {
	c := New()
	c.Add(NewCheckFunc("config_repository", func(context.Context) error { return nil }))
	c.Add(NewCheckFunc("database", func(context.Context) error { return errors.New("connection refused") }))

	status, err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database")
	assert.False(t, status.Healthy)
	require.Len(t, status.Checks, 2)
	assert.True(t, status.Checks[0].Healthy)
	assert.Equal(t, "connection refused", status.Checks[1].Error)
}

func TestNoChecksIsHealthy(t *testing.T) {
	status, err := New().Run(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}

func TestFailureThreshold(t *testing.T) {
	failing := true
	c := New(WithFailureThreshold(2))
	c.Add(NewCheckFunc("flaky", func(context.Context) error {
		if failing {
			return errors.New("down")
		}
		return nil
	}))

	status, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy, "first failure is below threshold")

	status, err = c.Run(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)

	failing = false
	_, err = c.Run(context.Background())
	require.NoError(t, err)

	failing = true
	_, err = c.Run(context.Background())
	assert.NoError(t, err, "success resets the failure count")
}

func TestTimeout(t *testing.T) {
	c := New(WithTimeout(10 * time.Millisecond))
	c.Add(NewCheckFunc("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	_, err := c.Run(context.Background())
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	healthy := true
	c := New()
	c.Add(NewCheckFunc("store", func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("unreachable")
	}))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Checks["store"].Status)

	healthy = false
	rec = httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "unreachable", resp.Checks["store"].Error)
}
