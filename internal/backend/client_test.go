package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/bot_manager_console/internal/localstore"
	"github.com/lewisedginton/bot_manager_console/pkg/logger"
)

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{BaseURL: "://bad"})
	assert.Error(t, err)
}

func TestURL(t *testing.T) {
	c, err := New(context.Background(), Config{BaseURL: "http://localhost:5000/api/"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:5000/api", c.BaseURL())
	assert.Equal(t, "http://localhost:5000/api/auth-check", c.URL("/auth-check"))
	assert.Equal(t, "http://localhost:5000/api/config", c.URL("config"))
}

func TestDoJSONRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/echo", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "corr-1", r.Header.Get(logger.CorrelationIDHeader))
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	defer server.Close()

	c, err := New(context.Background(), Config{BaseURL: server.URL + "/api"})
	require.NoError(t, err)

	ctx := logger.WithCorrelationIDContext(context.Background(), "corr-1")
	var out map[string]string
	require.NoError(t, c.Do(ctx, http.MethodPost, "/echo", map[string]string{"a": "b"}, &out))
	assert.Equal(t, map[string]string{"a": "b"}, out)
}

func TestDoStatusAndDecodeErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "short and stout", http.StatusTeapot)
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, err := New(context.Background(), Config{BaseURL: server.URL})
	require.NoError(t, err)

	var out map[string]any
	err = c.Do(context.Background(), http.MethodGet, "/teapot", nil, &out)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTeapot, statusErr.StatusCode)
	assert.Equal(t, "short and stout", statusErr.Body)
	assert.Equal(t, "/teapot", statusErr.Path)

	assert.Error(t, c.Do(context.Background(), http.MethodGet, "/garbage", nil, &out))
	assert.NoError(t, c.Do(context.Background(), http.MethodGet, "/empty", nil, &out))
}

func TestSessionCookiePersistsAcrossClients(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "tok-1", Path: "/"})
	})
	mux.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("session")
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"session":"` + ck.Value + `"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	ctx := context.Background()
	persisted := localstore.NewMemoryStore()

	first, err := New(ctx, Config{BaseURL: server.URL, Store: persisted})
	require.NoError(t, err)
	require.NoError(t, first.Do(ctx, http.MethodPost, "/login", nil, nil))

	second, err := New(ctx, Config{BaseURL: server.URL, Store: persisted})
	require.NoError(t, err)
	value, ok := second.SessionCookie()
	require.True(t, ok)
	assert.Equal(t, "tok-1", value)

	var who map[string]string
	require.NoError(t, second.Do(ctx, http.MethodGet, "/whoami", nil, &who))
	assert.Equal(t, "tok-1", who["session"])

	require.NoError(t, second.ClearSession(ctx))
	_, ok = second.SessionCookie()
	assert.False(t, ok)
	err = second.Do(ctx, http.MethodGet, "/whoami", nil, &who)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	third, err := New(ctx, Config{BaseURL: server.URL, Store: persisted})
	require.NoError(t, err)
	_, ok = third.SessionCookie()
	assert.False(t, ok)
}

func TestExpiredPersistedCookieIsDropped(t *testing.T) {
	ctx := context.Background()
	persisted := localstore.NewMemoryStore()
	require.NoError(t, localstore.SetJSON(ctx, persisted, localstore.KeySession,
		map[string]string{"name": "session", "value": "old", "expires": "2001-01-01T00:00:00Z"}))

	c, err := New(ctx, Config{BaseURL: "http://localhost:5000", Store: persisted})
	require.NoError(t, err)
	_, ok := c.SessionCookie()
	assert.False(t, ok)
	_, found, err := persisted.Get(ctx, localstore.KeySession)
	require.NoError(t, err)
	assert.False(t, found)
}
