package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lewisedginton/bot_manager_console/internal/backend"
	"github.com/lewisedginton/bot_manager_console/internal/botconfig"
	"github.com/lewisedginton/bot_manager_console/internal/localstore"
	"github.com/lewisedginton/bot_manager_console/internal/session"
	"github.com/lewisedginton/bot_manager_console/pkg/health"
	"github.com/lewisedginton/bot_manager_console/pkg/metrics"
)

func newTestServer(t *testing.T, apiKey string) (*Server, *LocalConfigRepository) {
	t.Helper()
	repo := NewLocalConfigRepository(localstore.NewMemoryStore())
	srv, err := New(Options{
		APIKey:     apiKey,
		Repository: repo,
		Metrics:    metrics.NewMetrics(true, false, nil),
		Health:     health.New(),
	})
	require.NoError(t, err)
	return srv, repo
}

func do(t *testing.T, h http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", SessionCookieName)
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewRequiresRepository(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestAuthCheckReportsBothContracts(t *testing.T) {
	srv, _ := newTestServer(t, "key")

	rec := do(t, srv, http.MethodGet, "/api/auth-check", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["loggedIn"])
	assert.Equal(t, false, body["requiresSetup"])
	assert.Equal(t, false, body["logged_in"])

	login := do(t, srv, http.MethodPost, "/api/login", `{"password":"key"}`)
	rec = do(t, srv, http.MethodGet, "/api/auth-check", "", sessionCookie(t, login))
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["loggedIn"])
	assert.Equal(t, true, body["logged_in"])
}

func TestAuthCheckRequiresSetupWithoutKey(t *testing.T) {
	srv, _ := newTestServer(t, "")
	body := decodeBody(t, do(t, srv, http.MethodGet, "/api/auth-check", ""))
	assert.Equal(t, true, body["requiresSetup"])
}

func TestLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("key"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name        string
		apiKey      string
		body        string
		wantCode    int
		wantSuccess bool
		wantReset   bool
		wantMessage string
	}{
		{"plaintext", "key", `{"password":"key"}`, http.StatusOK, true, false, ""},
		{"bcrypt hash", "key", `{"password":"` + string(hash) + `"}`, http.StatusOK, true, false, ""},
		{"wrong password", "key", `{"password":"nope"}`, http.StatusOK, false, false, WrongPasswordMessage},
		{"open setup", "", `{"password":"anything"}`, http.StatusOK, true, true, ""},
		{"bad body", "key", `{`, http.StatusBadRequest, false, false, "Error: Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.apiKey)
			rec := do(t, srv, http.MethodPost, "/api/login", tt.body)
			require.Equal(t, tt.wantCode, rec.Code)

			var resp loginResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantSuccess, resp.Success)
			assert.Equal(t, tt.wantReset, resp.RequiresPasswordReset)
			assert.Equal(t, tt.wantMessage, resp.Message)

			if tt.wantSuccess {
				c := sessionCookie(t, rec)
				assert.True(t, c.HttpOnly)
				assert.NotEmpty(t, c.Value)
			} else {
				assert.Empty(t, rec.Result().Cookies())
			}
		})
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	srv, _ := newTestServer(t, "key")
	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/config", ""},
		{http.MethodPost, "/api/config", `{}`},
		{http.MethodPut, "/api/config", `{}`},
		{http.MethodGet, "/api/logout", ""},
	} {
		rec := do(t, srv, tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}

	forged := &http.Cookie{Name: SessionCookieName, Value: "forged"}
	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/config", "", forged).Code)
}

func TestLogoutRevokesSession(t *testing.T) {
	srv, _ := newTestServer(t, "key")
	cookie := sessionCookie(t, do(t, srv, http.MethodPost, "/api/login", `{"password":"key"}`))

	rec := do(t, srv, http.MethodGet, "/api/logout", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := sessionCookie(t, rec)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/config", "", cookie).Code)
}

func TestConfigRoundTrip(t *testing.T) {
	srv, repo := newTestServer(t, "key")
	cookie := sessionCookie(t, do(t, srv, http.MethodPost, "/api/login", `{"password":"key"}`))

	rec := do(t, srv, http.MethodGet, "/api/config", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var seeded botconfig.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &seeded))
	assert.Equal(t, "anon bot", seeded.BotConfig.ProfileName)
	assert.NotEmpty(t, seeded.BotConfig.ID)

	for _, method := range []string{http.MethodPost, http.MethodPut} {
		body := `{"bot_config":{"profile_name":"` + method + `"},"bot_memory":{"mind_map":"m"}}`
		rec = do(t, srv, method, "/api/config", body, cookie)
		require.Equal(t, http.StatusOK, rec.Code)

		var echoed botconfig.Document
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &echoed))
		assert.Equal(t, method, echoed.BotConfig.ProfileName)
		assert.NotEmpty(t, echoed.BotConfig.ID)
		assert.NotNil(t, echoed.BotConfig.Bot)
		assert.NotNil(t, echoed.BotMemory.Messages)

		stored, err := repo.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, method, stored.BotConfig.ProfileName)
		assert.Equal(t, "m", stored.BotMemory.MindMap)
	}

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/config", `not json`, cookie).Code)
}

type failingRepository struct{ err error }

func (f failingRepository) Load(context.Context) (*botconfig.Document, error) { return nil, f.err }
func (f failingRepository) Save(context.Context, *botconfig.Document) (*botconfig.Document, error) {
	return nil, f.err
}
func (f failingRepository) Ping(context.Context) error { return f.err }

func TestRepositoryFailures(t *testing.T) {
	srv, err := New(Options{APIKey: "key", Repository: failingRepository{err: errors.New("db down")}, Health: health.New()})
	require.NoError(t, err)
	cookie := sessionCookie(t, do(t, srv, http.MethodPost, "/api/login", `{"password":"key"}`))

	assert.Equal(t, http.StatusInternalServerError, do(t, srv, http.MethodGet, "/api/config", "", cookie).Code)
	assert.Equal(t, http.StatusInternalServerError, do(t, srv, http.MethodPost, "/api/config", `{}`, cookie).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/health", "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, "key")

	rec := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp health.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Contains(t, resp.Checks, "config_repository")

	do(t, srv, http.MethodGet, "/api/auth-check", "")
	rec = do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "botconsole_total_http_requests")
}

// The session and config stores driven over real HTTP against the server.
func TestStoresAgainstServer(t *testing.T) {
	srv, _ := newTestServer(t, "key")
	ts := httptest.NewServer(srv)
	defer ts.Close()
	ctx := context.Background()

	persisted := localstore.NewMemoryStore()
	client, err := backend.New(ctx, backend.Config{BaseURL: ts.URL + "/api", Store: persisted})
	require.NoError(t, err)

	configs := botconfig.NewStore(client, botconfig.Options{})
	sessions := session.NewStore(client, session.Options{Config: configs})

	sessions.CheckLogin(ctx)
	assert.Equal(t, session.False, sessions.Status().LoggedIn)
	assert.Equal(t, session.False, sessions.Status().RequiresSetup)
	assert.Nil(t, configs.Document())

	resp, err := sessions.Login(ctx, "wrong")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, WrongPasswordMessage, resp.Message)

	resp, err = sessions.Login(ctx, "key")
	require.NoError(t, err)
	assert.True(t, resp.Success)

	sessions.CheckLogin(ctx)
	assert.Equal(t, session.True, sessions.Status().LoggedIn)
	require.NotNil(t, configs.Document())
	assert.Equal(t, "anon bot", configs.Document().BotConfig.ProfileName)

	require.NoError(t, configs.Edit(func(d *botconfig.Document) { d.BotConfig.ProfileName = "renamed" }))
	require.NoError(t, configs.Update(ctx))
	assert.Equal(t, "renamed", configs.Document().BotConfig.ProfileName)

	// A second process restores the session from durable storage.
	restored, err := backend.New(ctx, backend.Config{BaseURL: ts.URL + "/api", Store: persisted})
	require.NoError(t, err)
	other := botconfig.NewStore(restored, botconfig.Options{})
	require.NoError(t, other.Fetch(ctx))
	assert.Equal(t, "renamed", other.Document().BotConfig.ProfileName)

	require.NoError(t, sessions.Logout(ctx))
	assert.Equal(t, session.False, sessions.Status().LoggedIn)
	sessions.CheckLogin(ctx)
	assert.Equal(t, session.False, sessions.Status().LoggedIn)
}
