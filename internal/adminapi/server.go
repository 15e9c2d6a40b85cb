// Package adminapi is the bot manager's admin backend: session login against
// an API key and whole-document storage of the bot configuration.
//
// Routes, all under /api:
//
//	GET  /auth-check  session state, never requires a session
//	POST /login       {password} -> {success, requiresPasswordReset, message}
//	GET  /logout      requires a session
//	GET  /config      requires a session
//	POST /config      requires a session, replaces the document
//	PUT  /config      same as POST
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lewisedginton/bot_manager_console/internal/botconfig"
	"github.com/lewisedginton/bot_manager_console/pkg/health"
	"github.com/lewisedginton/bot_manager_console/pkg/httpmiddleware"
	"github.com/lewisedginton/bot_manager_console/pkg/logger"
	"github.com/lewisedginton/bot_manager_console/pkg/metrics"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session"

// WrongPasswordMessage is returned for a rejected login.
const WrongPasswordMessage = "Error: Wrong password"

// Options configures a Server.
type Options struct {
	// APIKey is the admin password. Empty means setup is required and every
	// login succeeds.
	APIKey     string
	SessionTTL time.Duration
	Repository ConfigRepository
	Logger     logger.Logger
	// Middleware defaults to httpmiddleware.DefaultConfig().
	Middleware *httpmiddleware.Config
	Metrics    *metrics.Metrics
	Health     *health.Checker
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool
}

// Server serves the admin API.
type Server struct {
	apiKey       string
	repo         ConfigRepository
	sessions     *sessions
	secureCookie bool
	log          logger.Logger
	router       chi.Router
}

type authCheckResponse struct {
	LoggedIn      bool `json:"loggedIn"`
	RequiresSetup bool `json:"requiresSetup"`
	// LoggedInAdmin serves clients of the admin dashboard contract.
	LoggedInAdmin bool `json:"logged_in"`
}

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	Success               bool   `json:"success"`
	RequiresPasswordReset bool   `json:"requiresPasswordReset,omitempty"`
	Message               string `json:"message,omitempty"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// New builds the server and its router.
func New(opts Options) (*Server, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("admin api: config repository is required")
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	s := &Server{
		apiKey:       opts.APIKey,
		repo:         opts.Repository,
		sessions:     newSessions(ttl),
		secureCookie: opts.SecureCookie,
		log:          log.WithFields(logger.StringField("component", "admin_api")),
	}

	mw := httpmiddleware.DefaultConfig()
	if opts.Middleware != nil {
		mw = *opts.Middleware
	}
	if mw.Logger == nil {
		mw.Logger = log
		mw.EnableLogging = true
	}

	r := chi.NewRouter()
	if opts.Metrics != nil {
		r.Use(opts.Metrics.HTTPMiddleware())
	}
	httpmiddleware.ApplyToRouter(r, mw)

	if opts.Health != nil {
		opts.Health.Add(health.NewCheckFunc("config_repository", s.repo.Ping))
		r.Get("/health", opts.Health.Handler())
	}
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/auth-check", s.handleAuthCheck)
		r.Post("/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/logout", s.handleLogout)
			r.Get("/config", s.handleGetConfig)
			r.Post("/config", s.handleSaveConfig)
			r.Put("/config", s.handleSaveConfig)
		})
	})
	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Admin API listening", logger.IntField("port", port))
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down admin API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:contextcheck // parent is already cancelled
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil { //nolint:contextcheck // see above
		return fmt.Errorf("shutdown admin api: %w", err)
	}
	return nil
}

func (s *Server) loggedIn(r *http.Request) bool {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return false
	}
	return s.sessions.valid(cookie.Value)
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.loggedIn(r) {
			writeJSON(w, http.StatusUnauthorized, statusResponse{Success: false, Message: "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	loggedIn := s.loggedIn(r)
	writeJSON(w, http.StatusOK, authCheckResponse{
		LoggedIn:      loggedIn,
		RequiresSetup: s.apiKey == "",
		LoggedInAdmin: loggedIn,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), s.log)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, loginResponse{Success: false, Message: "Error: Invalid request body"})
		return
	}

	if !verifyPassword(s.apiKey, req.Password) {
		log.Warn("Login rejected")
		writeJSON(w, http.StatusOK, loginResponse{Success: false, Message: WrongPasswordMessage})
		return
	}

	token, expires := s.sessions.create()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	log.Info("Login accepted", logger.BoolField("requires_setup", s.apiKey == ""))
	writeJSON(w, http.StatusOK, loginResponse{Success: true, RequiresPasswordReset: s.apiKey == ""})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		s.sessions.revoke(cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, statusResponse{Success: true})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	doc, err := s.repo.Load(r.Context())
	if err != nil {
		logger.FromContext(r.Context(), s.log).Error("Failed to load config", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, statusResponse{Message: "failed to load config"})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context(), s.log)

	var doc botconfig.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeJSON(w, http.StatusBadRequest, statusResponse{Message: "invalid config document"})
		return
	}
	canonicalize(&doc)

	saved, err := s.repo.Save(r.Context(), &doc)
	if err != nil {
		log.Error("Failed to save config", logger.ErrorField(err))
		writeJSON(w, http.StatusInternalServerError, statusResponse{Message: "failed to save config"})
		return
	}
	log.Info("Config replaced", logger.StringField("profile_name", saved.BotConfig.ProfileName))
	writeJSON(w, http.StatusOK, saved)
}

// canonicalize fills the fields every stored document must have.
func canonicalize(doc *botconfig.Document) {
	if doc.BotConfig.ID == "" {
		doc.BotConfig.ID = uuid.NewString()
	}
	if doc.BotConfig.MessageInterface == nil {
		doc.BotConfig.MessageInterface = botconfig.Settings{}
	}
	if doc.BotConfig.WebInterface == nil {
		doc.BotConfig.WebInterface = botconfig.Settings{}
	}
	if doc.BotConfig.Bot == nil {
		doc.BotConfig.Bot = botconfig.Settings{}
	}
	if doc.BotMemory.Messages == nil {
		doc.BotMemory.Messages = map[string]botconfig.MemoryMessage{}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
