// Package session tracks whether this client holds an authenticated session
// with the admin backend.
//
// The store starts with both flags Unknown. CheckLogin fails closed: any
// transport or decoding failure leaves the store logged out and is only
// logged. Login reports a rejected password as an ordinary LoginResponse
// rather than an error. Logout always drops the local session cookie, even
// when the backend could not be reached.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/lewisedginton/bot_manager_console/pkg/logger"
	"github.com/lewisedginton/bot_manager_console/pkg/opstatus"
)

// Operation names reported to the tracker.
const (
	OpCheckLogin = "check_login"
	OpLogin      = "login"
	OpLogout     = "logout"
)

const (
	authCheckPath = "/auth-check"
	loginPath     = "/login"
	logoutPath    = "/logout"
)

// Transport is the backend surface the store needs.
type Transport interface {
	Do(ctx context.Context, method, path string, requestBody, out any) error
	ClearSession(ctx context.Context) error
}

// ConfigFetcher is refreshed after a successful logged-in check.
type ConfigFetcher interface {
	Fetch(ctx context.Context) error
}

// Status is the store's belief about the backend session.
type Status struct {
	LoggedIn      Tristate
	RequiresSetup Tristate
}

// LoginRequest is the body posted to /login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse is the backend's answer to a login attempt.
type LoginResponse struct {
	Success               bool   `json:"success"`
	RequiresPasswordReset *bool  `json:"requiresPasswordReset,omitempty"`
	Message               string `json:"message,omitempty"`
}

// Options configures a Store.
type Options struct {
	Contract Contract
	Encoder  PasswordEncoder
	// Config is fetched after CheckLogin finds a live session. Optional.
	Config   ConfigFetcher
	Logger   logger.Logger
	Observer opstatus.Observer
}

// Store holds the session state.
type Store struct {
	transport Transport
	contract  Contract
	encoder   PasswordEncoder
	config    ConfigFetcher
	log       logger.Logger
	ops       *opstatus.Tracker

	mu     sync.RWMutex
	status Status
}

// NewStore creates a Store in the Unknown state.
func NewStore(transport Transport, opts Options) *Store {
	contract := opts.Contract
	if contract == "" {
		contract = ContractChat
	}
	encoder := opts.Encoder
	if encoder == nil {
		encoder = BcryptEncoder{}
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		transport: transport,
		contract:  contract,
		encoder:   encoder,
		config:    opts.Config,
		log:       log.WithFields(logger.StringField("component", "session_store")),
		ops:       opstatus.NewTracker(opts.Observer),
	}
}

// Status returns the current session state.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Operation reports the state of op (OpCheckLogin, OpLogin, OpLogout).
func (s *Store) Operation(op string) opstatus.Snapshot {
	return s.ops.Get(op)
}

func (s *Store) set(fn func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

// CheckLogin asks the backend whether the session is live. Failures leave the
// store logged out and are not returned.
func (s *Store) CheckLogin(ctx context.Context) {
	ticket := s.ops.Begin(OpCheckLogin)

	var raw json.RawMessage
	err := s.transport.Do(ctx, http.MethodGet, authCheckPath, nil, &raw)
	var check AuthCheck
	if err == nil {
		check, err = s.contract.Decode(raw)
	}

	if !s.ops.Finish(ticket, err) {
		s.log.Debug("Discarding superseded auth check")
		return
	}
	if err != nil {
		s.log.Error("Auth check failed, treating as logged out", logger.ErrorField(err))
		s.set(func(st *Status) { st.LoggedIn = False })
		return
	}

	s.set(func(st *Status) {
		st.LoggedIn = FromBool(check.LoggedIn)
		if s.contract == ContractChat {
			st.RequiresSetup = check.RequiresSetup
		}
	})
	s.log.Debug("Auth check completed",
		logger.BoolField("logged_in", check.LoggedIn),
		logger.StringField("requires_setup", check.RequiresSetup.String()))

	if check.LoggedIn && s.config != nil {
		if err := s.config.Fetch(ctx); err != nil {
			s.log.Error("Config fetch after auth check failed", logger.ErrorField(err))
		}
	}
}

// Login posts the encoded password. A rejected password is returned as a
// response with Success false, not as an error; errors mean the request
// itself failed.
func (s *Store) Login(ctx context.Context, password string) (*LoginResponse, error) {
	ticket := s.ops.Begin(OpLogin)

	encoded, err := s.encoder.Encode(password)
	if err != nil {
		s.ops.Finish(ticket, err)
		return nil, fmt.Errorf("login: %w", err)
	}

	var resp LoginResponse
	err = s.transport.Do(ctx, http.MethodPost, loginPath, LoginRequest{Password: encoded}, &resp)
	if !s.ops.Finish(ticket, err) {
		s.log.Debug("Discarding superseded login")
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		return &resp, nil
	}
	if err != nil {
		s.log.Error("Login request failed", logger.ErrorField(err))
		return nil, fmt.Errorf("login: %w", err)
	}

	if resp.Success {
		s.set(func(st *Status) { st.LoggedIn = True })
		s.log.Info("Logged in")
	} else {
		s.log.Info("Login rejected", logger.StringField("message", resp.Message))
	}
	return &resp, nil
}

// Logout ends the session on the backend and locally. The local state and
// cookie are cleared even when the request fails; the request error is
// still returned.
func (s *Store) Logout(ctx context.Context) error {
	ticket := s.ops.Begin(OpLogout)

	reqErr := s.transport.Do(ctx, http.MethodGet, logoutPath, nil, nil)
	clearErr := s.transport.ClearSession(ctx)

	err := reqErr
	if err == nil {
		err = clearErr
	}
	s.ops.Finish(ticket, err)

	s.set(func(st *Status) { st.LoggedIn = False })
	s.log.Info("Logged out")

	if reqErr != nil {
		s.log.Warn("Logout request failed, local session cleared anyway", logger.ErrorField(reqErr))
		return fmt.Errorf("logout: %w", reqErr)
	}
	if clearErr != nil {
		return fmt.Errorf("logout: %w", clearErr)
	}
	return nil
}
