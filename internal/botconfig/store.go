// Package botconfig holds the bot's configuration document and the store
// that fetches and persists it against the admin backend.
//
// Persistence is whole-document replace: Update sends the entire cached
// document and adopts whatever canonical copy the backend echoes back. There
// is no field-level update and no concurrency control; a second writer
// silently replaces the first.
package botconfig

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/lewisedginton/bot_manager_console/pkg/logger"
	"github.com/lewisedginton/bot_manager_console/pkg/opstatus"
)

// Operation names reported to the tracker.
const (
	OpFetch  = "fetch_config"
	OpUpdate = "update_config"
)

const configPath = "/config"

// Transport issues JSON requests against the backend.
type Transport interface {
	Do(ctx context.Context, method, path string, requestBody, out any) error
}

// Store caches the configuration document.
type Store struct {
	transport    Transport
	updateMethod string
	log          logger.Logger
	ops          *opstatus.Tracker

	mu  sync.RWMutex
	doc *Document
}

// Options configures a Store.
type Options struct {
	// UpdateMethod is POST (default) or PUT.
	UpdateMethod string
	Logger       logger.Logger
	Observer     opstatus.Observer
}

// NewStore creates an empty Store.
func NewStore(transport Transport, opts Options) *Store {
	method := opts.UpdateMethod
	if method == "" {
		method = http.MethodPost
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		transport:    transport,
		updateMethod: method,
		log:          log.WithFields(logger.StringField("component", "config_store")),
		ops:          opstatus.NewTracker(opts.Observer),
	}
}

// Document returns a copy of the cached document, or nil before the first
// successful fetch.
func (s *Store) Document() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// SetDocument replaces the cached document with a copy of doc.
func (s *Store) SetDocument(doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc.Clone()
}

// Edit applies fn to the cached document. It fails when nothing is cached.
func (s *Store) Edit(fn func(*Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return fmt.Errorf("no configuration loaded")
	}
	fn(s.doc)
	return nil
}

// Status reports the state of op (OpFetch or OpUpdate).
func (s *Store) Status(op string) opstatus.Snapshot {
	return s.ops.Get(op)
}

// Fetch loads the document from the backend, overwriting the cache.
func (s *Store) Fetch(ctx context.Context) error {
	ticket := s.ops.Begin(OpFetch)

	var doc Document
	err := s.transport.Do(ctx, http.MethodGet, configPath, nil, &doc)
	if !s.ops.Finish(ticket, err) {
		s.log.Debug("Discarding superseded config fetch")
		return err
	}
	if err != nil {
		s.log.Error("Failed to fetch config", logger.ErrorField(err))
		return fmt.Errorf("fetch config: %w", err)
	}

	s.mu.Lock()
	s.doc = &doc
	s.mu.Unlock()
	s.log.Debug("Config fetched", logger.StringField("profile_name", doc.BotConfig.ProfileName))
	return nil
}

// Update sends the whole cached document and caches the echoed copy.
func (s *Store) Update(ctx context.Context) error {
	current := s.Document()
	if current == nil {
		return fmt.Errorf("update config: no configuration loaded")
	}

	ticket := s.ops.Begin(OpUpdate)
	var canonical Document
	err := s.transport.Do(ctx, s.updateMethod, configPath, current, &canonical)
	if !s.ops.Finish(ticket, err) {
		s.log.Debug("Discarding superseded config update")
		return err
	}
	if err != nil {
		s.log.Error("Failed to update config", logger.ErrorField(err))
		return fmt.Errorf("update config: %w", err)
	}

	s.mu.Lock()
	s.doc = &canonical
	s.mu.Unlock()
	s.log.Info("Config updated", logger.StringField("profile_name", canonical.BotConfig.ProfileName))
	return nil
}
