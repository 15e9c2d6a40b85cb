// Package chatsync owns the console's single messaging client: the rooms it
// has discovered, the room the user selected, and the live updates flowing
// in from the homeserver.
//
// A Store is initialised once. Init restores the persisted login and room
// selection, creates the client, and when the login is usable starts
// syncing and discovers the joined rooms. Live updates for rooms that were
// never discovered are a consistency violation and are reported as
// ErrUnknownRoom unless AutoRegisterRooms is set.
package chatsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lewisedginton/bot_manager_console/internal/localstore"
	"github.com/lewisedginton/bot_manager_console/internal/messaging"
	"github.com/lewisedginton/bot_manager_console/pkg/logger"
	"github.com/lewisedginton/bot_manager_console/pkg/opstatus"
)

var (
	// ErrNotInitialized is returned by operations that need a client before
	// Init created one.
	ErrNotInitialized = errors.New("chat client not initialized")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("chat client already initialized")
	// ErrUnknownRoom is returned for a room that was never discovered.
	ErrUnknownRoom = errors.New("room not initialized yet")
	// ErrRoomNotReady is returned when the selected room has not been
	// discovered yet. Callers should show a loading state.
	ErrRoomNotReady = errors.New("selected room not ready")
	// ErrNoRoomSelected is returned by SelectedRoom when nothing is selected.
	ErrNoRoomSelected = errors.New("no room selected")
)

// Operation names reported to the tracker.
const (
	OpInit        = "init"
	OpStart       = "start"
	OpRegister    = "register"
	OpLogin       = "login"
	OpInitRoom    = "init_room"
	OpSendMessage = "send_message"
)

// DefaultTimelineLimit is how many events InitRoom loads.
const DefaultTimelineLimit = 50

// State is the lifecycle state of a Store.
type State int

const (
	Uninitialized State = iota
	Initializing
	AnonymousReady
	AuthenticatedReady
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case AnonymousReady:
		return "anonymous_ready"
	case AuthenticatedReady:
		return "authenticated_ready"
	default:
		return "uninitialized"
	}
}

// Room is what the store knows about one room.
type Room struct {
	RoomID         string
	LiveState      *messaging.Update
	MessageLog     []messaging.Update
	TimelineEvents []messaging.Event
}

func (r *Room) snapshot() Room {
	out := Room{RoomID: r.RoomID}
	if r.LiveState != nil {
		live := *r.LiveState
		out.LiveState = &live
	}
	out.MessageLog = append([]messaging.Update(nil), r.MessageLog...)
	out.TimelineEvents = append([]messaging.Event(nil), r.TimelineEvents...)
	return out
}

// SendAck records an acknowledged message send.
type SendAck struct {
	RoomID  string
	Body    string
	EventID string
}

// Options configures a Store.
type Options struct {
	// BaseURL is the homeserver the client talks to.
	BaseURL string
	Factory messaging.Factory
	// Store persists the login snapshot and the selected room.
	Store         localstore.Store
	TimelineLimit int
	// AutoRegisterRooms creates a Room for live updates from undiscovered
	// rooms instead of failing with ErrUnknownRoom.
	AutoRegisterRooms bool
	Logger            logger.Logger
	Observer          opstatus.Observer
}

// Store is the chat sync store.
type Store struct {
	baseURL       string
	factory       messaging.Factory
	persist       localstore.Store
	timelineLimit int
	autoRegister  bool
	log           logger.Logger
	ops           *opstatus.Tracker

	mu           sync.RWMutex
	state        State
	client       messaging.Client
	rooms        map[string]*Room
	roomOrder    []string
	selected     string
	login        *messaging.Credentials
	registration *messaging.Credentials
	lastSend     *SendAck
	unsubscribe  func()
	watchers     map[int]func(messaging.Update)
	nextWatcher  int
}

// NewStore creates an uninitialized Store.
func NewStore(opts Options) *Store {
	persist := opts.Store
	if persist == nil {
		persist = localstore.NewMemoryStore()
	}
	limit := opts.TimelineLimit
	if limit <= 0 {
		limit = DefaultTimelineLimit
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		baseURL:       opts.BaseURL,
		factory:       opts.Factory,
		persist:       persist,
		timelineLimit: limit,
		autoRegister:  opts.AutoRegisterRooms,
		log:           log.WithFields(logger.StringField("component", "chat_sync_store")),
		ops:           opstatus.NewTracker(opts.Observer),
		rooms:         make(map[string]*Room),
		watchers:      make(map[int]func(messaging.Update)),
	}
}

// State returns the lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Operation reports the state of op.
func (s *Store) Operation(op string) opstatus.Snapshot {
	return s.ops.Get(op)
}

// Init creates the messaging client. It may succeed only once.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Uninitialized {
		s.mu.Unlock()
		s.log.Warn("Chat client already initialized, ignoring init")
		return ErrAlreadyInitialized
	}
	if s.factory == nil {
		s.mu.Unlock()
		return fmt.Errorf("init chat client: no client factory configured")
	}
	s.state = Initializing
	s.mu.Unlock()

	ticket := s.ops.Begin(OpInit)
	err := s.init(ctx)
	s.ops.Finish(ticket, err)
	return err
}

func (s *Store) init(ctx context.Context) error {
	var creds messaging.Credentials
	found, err := localstore.GetJSON(ctx, s.persist, localstore.KeyLogin, &creds)
	if err != nil {
		s.log.Warn("Ignoring unreadable persisted login", logger.ErrorField(err))
		found = false
	}
	selected, _, err := s.persist.Get(ctx, localstore.KeySelectedRoom)
	if err != nil {
		s.log.Warn("Ignoring unreadable persisted room selection", logger.ErrorField(err))
		selected = ""
	}

	var login *messaging.Credentials
	if found {
		login = &creds
	}

	client, err := s.factory(s.baseURL, login)
	if err != nil {
		s.setState(Uninitialized)
		return fmt.Errorf("init chat client: %w", err)
	}

	s.mu.Lock()
	s.client = client
	s.login = login
	s.selected = selected
	s.state = AnonymousReady
	s.mu.Unlock()

	if !login.WellFormed() {
		s.log.Info("Chat client ready without a login")
		return nil
	}
	return s.start(ctx)
}

func (s *Store) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Store) currentClient() (messaging.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.client == nil {
		return nil, ErrNotInitialized
	}
	return s.client, nil
}

// start launches sync and discovers rooms.
func (s *Store) start(ctx context.Context) error {
	client, err := s.currentClient()
	if err != nil {
		return err
	}

	ticket := s.ops.Begin(OpStart)
	if err := client.Start(ctx); err != nil {
		s.ops.Finish(ticket, err)
		return fmt.Errorf("start chat client: %w", err)
	}
	err = s.initRooms(ctx, client)
	s.ops.Finish(ticket, err)
	if err != nil {
		return err
	}

	s.setState(AuthenticatedReady)
	s.log.Info("Chat client started", logger.IntField("rooms", len(s.Rooms())))
	return nil
}

func (s *Store) initRooms(ctx context.Context, client messaging.Client) error {
	ids, err := client.Rooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	s.mu.Lock()
	for _, roomID := range ids {
		s.addRoomLocked(roomID)
	}
	subscribe := s.unsubscribe == nil
	s.mu.Unlock()

	if subscribe {
		unsubscribe := client.Subscribe(s.handleUpdate)
		s.mu.Lock()
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) addRoomLocked(roomID string) *Room {
	if room, ok := s.rooms[roomID]; ok {
		return room
	}
	room := &Room{RoomID: roomID}
	s.rooms[roomID] = room
	s.roomOrder = append(s.roomOrder, roomID)
	return room
}

func (s *Store) handleUpdate(update messaging.Update) {
	if err := s.OnNewMessage(update); err != nil {
		s.log.Error("Dropping live update", logger.RoomIDField(update.RoomID), logger.ErrorField(err))
	}
}

// OnNewMessage applies a live update to its room.
func (s *Store) OnNewMessage(update messaging.Update) error {
	s.mu.Lock()
	room, ok := s.rooms[update.RoomID]
	if !ok {
		if !s.autoRegister {
			s.mu.Unlock()
			return fmt.Errorf("%w: %s", ErrUnknownRoom, update.RoomID)
		}
		room = s.addRoomLocked(update.RoomID)
	}
	room.MessageLog = append(room.MessageLog, update)
	live := update
	room.LiveState = &live
	watchers := make([]func(messaging.Update), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(update)
	}
	return nil
}

// Watch registers fn to be called after each applied live update.
func (s *Store) Watch(fn func(messaging.Update)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	watcherID := s.nextWatcher
	s.nextWatcher++
	s.watchers[watcherID] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, watcherID)
	}
}

// RegisterUser creates an account and starts the client with it.
func (s *Store) RegisterUser(ctx context.Context, username, password string) (*messaging.Credentials, error) {
	client, err := s.currentClient()
	if err != nil {
		return nil, err
	}

	ticket := s.ops.Begin(OpRegister)
	creds, err := client.Register(ctx, username, password)
	if !s.ops.Finish(ticket, err) {
		return creds, err
	}
	if err != nil {
		s.log.Error("Registration failed", logger.StringField("username", username), logger.ErrorField(err))
		return nil, err
	}

	s.mu.Lock()
	s.registration = creds
	s.mu.Unlock()
	s.log.Info("Registered account", logger.StringField("user_id", creds.UserID))

	if err := s.start(ctx); err != nil {
		return creds, err
	}
	return creds, nil
}

// Login authenticates, persists the login snapshot and restarts the client
// when the snapshot is usable.
func (s *Store) Login(ctx context.Context, username, password string) (*messaging.Credentials, error) {
	client, err := s.currentClient()
	if err != nil {
		return nil, err
	}

	ticket := s.ops.Begin(OpLogin)
	creds, err := client.Login(ctx, username, password)
	if !s.ops.Finish(ticket, err) {
		return creds, err
	}
	if err != nil {
		s.log.Error("Login failed", logger.StringField("username", username), logger.ErrorField(err))
		return nil, err
	}

	s.mu.Lock()
	s.login = creds
	s.mu.Unlock()
	if err := localstore.SetJSON(ctx, s.persist, localstore.KeyLogin, creds); err != nil {
		return creds, fmt.Errorf("persist login: %w", err)
	}

	if !creds.WellFormed() {
		s.log.Warn("Login returned incomplete credentials, not starting sync")
		return creds, nil
	}
	if err := s.start(ctx); err != nil {
		return creds, err
	}
	return creds, nil
}

// SetSelectedRoom selects roomID and persists the choice. An empty roomID
// clears the selection.
func (s *Store) SetSelectedRoom(ctx context.Context, roomID string) error {
	s.mu.Lock()
	s.selected = roomID
	s.mu.Unlock()

	if roomID == "" {
		return s.persist.Remove(ctx, localstore.KeySelectedRoom)
	}
	return s.persist.Set(ctx, localstore.KeySelectedRoom, roomID)
}

// SelectedRoomID returns the selected room id, or "".
func (s *Store) SelectedRoomID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// SelectedRoom returns the selected room. ErrRoomNotReady means the
// selection is known but the room has not been discovered yet.
func (s *Store) SelectedRoom() (Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == "" {
		return Room{}, ErrNoRoomSelected
	}
	room, ok := s.rooms[s.selected]
	if !ok {
		return Room{}, ErrRoomNotReady
	}
	return room.snapshot(), nil
}

// InitRoom loads the recent timeline of a discovered room.
func (s *Store) InitRoom(ctx context.Context, roomID string) error {
	client, err := s.currentClient()
	if err != nil {
		return err
	}
	if _, ok := s.Room(roomID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRoom, roomID)
	}

	ticket := s.ops.BeginKeyed(OpInitRoom, roomID)
	events, err := client.RoomTimeline(ctx, roomID, s.timelineLimit)
	if !s.ops.Finish(ticket, err) {
		return err
	}
	if err != nil {
		return fmt.Errorf("init room %s: %w", roomID, err)
	}

	s.mu.Lock()
	s.rooms[roomID].TimelineEvents = events
	s.mu.Unlock()
	s.log.Debug("Room timeline loaded", logger.RoomIDField(roomID), logger.IntField("events", len(events)))
	return nil
}

// SendMessage sends a plain-text message to roomID.
func (s *Store) SendMessage(ctx context.Context, roomID, text string) (*messaging.SendResult, error) {
	client, err := s.currentClient()
	if err != nil {
		return nil, err
	}

	ticket := s.ops.Begin(OpSendMessage)
	ack, err := client.SendEvent(ctx, roomID, messaging.EventTypeRoomMessage, messaging.TextMessage(text))
	s.ops.Finish(ticket, err)
	if err != nil {
		s.log.Error("Send failed", logger.RoomIDField(roomID), logger.ErrorField(err))
		return nil, err
	}

	s.mu.Lock()
	s.lastSend = &SendAck{RoomID: roomID, Body: text, EventID: ack.EventID}
	s.mu.Unlock()
	return ack, nil
}

// LastSend returns the most recent send acknowledgement.
func (s *Store) LastSend() (SendAck, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSend == nil {
		return SendAck{}, false
	}
	return *s.lastSend, true
}

// Room returns a snapshot of a discovered room.
func (s *Store) Room(roomID string) (Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return room.snapshot(), true
}

// Rooms returns snapshots of all discovered rooms in discovery order.
func (s *Store) Rooms() []Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Room, 0, len(s.roomOrder))
	for _, roomID := range s.roomOrder {
		out = append(out, s.rooms[roomID].snapshot())
	}
	return out
}

// LoginCredentials returns the current login snapshot, if any.
func (s *Store) LoginCredentials() (messaging.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.login == nil {
		return messaging.Credentials{}, false
	}
	return *s.login, true
}

// Registration returns the last registration response, if any.
func (s *Store) Registration() (messaging.Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.registration == nil {
		return messaging.Credentials{}, false
	}
	return *s.registration, true
}

// Close stops the client. The store cannot be re-initialised.
func (s *Store) Close() error {
	s.mu.Lock()
	client, unsubscribe := s.client, s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if client != nil {
		client.Stop()
	}
	return nil
}
