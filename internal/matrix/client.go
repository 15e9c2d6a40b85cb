// Package matrix adapts mautrix-go to the messaging.Client capability
// interface.
package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/lewisedginton/bot_manager_console/internal/messaging"
	"github.com/lewisedginton/bot_manager_console/pkg/logger"
)

// DefaultDeviceName is the initial display name of devices the console logs in.
const DefaultDeviceName = "bot manager console"

// Options configures clients built by NewFactory.
type Options struct {
	DeviceName string
	Logger     logger.Logger
}

// Client wraps a mautrix client.
type Client struct {
	cli        *mautrix.Client
	deviceName string
	log        logger.Logger

	mu        sync.Mutex
	listeners map[int]func(messaging.Update)
	nextID    int
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewFactory returns a messaging.Factory producing mautrix-backed clients.
func NewFactory(opts Options) messaging.Factory {
	return func(baseURL string, creds *messaging.Credentials) (messaging.Client, error) {
		return New(baseURL, creds, opts)
	}
}

// New creates a client for homeserverURL, bound to creds when they are
// well-formed.
func New(homeserverURL string, creds *messaging.Credentials, opts Options) (*Client, error) {
	var userID id.UserID
	var token string
	if creds.WellFormed() {
		userID = id.UserID(creds.UserID)
		token = creds.AccessToken
		if creds.HomeServer != "" && homeserverURL == "" {
			homeserverURL = creds.HomeServer
		}
	}

	cli, err := mautrix.NewClient(homeserverURL, userID, token)
	if err != nil {
		return nil, fmt.Errorf("create matrix client: %w", err)
	}
	if creds.WellFormed() {
		cli.DeviceID = id.DeviceID(creds.DeviceID)
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	deviceName := opts.DeviceName
	if deviceName == "" {
		deviceName = DefaultDeviceName
	}

	c := &Client{
		cli:        cli,
		deviceName: deviceName,
		log:        log.WithFields(logger.StringField("component", "matrix"), logger.StringField("homeserver", homeserverURL)),
		listeners:  make(map[int]func(messaging.Update)),
	}

	syncer, ok := cli.Syncer.(mautrix.ExtensibleSyncer)
	if !ok {
		return nil, fmt.Errorf("matrix syncer %T does not accept event handlers", cli.Syncer)
	}
	syncer.OnEvent(c.dispatch)
	return c, nil
}

// Start launches the sync loop. It is a no-op while a loop is running and
// relaunches one after the previous loop exited.
func (c *Client) Start(ctx context.Context) error {
	if c.cli.AccessToken == "" {
		return fmt.Errorf("start matrix client: not logged in")
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return nil
	}
	// The sync loop outlives the caller's context; Stop ends it.
	syncCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		err := c.cli.SyncWithContext(syncCtx)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Error("Matrix sync stopped", logger.ErrorField(err))
		}
		// A loop that ended on its own (e.g. an expired token) must not
		// block the next Start.
		c.mu.Lock()
		if c.done == done {
			c.cancel, c.done = nil, nil
		}
		c.mu.Unlock()
		cancel()
	}()
	c.log.Info("Matrix sync started", logger.StringField("user_id", c.cli.UserID.String()))
	return nil
}

// Syncing reports whether a sync loop is running.
func (c *Client) Syncing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done != nil
}

// Stop ends the sync loop and waits for it to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	c.cli.StopSync()
	cancel()
	<-done
}

// Register creates an account using the dummy auth flow.
func (c *Client) Register(ctx context.Context, username, password string) (*messaging.Credentials, error) {
	resp, err := c.cli.RegisterDummy(ctx, &mautrix.ReqRegister{
		Username:                 username,
		Password:                 password,
		InitialDeviceDisplayName: c.deviceName,
	})
	if err != nil {
		return nil, fmt.Errorf("register %q: %w", username, err)
	}
	c.cli.SetCredentials(resp.UserID, resp.AccessToken)
	c.cli.DeviceID = resp.DeviceID
	return &messaging.Credentials{
		AccessToken: resp.AccessToken,
		UserID:      resp.UserID.String(),
		DeviceID:    string(resp.DeviceID),
		HomeServer:  c.cli.HomeserverURL.String(),
	}, nil
}

// Login authenticates with a password and binds the client to the account.
func (c *Client) Login(ctx context.Context, username, password string) (*messaging.Credentials, error) {
	resp, err := c.cli.Login(ctx, &mautrix.ReqLogin{
		Type:                     mautrix.AuthTypePassword,
		Identifier:               mautrix.UserIdentifier{Type: mautrix.IdentifierTypeUser, User: username},
		Password:                 password,
		InitialDeviceDisplayName: c.deviceName,
		StoreCredentials:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("login %q: %w", username, err)
	}

	creds := &messaging.Credentials{
		AccessToken: resp.AccessToken,
		UserID:      resp.UserID.String(),
		DeviceID:    string(resp.DeviceID),
		HomeServer:  c.cli.HomeserverURL.String(),
	}
	if resp.WellKnown != nil {
		if raw, err := json.Marshal(resp.WellKnown); err == nil {
			creds.WellKnown = raw
		}
	}
	return creds, nil
}

// Rooms lists joined room ids.
func (c *Client) Rooms(ctx context.Context) ([]string, error) {
	resp, err := c.cli.JoinedRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list joined rooms: %w", err)
	}
	rooms := make([]string, 0, len(resp.JoinedRooms))
	for _, roomID := range resp.JoinedRooms {
		rooms = append(rooms, roomID.String())
	}
	return rooms, nil
}

// RoomTimeline fetches the most recent events of roomID, oldest first.
func (c *Client) RoomTimeline(ctx context.Context, roomID string, limit int) ([]messaging.Event, error) {
	resp, err := c.cli.Messages(ctx, id.RoomID(roomID), "", "", mautrix.DirectionBackward, nil, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch timeline of %s: %w", roomID, err)
	}
	events := make([]messaging.Event, len(resp.Chunk))
	// Backward pagination returns newest first.
	for i, evt := range resp.Chunk {
		events[len(resp.Chunk)-1-i] = convertEvent(evt)
	}
	return events, nil
}

// SendEvent sends a message event.
func (c *Client) SendEvent(ctx context.Context, roomID, eventType string, content any) (*messaging.SendResult, error) {
	evtType := event.Type{Type: eventType, Class: event.MessageEventType}
	resp, err := c.cli.SendMessageEvent(ctx, id.RoomID(roomID), evtType, content)
	if err != nil {
		return nil, fmt.Errorf("send %s to %s: %w", eventType, roomID, err)
	}
	return &messaging.SendResult{EventID: resp.EventID.String()}, nil
}

// Subscribe registers fn for every synced event.
func (c *Client) Subscribe(fn func(messaging.Update)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	listenerID := c.nextID
	c.nextID++
	c.listeners[listenerID] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, listenerID)
	}
}

func (c *Client) dispatch(_ context.Context, evt *event.Event) {
	if evt.RoomID == "" {
		return
	}
	update := messaging.Update{RoomID: evt.RoomID.String(), Event: convertEvent(evt)}

	c.mu.Lock()
	listeners := make([]func(messaging.Update), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(update)
	}
}

func convertEvent(evt *event.Event) messaging.Event {
	out := messaging.Event{
		ID:        evt.ID.String(),
		RoomID:    evt.RoomID.String(),
		Sender:    evt.Sender.String(),
		Type:      evt.Type.Type,
		StateKey:  evt.StateKey,
		Timestamp: time.UnixMilli(evt.Timestamp),
		Content:   json.RawMessage(evt.Content.VeryRaw),
	}
	if len(out.Content) == 0 && evt.Content.Raw != nil {
		if raw, err := json.Marshal(evt.Content.Raw); err == nil {
			out.Content = raw
		}
	}
	return out
}
