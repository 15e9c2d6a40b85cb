// Package messaging is the narrow capability surface the chat sync store
// needs from a messaging SDK. The Matrix adapter in internal/matrix is the
// production implementation; tests substitute fakes.
package messaging

import (
	"context"
	"encoding/json"
	"time"
)

// Event types and message types sent by the console.
const (
	EventTypeRoomMessage = "m.room.message"
	MsgTypeText          = "m.text"
)

// Credentials is the login snapshot persisted between runs.
type Credentials struct {
	AccessToken string          `json:"access_token"`
	UserID      string          `json:"user_id"`
	DeviceID    string          `json:"device_id,omitempty"`
	HomeServer  string          `json:"home_server,omitempty"`
	WellKnown   json.RawMessage `json:"well_known,omitempty"`
}

// WellFormed reports whether the credentials can start an authenticated
// client.
func (c *Credentials) WellFormed() bool {
	return c != nil && c.AccessToken != "" && c.UserID != ""
}

// Event is one room event.
type Event struct {
	ID        string          `json:"event_id"`
	RoomID    string          `json:"room_id"`
	Sender    string          `json:"sender"`
	Type      string          `json:"type"`
	StateKey  *string         `json:"state_key,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Content   json.RawMessage `json:"content"`
}

// IsState reports whether the event is a state event.
func (e Event) IsState() bool {
	return e.StateKey != nil
}

// Body returns the message body of an m.room.message event, or "".
func (e Event) Body() string {
	var content MessageContent
	if err := json.Unmarshal(e.Content, &content); err != nil {
		return ""
	}
	return content.Body
}

// Update is a live change pushed for one room.
type Update struct {
	RoomID string
	Event  Event
}

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// TextMessage returns m.text content carrying body.
func TextMessage(body string) MessageContent {
	return MessageContent{MsgType: MsgTypeText, Body: body}
}

// SendResult acknowledges a sent event.
type SendResult struct {
	EventID string `json:"event_id"`
}

// Client is a messaging SDK client bound to one homeserver and, optionally,
// one account.
type Client interface {
	// Start begins syncing in the background. It returns once the sync loop
	// has been launched.
	Start(ctx context.Context) error
	// Stop ends the sync loop. Idempotent.
	Stop()
	// Register creates an account and binds the client to it.
	Register(ctx context.Context, username, password string) (*Credentials, error)
	// Login authenticates and binds the client to the account.
	Login(ctx context.Context, username, password string) (*Credentials, error)
	// Rooms lists the rooms the account has joined.
	Rooms(ctx context.Context) ([]string, error)
	// RoomTimeline returns up to limit recent events of a room, oldest first.
	RoomTimeline(ctx context.Context, roomID string, limit int) ([]Event, error)
	// SendEvent sends a message event and returns its acknowledgement.
	SendEvent(ctx context.Context, roomID, eventType string, content any) (*SendResult, error)
	// Subscribe registers fn for live updates. The returned func removes it.
	Subscribe(fn func(Update)) (unsubscribe func())
}

// Factory creates a client for baseURL. creds may be nil for an anonymous
// client that can only register or log in.
type Factory func(baseURL string, creds *Credentials) (Client, error)
