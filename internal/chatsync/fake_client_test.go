package chatsync

import (
	"context"
	"errors"
	"sync"

	"github.com/lewisedginton/bot_manager_console/internal/messaging"
)

// fakeClient records calls and lets tests push live updates.
type fakeClient struct {
	mu sync.Mutex

	baseURL string
	creds   *messaging.Credentials

	rooms     []string
	timelines map[string][]messaging.Event
	loginResp *messaging.Credentials
	loginErr  error
	roomsErr  error
	sendErr   error

	starts     int
	stops      int
	subscribes int
	listeners  []func(messaging.Update)
	sent       []sentEvent
}

type sentEvent struct {
	RoomID  string
	Type    string
	Content any
}

func (f *fakeClient) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return nil
}

func (f *fakeClient) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeClient) Register(_ context.Context, username, _ string) (*messaging.Credentials, error) {
	return &messaging.Credentials{AccessToken: "reg-token", UserID: "@" + username + ":example.org", DeviceID: "REG"}, nil
}

func (f *fakeClient) Login(context.Context, string, string) (*messaging.Credentials, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return f.loginResp, nil
}

func (f *fakeClient) Rooms(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roomsErr != nil {
		return nil, f.roomsErr
	}
	return append([]string(nil), f.rooms...), nil
}

func (f *fakeClient) RoomTimeline(_ context.Context, roomID string, limit int) ([]messaging.Event, error) {
	events := f.timelines[roomID]
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (f *fakeClient) SendEvent(_ context.Context, roomID, eventType string, content any) (*messaging.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, sentEvent{RoomID: roomID, Type: eventType, Content: content})
	return &messaging.SendResult{EventID: "$ack"}, nil
}

func (f *fakeClient) Subscribe(fn func(messaging.Update)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	f.listeners = append(f.listeners, fn)
	idx := len(f.listeners) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listeners[idx] = nil
	}
}

func (f *fakeClient) emit(update messaging.Update) {
	f.mu.Lock()
	listeners := append(([]func(messaging.Update))(nil), f.listeners...)
	f.mu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(update)
		}
	}
}

// fakeFactory hands out one fakeClient and remembers how it was built.
type fakeFactory struct {
	client *fakeClient
	calls  int
	err    error
}

func (ff *fakeFactory) build(baseURL string, creds *messaging.Credentials) (messaging.Client, error) {
	ff.calls++
	if ff.err != nil {
		return nil, ff.err
	}
	ff.client.baseURL = baseURL
	ff.client.creds = creds
	return ff.client, nil
}

var errBoom = errors.New("boom")
