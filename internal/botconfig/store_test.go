package botconfig

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewisedginton/bot_manager_console/pkg/opstatus"
)

// fakeBackend stores the document server-side and records requests.
type fakeBackend struct {
	mu      sync.Mutex
	doc     *Document
	methods []string
	err     error
	// canonicalize mutates the stored document the way a backend might.
	canonicalize func(*Document)
}

func (f *fakeBackend) Do(_ context.Context, method, path string, body, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, method+" "+path)
	if f.err != nil {
		return f.err
	}
	if method != http.MethodGet {
		f.doc = body.(*Document).Clone()
		if f.canonicalize != nil {
			f.canonicalize(f.doc)
		}
	}
	data, err := json.Marshal(f.doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func sampleDocument() *Document {
	doc := DefaultDocument()
	doc.BotConfig.ProfileName = "helper"
	doc.BotMemory.Messages["1700000000.5"] = MemoryMessage{Role: RoleUser, Content: "hi"}
	return doc
}

func TestFetchOverwritesCache(t *testing.T) {
	backend := &fakeBackend{doc: sampleDocument()}
	store := NewStore(backend, Options{})
	assert.Nil(t, store.Document())

	store.SetDocument(&Document{BotConfig: BotConfig{ProfileName: "local edit"}})
	require.NoError(t, store.Fetch(context.Background()))

	assert.Equal(t, "helper", store.Document().BotConfig.ProfileName)
	assert.Equal(t, []string{"GET /config"}, backend.methods)
	assert.Equal(t, opstatus.Succeeded, store.Status(OpFetch).Status)
}

func TestFetchFailureKeepsCache(t *testing.T) {
	backend := &fakeBackend{doc: sampleDocument()}
	store := NewStore(backend, Options{})
	require.NoError(t, store.Fetch(context.Background()))

	backend.err = errors.New("connection refused")
	err := store.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, "helper", store.Document().BotConfig.ProfileName)

	snap := store.Status(OpFetch)
	assert.Equal(t, opstatus.Failed, snap.Status)
	assert.ErrorIs(t, snap.Err, backend.err)
}

func TestUpdateSendsWholeDocumentAndAdoptsEcho(t *testing.T) {
	tests := []struct {
		name   string
		method string
		want   string
	}{
		{"default post", "", "POST /config"},
		{"put", http.MethodPut, "PUT /config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{
				doc: sampleDocument(),
				canonicalize: func(d *Document) {
					d.BotConfig.ProfileName = d.BotConfig.ProfileName + " (saved)"
				},
			}
			store := NewStore(backend, Options{UpdateMethod: tt.method})
			require.NoError(t, store.Fetch(context.Background()))

			require.NoError(t, store.Edit(func(d *Document) {
				d.BotConfig.ProfileName = "renamed"
				d.BotConfig.Bot["model_name"] = "gpt-4o"
			}))
			require.NoError(t, store.Update(context.Background()))

			assert.Equal(t, []string{"GET /config", tt.want}, backend.methods)
			assert.Equal(t, "renamed (saved)", store.Document().BotConfig.ProfileName)
			assert.Equal(t, "gpt-4o", backend.doc.BotConfig.Bot.String("model_name"))
			assert.Len(t, backend.doc.BotMemory.Messages, 1, "memory travels with the document")
		})
	}
}

func TestUpdateWithoutDocument(t *testing.T) {
	backend := &fakeBackend{}
	store := NewStore(backend, Options{})
	assert.Error(t, store.Update(context.Background()))
	assert.Error(t, store.Edit(func(*Document) {}))
	assert.Empty(t, backend.methods)
}

func TestDocumentReturnsCopy(t *testing.T) {
	store := NewStore(&fakeBackend{}, Options{})
	store.SetDocument(sampleDocument())

	doc := store.Document()
	doc.BotConfig.ProfileName = "mutated"
	doc.BotMemory.Messages["x"] = MemoryMessage{}

	again := store.Document()
	assert.Equal(t, "helper", again.BotConfig.ProfileName)
	assert.Len(t, again.BotMemory.Messages, 1)
}

func TestObserverSeesTransitions(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	store := NewStore(&fakeBackend{doc: sampleDocument()}, Options{Observer: func(op string, st opstatus.Status) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, op+":"+st.String())
	}})
	require.NoError(t, store.Fetch(context.Background()))
	assert.Equal(t, []string{"fetch_config:pending", "fetch_config:succeeded"}, seen)
}
