package botconfig

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/google/uuid"
)

// Role tags a remembered message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Settings is a free-form settings section. Values are whatever JSON the
// backend stores (strings, numbers, null).
type Settings map[string]any

// String returns the setting as a string, or "" when missing or not a string.
func (s Settings) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// BotConfig is the bot identity plus its interface settings.
type BotConfig struct {
	ID               string   `json:"id"`
	ProfileName      string   `json:"profile_name"`
	MessageInterface Settings `json:"message_interface"`
	WebInterface     Settings `json:"web_interface"`
	Bot              Settings `json:"bot"`
}

// MemoryMessage is one remembered conversation turn.
type MemoryMessage struct {
	Content string `json:"content"`
	Role    Role   `json:"role"`
}

// BotMemory is the bot's long-term memory.
type BotMemory struct {
	MindMap           string                   `json:"mind_map"`
	PeriodicSummaries json.RawMessage          `json:"periodic_summaries,omitempty"`
	Messages          map[string]MemoryMessage `json:"messages"`
}

// Document is the whole configuration document owned by the backend.
type Document struct {
	BotConfig BotConfig `json:"bot_config"`
	BotMemory BotMemory `json:"bot_memory"`
}

// TimedMessage is a memory message with its parsed timestamp key.
type TimedMessage struct {
	Key       string
	Timestamp float64
	MemoryMessage
}

// OrderedMessages returns the memory messages oldest first. Keys that are
// not numeric sort after all timestamps, lexically.
func (d *Document) OrderedMessages() []TimedMessage {
	out := make([]TimedMessage, 0, len(d.BotMemory.Messages))
	for key, msg := range d.BotMemory.Messages {
		ts, err := strconv.ParseFloat(key, 64)
		if err != nil {
			ts = -1
		}
		out = append(out, TimedMessage{Key: key, Timestamp: ts, MemoryMessage: msg})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Timestamp < 0) != (b.Timestamp < 0) {
			return a.Timestamp >= 0
		}
		if a.Timestamp != b.Timestamp {
			return a.Timestamp < b.Timestamp
		}
		return a.Key < b.Key
	})
	return out
}

// LastMessages returns up to n most recent memory messages, oldest first.
func (d *Document) LastMessages(n int) []TimedMessage {
	ordered := d.OrderedMessages()
	if n <= 0 {
		return nil
	}
	if n >= len(ordered) {
		return ordered
	}
	return ordered[len(ordered)-n:]
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		panic(err) // Document only holds JSON-encodable values.
	}
	var out Document
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return &out
}

// DefaultDocument returns the configuration a fresh bot starts with.
func DefaultDocument() *Document {
	return &Document{
		BotConfig: BotConfig{
			ID:          uuid.NewString(),
			ProfileName: "anon bot",
			Bot: Settings{
				"bot_name":          nil,
				"bot_timeout":       86400,
				"profile_file_name": "default",
				"model_name":        "gpt-4o-mini",
				"model_api_key":     nil,
				"model_api_url":     "https://api.openai.com/v1/chat/completions",
			},
			WebInterface: Settings{
				"web_interface_port":    5000,
				"web_interface_api_key": uuid.NewString(),
			},
			MessageInterface: Settings{
				"matrix_user_name":     nil,
				"matrix_user_password": nil,
				"matrix_server":        "matrix.org",
			},
		},
		BotMemory: BotMemory{
			PeriodicSummaries: json.RawMessage(`{}`),
			Messages:          map[string]MemoryMessage{},
		},
	}
}
