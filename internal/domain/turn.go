// Package domain contains core domain types for Codebot.
package domain

import (
	"encoding/json"
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	// RoleUser marks a turn written by the user or a retry prompt built on their behalf.
	RoleUser Role = "user"
	// RoleAssistant marks a turn returned by the model.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Variant is a UI hint attached to assistant-authored notifications.
type Variant string

const (
	VariantInfo    Variant = "info"
	VariantError   Variant = "error"
	VariantSuccess Variant = "success"
)

// DefaultConversationID is used when a client does not name a conversation.
const DefaultConversationID int64 = 1

// Turn is one persisted message in a conversation.
type Turn struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Variant        Variant   `json:"variant,omitempty"`
	Extra          string    `json:"extra,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// TurnMeta is the JSON document stored in the extra column.
type TurnMeta struct {
	Variant Variant `json:"variant,omitempty"`
	Attempt int     `json:"attempt,omitempty"`
}

// EncodeMeta serializes meta for the extra column. Empty meta encodes to "".
func EncodeMeta(meta TurnMeta) string {
	if meta == (TurnMeta{}) {
		return ""
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(data)
}

// DecodeMeta parses the extra column. Unparseable values yield empty meta.
func DecodeMeta(extra string) TurnMeta {
	var meta TurnMeta
	if extra == "" {
		return meta
	}
	if err := json.Unmarshal([]byte(extra), &meta); err != nil {
		return TurnMeta{}
	}
	return meta
}

// Message is the role/content pair sent to the model as context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Messages maps turns to model context in replay order.
func Messages(turns []Turn) []Message {
	out := make([]Message, 0, len(turns))
	for _, t := range turns {
		out = append(out, Message{Role: t.Role, Content: t.Content})
	}
	return out
}
