// Package events carries progress and results from the orchestrator to
// connected browsers, and questions from browsers to the orchestrator.
package events

import (
	"encoding/json"

	"github.com/ashureev/codebot/internal/domain"
)

// Event names on the wire.
const (
	EventWelcome        = "welcome"
	EventSubmitQuestion = "client:submit:question"
	EventAnswer         = "server:return:question:answer"
	EventProgress       = "server:compile:progress"
	EventError          = "server:error"
)

// Event is one frame: {"event": name, "data": payload}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Notification is the chat-turn-shaped payload of every server event.
type Notification struct {
	Role      domain.Role    `json:"role"`
	Content   string         `json:"content"`
	Variant   domain.Variant `json:"variant"`
	IsPending *bool          `json:"isPending,omitempty"`
}

// SubmitQuestion is the payload of client:submit:question.
type SubmitQuestion struct {
	Content string `json:"content"`
}

// inboundFrame defers payload decoding until the event name is known.
type inboundFrame struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// Welcome greets a freshly connected client.
func Welcome() Event {
	return Event{Name: EventWelcome, Data: Notification{
		Role:    domain.RoleAssistant,
		Content: "Welcome",
		Variant: domain.VariantInfo,
	}}
}

// Answer carries model output or a final verdict. pending marks answers whose
// code is still being verified.
func Answer(content string, variant domain.Variant, pending bool) Event {
	n := Notification{Role: domain.RoleAssistant, Content: content, Variant: variant}
	if pending {
		n.IsPending = &pending
	}
	return Event{Name: EventAnswer, Data: n}
}

// Progress is a toolchain status line.
func Progress(content string) Event {
	return Event{Name: EventProgress, Data: Notification{
		Role:    domain.RoleAssistant,
		Content: content,
		Variant: domain.VariantInfo,
	}}
}

// Error reports a fault that ended a submission or a rejected frame.
func Error(content string) Event {
	return Event{Name: EventError, Data: Notification{
		Role:    domain.RoleAssistant,
		Content: content,
		Variant: domain.VariantError,
	}}
}
