// Package transport defines the normalized inbound events and outbound
// messages exchanged with the chat transport. The engine emits outbound
// messages; how they are rendered (widgets, reply keyboards) is the
// transport's concern.
package transport

import (
	"github.com/dkarpov/fitbot/internal/model"
)

// EventType classifies a normalized inbound event.
type EventType string

const (
	EventStart   EventType = "start"
	EventRestart EventType = "restart"
	EventRewind  EventType = "rewind"
	EventHelp    EventType = "help"
	EventText    EventType = "text"
	EventChoice  EventType = "choice"
	EventImage   EventType = "image"
)

// Event is one inbound transport event for a single user. Payload holds
// the typed text, the chosen widget value, or an image reference,
// depending on the type.
type Event struct {
	Type     EventType `json:"type"`
	Payload  string    `json:"payload,omitempty"`
	UserInfo string    `json:"user_info,omitempty"`
}

// MessageKind classifies an outbound message.
type MessageKind string

const (
	// MessageText is a plain informational text.
	MessageText MessageKind = "text"
	// MessagePrompt asks for a free-text reply, optionally hinting with
	// a placeholder.
	MessagePrompt MessageKind = "prompt"
	// MessageBooleanPrompt asks for a yes/no choice.
	MessageBooleanPrompt MessageKind = "boolean_prompt"
	// MessageOptionsPrompt asks to pick one of the listed options.
	MessageOptionsPrompt MessageKind = "options_prompt"
	// MessagePicturePrompt asks the user to send an image.
	MessagePicturePrompt MessageKind = "picture_prompt"
	// MessagePre is a question's introductory text, optionally with a
	// link.
	MessagePre MessageKind = "pre_message"
	// MessageErrors carries the validation error list for an invalid
	// answer.
	MessageErrors MessageKind = "errors"
)

// Message is one outbound message. Only the fields relevant to its kind
// are set.
type Message struct {
	Kind        MessageKind    `json:"kind"`
	Text        string         `json:"text,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
	Options     []model.Option `json:"options,omitempty"`
	Link        *model.Link    `json:"link,omitempty"`
	Errors      []string       `json:"errors,omitempty"`
}

func Text(text string) Message {
	return Message{Kind: MessageText, Text: text}
}

func Prompt(text, placeholder string) Message {
	return Message{Kind: MessagePrompt, Text: text, Placeholder: placeholder}
}

func BooleanPrompt(text string) Message {
	return Message{Kind: MessageBooleanPrompt, Text: text}
}

func OptionsPrompt(text string, options []model.Option) Message {
	return Message{Kind: MessageOptionsPrompt, Text: text, Options: options}
}

func PicturePrompt(text string) Message {
	return Message{Kind: MessagePicturePrompt, Text: text}
}

func Pre(pm *model.PreMessage) Message {
	return Message{Kind: MessagePre, Text: pm.Text, Link: pm.Link}
}

func Errors(errs []string) Message {
	return Message{Kind: MessageErrors, Errors: errs}
}
