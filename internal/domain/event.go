package domain

import "time"

// MessageKind is the shape of an inbound WhatsApp message.
type MessageKind string

const (
	KindText              MessageKind = "text"
	KindInteractiveButton MessageKind = "interactive-button"
	KindInteractiveList   MessageKind = "interactive-list"
	KindOther             MessageKind = "other"
)

// InboundEvent is one WhatsApp message delivered by the webhook. MessageID is
// the only deduplication key; the provider may deliver the same message more
// than once.
type InboundEvent struct {
	MessageID  string      `json:"message_id"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name,omitempty"`
	Kind       MessageKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// ChatContext is the minimal sender context forwarded to the chat responder.
type ChatContext struct {
	SenderName string `json:"contactName,omitempty"`
	SenderID   string `json:"waId,omitempty"`
}
