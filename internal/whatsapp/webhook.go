// Package whatsapp holds the WhatsApp Cloud API webhook shapes and the Graph
// API client used to reply.
package whatsapp

import (
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/wa-finance/internal/domain"
)

// Envelope is the webhook notification body posted by the Cloud API.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

type Value struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []Contact `json:"contacts"`
	Messages         []Message `json:"messages"`
	Statuses         []Status  `json:"statuses"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type Status struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}

type Message struct {
	ID          string       `json:"id"`
	From        string       `json:"from"`
	Timestamp   string       `json:"timestamp"`
	Type        string       `json:"type"`
	Text        *TextBody    `json:"text,omitempty"`
	Interactive *Interactive `json:"interactive,omitempty"`
}

type TextBody struct {
	Body string `json:"body"`
}

type Interactive struct {
	Type        string      `json:"type"`
	ButtonReply *ReplyTitle `json:"button_reply,omitempty"`
	ListReply   *ReplyTitle `json:"list_reply,omitempty"`
}

type ReplyTitle struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// StatusCount returns how many delivery status callbacks the envelope carries.
func (e *Envelope) StatusCount() int {
	n := 0
	for _, entry := range e.Entry {
		for _, ch := range entry.Changes {
			n += len(ch.Value.Statuses)
		}
	}
	return n
}

// Events flattens every message in the envelope into inbound events. Messages
// without an id cannot be deduplicated and are skipped; the count of skipped
// messages is returned alongside.
func (e *Envelope) Events() ([]domain.InboundEvent, int) {
	var (
		events  []domain.InboundEvent
		skipped int
	)
	for _, entry := range e.Entry {
		for _, ch := range entry.Changes {
			names := make(map[string]string, len(ch.Value.Contacts))
			for _, c := range ch.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range ch.Value.Messages {
				if m.ID == "" || m.From == "" {
					skipped++
					continue
				}
				kind, text := m.kindAndText()
				events = append(events, domain.InboundEvent{
					MessageID:  m.ID,
					SenderID:   m.From,
					SenderName: names[m.From],
					Kind:       kind,
					Text:       text,
					Timestamp:  parseEpoch(m.Timestamp),
				})
			}
		}
	}
	return events, skipped
}

func (m *Message) kindAndText() (domain.MessageKind, string) {
	switch m.Type {
	case "text":
		if m.Text == nil {
			return domain.KindText, ""
		}
		return domain.KindText, strings.TrimSpace(m.Text.Body)
	case "interactive":
		if m.Interactive == nil {
			return domain.KindOther, ""
		}
		if m.Interactive.Type == "button_reply" {
			if m.Interactive.ButtonReply == nil {
				return domain.KindInteractiveButton, ""
			}
			return domain.KindInteractiveButton, strings.TrimSpace(m.Interactive.ButtonReply.Title)
		}
		if m.Interactive.ListReply == nil {
			return domain.KindInteractiveList, ""
		}
		return domain.KindInteractiveList, strings.TrimSpace(m.Interactive.ListReply.Title)
	}
	return domain.KindOther, ""
}

func parseEpoch(s string) time.Time {
	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
