// Package session holds the conversation state for onboarding sessions and
// the Store abstraction for persisting them. One Session aggregates every
// per-conversation slot (field list, history, index pointer, extracted
// values) so a save is all-or-nothing rather than a series of partial
// key writes.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/fieldflow-ai/fieldflow/internal/field"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single entry in the conversation history. History is
// append-only; messages are never mutated after being appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

// Session is the full state of one onboarding conversation.
type Session struct {
	ID           string            `json:"id"`
	Fields       []field.Spec      `json:"fields"`
	CurrentIndex int               `json:"current_index"`
	CurrentField string            `json:"current_field"`
	History      []Message         `json:"history"`
	Extracted    map[string]string `json:"extracted"`
	Completed    bool              `json:"completed"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// New creates a session over the given field specs. An empty id gets a
// generated UUID.
func New(id string, fields []field.Spec) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	s := &Session{
		ID:        id,
		Fields:    fields,
		Extracted: make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(fields) > 0 {
		s.CurrentField = fields[0].Name
	}
	return s
}

// Append adds a message to the history and returns it.
func (s *Session) Append(role Role, content string) Message {
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		SessionID: s.ID,
	}
	s.History = append(s.History, msg)
	return msg
}

// Pending returns the field spec currently awaiting an answer.
func (s *Session) Pending() (field.Spec, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Fields) {
		return field.Spec{}, false
	}
	return s.Fields[s.CurrentIndex], true
}

// Advance moves the pointer to the next field. The index is written before
// the field name so the two can never disagree on which field is pending.
func (s *Session) Advance() {
	next := s.CurrentIndex + 1
	if next >= len(s.Fields) {
		return
	}
	s.CurrentIndex = next
	s.CurrentField = s.Fields[next].Name
}

// Clone returns a deep copy, so stored state cannot alias live state.
func (s *Session) Clone() *Session {
	c := *s
	c.Fields = make([]field.Spec, len(s.Fields))
	copy(c.Fields, s.Fields)
	for i, f := range s.Fields {
		if f.Rules != nil {
			c.Fields[i].Rules = append([]string(nil), f.Rules...)
		}
	}
	c.History = append([]Message(nil), s.History...)
	c.Extracted = make(map[string]string, len(s.Extracted))
	for k, v := range s.Extracted {
		c.Extracted[k] = v
	}
	return &c
}
