// Package audit records security-relevant protocol events: token issuance,
// revocations, rejected grants, denied device authorizations. Publishers are
// fire-and-forget; a failing sink must never fail the request that produced
// the event.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event categories.
const (
	CategoryToken  = "token"
	CategoryGrant  = "grant"
	CategoryDevice = "device"
)

// Event is a single security event.
type Event struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Category  string    `json:"category"`
	Action    string    `json:"action"`
	ClientID  string    `json:"client_id,omitempty"`
	SubjectID string    `json:"subject_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
}

// NewEvent stamps an event with an id and timestamp.
func NewEvent(category, action, clientID, subjectID, outcome string) Event {
	return Event{
		ID:        uuid.NewString(),
		Time:      time.Now().UTC(),
		Category:  category,
		Action:    action,
		ClientID:  clientID,
		SubjectID: subjectID,
		Outcome:   outcome,
	}
}

// Publisher delivers events to a sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Memory keeps published events in process. Used in tests and when no broker
// is configured.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
