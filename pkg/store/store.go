// Package store persists call records, conversation turns, and recognized
// intents. Persistence is best effort: the live session never blocks or fails
// because a write did.
package store

import (
	"context"
	"time"
)

// Role identifies the speaker of a turn.
type Role string

const (
	RoleCaller Role = "caller"
	RoleAgent  Role = "agent"
)

// Call is one telephone call from transport connect to teardown.
type Call struct {
	ID        string
	StreamSid string
	CallSid   string
	StartedAt time.Time
	EndedAt   *time.Time
}

// Turn is one utterance within a call.
type Turn struct {
	CallID    string
	Role      Role
	Text      string
	CreatedAt time.Time
}

// Intent is the recognized intent for one caller turn. Slots holds extracted
// values as a JSON object.
type Intent struct {
	CallID    string
	Name      string
	Escalate  bool
	Slots     map[string]any
	CreatedAt time.Time
}

// Store records the lifecycle of a call. Implementations must be safe for
// concurrent use across sessions.
type Store interface {
	// OpenCall records the start of a call and returns its id.
	OpenCall(ctx context.Context, streamSid, callSid string) (string, error)
	// CloseCall stamps the call's end time. Closing an unknown or already
	// closed call is not an error.
	CloseCall(ctx context.Context, callID string) error
	// RecordTurn appends one utterance to the call transcript.
	RecordTurn(ctx context.Context, callID string, role Role, text string) error
	// RecordIntent appends a recognized intent for the call.
	RecordIntent(ctx context.Context, callID string, name string, escalate bool, slots map[string]any) error
	// Close releases the store's resources.
	Close()
}
