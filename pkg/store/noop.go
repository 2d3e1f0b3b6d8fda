package store

import (
	"context"

	"github.com/google/uuid"
)

// Noop is a Store that records nothing. It backs deployments without a
// database and keeps the session code free of nil checks.
type Noop struct{}

// NewNoop returns a store that discards every write.
func NewNoop() *Noop { return &Noop{} }

func (*Noop) OpenCall(context.Context, string, string) (string, error) {
	return uuid.NewString(), nil
}

func (*Noop) CloseCall(context.Context, string) error { return nil }

func (*Noop) RecordTurn(context.Context, string, Role, string) error { return nil }

func (*Noop) RecordIntent(context.Context, string, string, bool, map[string]any) error {
	return nil
}

func (*Noop) Close() {}
