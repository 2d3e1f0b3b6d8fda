package store

import (
	"context"
	"testing"
)

func TestNoopStore(t *testing.T) {
	s := NewNoop()
	ctx := context.Background()

	id, err := s.OpenCall(ctx, "MZ1", "CA1")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("OpenCall returned empty id")
	}

	id2, err := s.OpenCall(ctx, "MZ2", "CA2")
	if err != nil {
		t.Fatal(err)
	}
	if id2 == id {
		t.Fatal("OpenCall ids must be unique")
	}

	if err := s.RecordTurn(ctx, id, RoleCaller, "hello"); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordIntent(ctx, id, "greeting", false, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.CloseCall(ctx, id); err != nil {
		t.Fatal(err)
	}
	// Closing twice is fine.
	if err := s.CloseCall(ctx, id); err != nil {
		t.Fatal(err)
	}
	s.Close()
}
