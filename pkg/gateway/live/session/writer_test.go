package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedWrite struct {
	messageType int
	data        string
}

type fakeWSWriter struct {
	mu     sync.Mutex
	writes []recordedWrite
}

func (f *fakeWSWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSWriter) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, recordedWrite{messageType: messageType, data: string(data)})
	return nil
}

func (f *fakeWSWriter) WriteControl(messageType int, data []byte, deadline time.Time) error {
	_ = deadline
	return f.WriteMessage(messageType, data)
}

func (f *fakeWSWriter) Close() error { return nil }

func (f *fakeWSWriter) snapshot() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func TestOutboundWriter_PriorityBeatsNormal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 1)

	normal <- outboundFrame{
		isAudio:    true,
		generation: 1,
		payload:    []byte(`{"event":"media","streamSid":"MZ1","media":{"payload":"AAAA"}}`),
	}
	priority <- outboundFrame{
		payload: []byte(`{"event":"clear","streamSid":"MZ1"}`),
	}
	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) == 0 {
		t.Fatalf("expected at least one write")
	}
	if !strings.Contains(writes[0].data, `"event":"clear"`) {
		t.Fatalf("first write was not clear: %q", writes[0].data)
	}
}

func TestOutboundWriter_CanceledGenerationDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 8)

	normal <- outboundFrame{isAudio: true, generation: 1, payload: []byte(`{"event":"media","media":{"payload":"AAAA"}}`)}
	normal <- outboundFrame{isAudio: true, generation: 1, payload: []byte(`{"event":"media","media":{"payload":"BBBB"}}`)}
	normal <- outboundFrame{isAudio: true, generation: 1, payload: []byte(`{"event":"mark","mark":{"name":"playback_complete"}}`)}

	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
		isCanceled: func(generation int64) bool {
			return generation <= 1
		},
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if writes := ws.snapshot(); len(writes) != 0 {
		t.Fatalf("expected zero writes, got %d: %+v", len(writes), writes)
	}
}

func TestOutboundWriter_NonAudioUnaffectedByCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 8)

	normal <- outboundFrame{payload: []byte(`{"event":"clear","streamSid":"MZ1"}`)}
	normal <- outboundFrame{payload: []byte(`{"event":"mark","streamSid":"MZ1","mark":{"name":"greeting"}}`)}

	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
		isCanceled: func(int64) bool {
			return true
		},
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if writes := ws.snapshot(); len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %d: %+v", len(writes), writes)
	}
}

func TestOutboundWriter_LiveGenerationWritten(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 2)

	normal <- outboundFrame{isAudio: true, generation: 2, payload: []byte(`{"event":"media","media":{"payload":"AAAA"}}`)}

	close(priority)
	close(normal)

	var wrote int
	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
		isCanceled: func(generation int64) bool {
			return generation <= 1
		},
		onWrite: func(outboundFrame) { wrote++ },
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if writes := ws.snapshot(); len(writes) != 1 {
		t.Fatalf("expected 1 write, got %d: %+v", len(writes), writes)
	}
	if wrote != 1 {
		t.Fatalf("onWrite calls = %d, want 1", wrote)
	}
}

func TestOutboundWriter_ExitsPromptlyOnCancelWhileIdle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	priority := make(chan outboundFrame)
	normal := make(chan outboundFrame)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
	}

	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	// Let the writer block in its idle select with no traffic queued, then
	// cancel. It must not wait out the ping interval before closing.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("writer did not exit promptly after cancel")
	}
}

func TestOutboundWriter_FlushesPriorityOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 1)

	priority <- outboundFrame{payload: []byte(`{"event":"clear","streamSid":"MZ1"}`)}
	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
	}

	cancel()
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) == 0 || !strings.Contains(writes[0].data, `"event":"clear"`) {
		t.Fatalf("expected clear to flush on shutdown, writes=%+v", writes)
	}
}
