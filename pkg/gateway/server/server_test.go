package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/voicegate/pkg/core/reason"
	"github.com/vango-go/voicegate/pkg/gateway/config"
	"github.com/vango-go/voicegate/pkg/gateway/live/session"
)

type stubSTTProvider struct{}

func (stubSTTProvider) NewSession(context.Context, session.STTConfig) (session.STTSession, error) {
	return nil, context.Canceled
}

type stubTTSProvider struct{}

func (stubTTSProvider) NewSession(context.Context, session.TTSConfig) (session.TTSSession, error) {
	return nil, context.Canceled
}

type stubReasoner struct{}

func (stubReasoner) Infer(context.Context, string) (reason.Result, error) {
	return reason.Fallback(), nil
}

func serverTestConfig() config.Config {
	return config.Config{
		PublicHost:       "gw.example.com",
		DeepgramAPIKey:   "dg_test",
		ElevenLabsAPIKey: "el_test",
		OpenAIAPIKey:     "sk_test",
		Voice:            "voice_test",
		Greeting:         "Hello!",
		MaxCallDuration:  time.Hour,
		ReasonTimeout:    15 * time.Second,
		WSPingInterval:   20 * time.Second,
		WSWriteTimeout:   5 * time.Second,
		MetricsNamespace: "voicegate",
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(serverTestConfig(), logger, Deps{
		STT:      stubSTTProvider{},
		TTS:      stubTTSProvider{},
		Reasoner: stubReasoner{},
	})
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header from middleware chain")
	}
}

func TestServer_ReadyzFlipsWhileDraining(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status before drain = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	srv.SetDraining()

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status while draining = %d, want 503", rec.Code)
	}
}

func TestServer_TwimlPointsAtCallEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/twiml", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "wss://gw.example.com/call") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestServer_MetricsExposed(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServer_WaitLiveCallsWithNoneActive(t *testing.T) {
	srv := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if !srv.WaitLiveCalls(ctx) {
		t.Fatal("WaitLiveCalls must complete immediately with no live calls")
	}
	if srv.LiveCalls() != 0 {
		t.Fatalf("LiveCalls = %d, want 0", srv.LiveCalls())
	}
}
