// Package handlers holds the gateway's HTTP and websocket endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/vango-go/voicegate/pkg/gateway/config"
	"github.com/vango-go/voicegate/pkg/gateway/lifecycle"
	"github.com/vango-go/voicegate/pkg/gateway/live/sessions"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
	Sessions  *sessions.Tracker
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK                 bool     `json:"ok"`
		Draining           bool     `json:"draining"`
		PersistenceEnabled bool     `json:"persistence_enabled"`
		LiveCalls          int      `json:"live_calls"`
		Issues             []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "gateway is draining")
	}
	if h.Config.DeepgramAPIKey == "" {
		issues = append(issues, "recognizer api key missing")
	}
	if h.Config.ElevenLabsAPIKey == "" {
		issues = append(issues, "synthesizer api key missing")
	}
	if h.Config.OpenAIAPIKey == "" {
		issues = append(issues, "reasoning api key missing")
	}
	if h.Config.Voice == "" {
		issues = append(issues, "voice id missing")
	}
	if h.Config.MaxCallDuration <= 0 || h.Config.ReasonTimeout <= 0 {
		issues = append(issues, "call timeouts must be > 0")
	}
	if h.Config.WSPingInterval <= 0 || h.Config.WSWriteTimeout <= 0 {
		issues = append(issues, "websocket timeouts must be > 0")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{
		OK:                 ok,
		Draining:           draining,
		PersistenceEnabled: h.Config.DatabaseURL != "",
		LiveCalls:          h.Sessions.Count(),
		Issues:             issues,
	})
}
