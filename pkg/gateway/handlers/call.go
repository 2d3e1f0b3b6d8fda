package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-go/voicegate/pkg/gateway/config"
	"github.com/vango-go/voicegate/pkg/gateway/lifecycle"
	"github.com/vango-go/voicegate/pkg/gateway/live/session"
	"github.com/vango-go/voicegate/pkg/gateway/live/sessions"
	"github.com/vango-go/voicegate/pkg/gateway/metrics"
	"github.com/vango-go/voicegate/pkg/gateway/mw"
	"github.com/vango-go/voicegate/pkg/store"
)

// CallHandler upgrades /call to a websocket and runs one call session on it.
type CallHandler struct {
	Config       config.Config
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Store        store.Store
	STT          session.STTProvider
	TTS          session.TTSProvider
	Reasoner     session.Reasoner
	Lifecycle    *lifecycle.Lifecycle
	LiveSessions *sessions.Tracker
}

func (h CallHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle.IsDraining() {
		http.Error(w, "gateway is draining", http.StatusServiceUnavailable)
		return
	}

	requestID, _ := mw.RequestIDFrom(r.Context())

	upgrader := websocket.Upgrader{
		HandshakeTimeout: h.Config.HandshakeTimeout,
		// The telephony provider connects server to server; there is no
		// browser origin to check.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sessionID := "call_" + randHex(8)

	s, err := session.New(session.Deps{
		Conn:      conn,
		Logger:    h.Logger,
		STT:       h.STT,
		TTS:       h.TTS,
		Reasoner:  h.Reasoner,
		Store:     h.Store,
		Metrics:   h.Metrics,
		SessionID: sessionID,
		RequestID: requestID,
		Config: session.Config{
			Greeting:           h.Config.Greeting,
			Voice:              h.Config.Voice,
			TTSModel:           h.Config.TTSModel,
			STTModel:           h.Config.STTModel,
			Language:           h.Config.Language,
			UtteranceEndMS:     h.Config.UtteranceEndMS,
			MaxSessionDuration: h.Config.MaxCallDuration,
			ReasonTimeout:      h.Config.ReasonTimeout,
			PingInterval:       h.Config.WSPingInterval,
			WriteTimeout:       h.Config.WSWriteTimeout,
			ReadTimeout:        h.Config.WSReadTimeout,
			MaxMessageBytes:    h.Config.MaxMessageBytes,
			OutboundQueueSize:  h.Config.OutboundQueueSize,
		},
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("failed to initialize call session", "session_id", sessionID, "request_id", requestID, "error", err)
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session init failed"),
			time.Now().Add(2*time.Second))
		return
	}

	unregister := h.LiveSessions.Register(sessionID, sessions.Handle{Cancel: s.Cancel})
	defer unregister()

	if err := s.Run(); err != nil {
		if h.Logger != nil {
			h.Logger.Warn("call session ended with error", "session_id", sessionID, "request_id", requestID, "error", err)
		}
	}
}

func randHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
