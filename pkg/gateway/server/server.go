// Package server assembles the gateway's HTTP surface.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vango-go/voicegate/pkg/core/reason"
	"github.com/vango-go/voicegate/pkg/core/voice/stt"
	"github.com/vango-go/voicegate/pkg/core/voice/tts"
	"github.com/vango-go/voicegate/pkg/gateway/config"
	"github.com/vango-go/voicegate/pkg/gateway/handlers"
	"github.com/vango-go/voicegate/pkg/gateway/lifecycle"
	"github.com/vango-go/voicegate/pkg/gateway/live/session"
	"github.com/vango-go/voicegate/pkg/gateway/live/sessions"
	"github.com/vango-go/voicegate/pkg/gateway/metrics"
	"github.com/vango-go/voicegate/pkg/gateway/mw"
	"github.com/vango-go/voicegate/pkg/store"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	metrics   *metrics.Metrics
	store     store.Store
	stt       session.STTProvider
	tts       session.TTSProvider
	reasoner  session.Reasoner
	lifecycle *lifecycle.Lifecycle
	sessions  *sessions.Tracker
}

// Deps lets callers swap the call dependencies; zero-value fields fall back
// to the real providers built from the config.
type Deps struct {
	Store    store.Store
	STT      session.STTProvider
	TTS      session.TTSProvider
	Reasoner session.Reasoner
	Metrics  *metrics.Metrics
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Store == nil {
		deps.Store = store.NewNoop()
	}
	if deps.STT == nil {
		deps.STT = session.STTProviderAdapter{
			Provider: stt.NewDeepgramWithBaseURL(cfg.DeepgramAPIKey, cfg.DeepgramBaseURL),
		}
	}
	if deps.TTS == nil {
		deps.TTS = session.TTSProviderAdapter{
			Provider: tts.NewElevenLabsWithBaseURL(cfg.ElevenLabsAPIKey, cfg.ElevenLabsBaseURL),
		}
	}
	if deps.Reasoner == nil {
		deps.Reasoner = reason.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(cfg.MetricsNamespace)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		metrics:   deps.Metrics,
		store:     deps.Store,
		stt:       deps.STT,
		tts:       deps.TTS,
		reasoner:  deps.Reasoner,
		lifecycle: &lifecycle.Lifecycle{},
		sessions:  sessions.NewTracker(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
	})
	s.mux.Handle("/metrics", s.metrics.Handler())
	s.mux.Handle("/twiml", handlers.TwiMLHandler{Config: s.cfg})

	s.mux.Handle("/call", handlers.CallHandler{
		Config:       s.cfg,
		Logger:       s.logger,
		Metrics:      s.metrics,
		Store:        s.store,
		STT:          s.stt,
		TTS:          s.tts,
		Reasoner:     s.reasoner,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.sessions,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining stops readiness and refuses new call upgrades. Calls already
// in flight keep running until they finish or are canceled.
func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

func (s *Server) LiveCalls() int {
	return s.sessions.Count()
}

// WaitLiveCalls blocks until every live call has ended or the context ends.
// It reports whether the drain completed.
func (s *Server) WaitLiveCalls(ctx context.Context) bool {
	return s.sessions.Wait(ctx)
}

// CancelLiveCalls asks every live call to shut down now.
func (s *Server) CancelLiveCalls() int {
	return s.sessions.CancelAll()
}
