// Package session runs one telephone call: it bridges the telephony media
// stream to speech recognition, reasoning, and speech synthesis, and owns all
// per-call state on a single goroutine.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-go/voicegate/pkg/core/audio"
	"github.com/vango-go/voicegate/pkg/core/reason"
	"github.com/vango-go/voicegate/pkg/core/voice/stt"
	"github.com/vango-go/voicegate/pkg/core/voice/tts"
	"github.com/vango-go/voicegate/pkg/gateway/live/protocol"
	"github.com/vango-go/voicegate/pkg/gateway/metrics"
	"github.com/vango-go/voicegate/pkg/store"
)

const (
	outboundPriorityQueueSize = 8
	persistCloseWait          = 2 * time.Second
)

// State is the lifecycle phase of a session.
type State int

const (
	StateConnecting State = iota
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type STTConfig struct {
	Model          string
	Language       string
	Encoding       string
	SampleRate     int
	UtteranceEndMS int
}

type STTSession interface {
	SendAudio([]byte) error
	Segments() <-chan stt.Segment
	Close() error
}

type STTProvider interface {
	NewSession(ctx context.Context, cfg STTConfig) (STTSession, error)
}

type TTSConfig struct {
	Voice        string
	Model        string
	OutputFormat string
}

type TTSSession interface {
	SendText(ctx context.Context, text string, trigger bool) error
	Chunks() <-chan tts.Chunk
	Close() error
}

type TTSProvider interface {
	NewSession(ctx context.Context, cfg TTSConfig) (TTSSession, error)
}

// Reasoner turns one caller utterance into a structured result.
type Reasoner interface {
	Infer(ctx context.Context, utterance string) (reason.Result, error)
}

// STTProviderAdapter adapts an stt.Provider to the session's local interface.
type STTProviderAdapter struct {
	Provider stt.Provider
}

func (a STTProviderAdapter) NewSession(ctx context.Context, cfg STTConfig) (STTSession, error) {
	if a.Provider == nil {
		return nil, fmt.Errorf("stt provider is nil")
	}
	return a.Provider.NewStream(ctx, stt.StreamOptions{
		Model:          cfg.Model,
		Language:       cfg.Language,
		Encoding:       cfg.Encoding,
		SampleRate:     cfg.SampleRate,
		UtteranceEndMS: cfg.UtteranceEndMS,
		Interim:        true,
	})
}

// TTSProviderAdapter adapts a tts.Provider to the session's local interface.
type TTSProviderAdapter struct {
	Provider tts.Provider
}

func (a TTSProviderAdapter) NewSession(ctx context.Context, cfg TTSConfig) (TTSSession, error) {
	if a.Provider == nil {
		return nil, fmt.Errorf("tts provider is nil")
	}
	return a.Provider.NewStream(ctx, tts.StreamOptions{
		Voice:        cfg.Voice,
		Model:        cfg.Model,
		OutputFormat: cfg.OutputFormat,
	})
}

type Config struct {
	Greeting       string
	Voice          string
	TTSModel       string
	STTModel       string
	Language       string
	SampleRate     int
	UtteranceEndMS int

	MaxSessionDuration time.Duration
	ReasonTimeout      time.Duration
	PingInterval       time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration

	MaxMessageBytes   int64
	OutboundQueueSize int
}

type Deps struct {
	Conn      *websocket.Conn
	Logger    *slog.Logger
	STT       STTProvider
	TTS       TTSProvider
	Reasoner  Reasoner
	Store     store.Store
	Metrics   *metrics.Metrics
	SessionID string
	RequestID string
	Config    Config
	Now       func() time.Time
}

type inboundFrame struct {
	data []byte
	err  error
}

type reasonOutcome struct {
	result  reason.Result
	err     error
	elapsed time.Duration
}

// Session owns one call. All loop state below the channel fields is touched
// only from the Run goroutine.
type Session struct {
	conn        *websocket.Conn
	logger      *slog.Logger
	sttProvider STTProvider
	ttsProvider TTSProvider
	reasoner    Reasoner
	persist     *persister
	metrics     *metrics.Metrics
	sessionID   string
	requestID   string
	cfg         Config
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame
	reasonCh         chan reasonOutcome

	sttSession STTSession
	ttsSession TTSSession

	state       State
	streamSid   string
	callSid     string
	greeted     bool
	inFlight    bool
	endpointing bool
	callStarted time.Time

	agg aggregator
	rel relay
}

func New(deps Deps) (*Session, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.STT == nil {
		return nil, fmt.Errorf("stt provider is required")
	}
	if deps.TTS == nil {
		return nil, fmt.Errorf("tts provider is required")
	}
	if deps.Reasoner == nil {
		return nil, fmt.Errorf("reasoner is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 256
	}
	if deps.Config.ReasonTimeout <= 0 {
		deps.Config.ReasonTimeout = 15 * time.Second
	}
	if deps.Config.SampleRate <= 0 {
		deps.Config.SampleRate = 8000
	}
	if deps.Config.Language == "" {
		deps.Config.Language = "en-US"
	}
	if deps.Config.MaxMessageBytes <= 0 {
		deps.Config.MaxMessageBytes = 1 << 20
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		conn:             deps.Conn,
		logger:           deps.Logger,
		sttProvider:      deps.STT,
		ttsProvider:      deps.TTS,
		reasoner:         deps.Reasoner,
		persist:          newPersister(deps.Store, deps.Logger),
		metrics:          deps.Metrics,
		sessionID:        deps.SessionID,
		requestID:        deps.RequestID,
		cfg:              deps.Config,
		now:              deps.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueueSize),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		reasonCh:         make(chan reasonOutcome, 1),
		state:            StateConnecting,
		endpointing:      deps.Config.UtteranceEndMS > 0,
	}
	return s, nil
}

// Cancel asks the session to shut down. Safe to call from any goroutine.
func (s *Session) Cancel() { s.cancel() }

func (s *Session) Run() error {
	defer s.wg.Wait()
	defer s.teardown("closed")

	s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	sttSession, err := s.sttProvider.NewSession(s.ctx, STTConfig{
		Model:          s.cfg.STTModel,
		Language:       s.cfg.Language,
		Encoding:       "mulaw",
		SampleRate:     s.cfg.SampleRate,
		UtteranceEndMS: s.cfg.UtteranceEndMS,
	})
	if err != nil {
		return fmt.Errorf("initialize recognizer: %w", err)
	}
	s.sttSession = sttSession

	ttsSession, err := s.ttsProvider.NewSession(s.ctx, TTSConfig{
		Voice:        s.cfg.Voice,
		Model:        s.cfg.TTSModel,
		OutputFormat: "ulaw_8000",
	})
	if err != nil {
		return fmt.Errorf("initialize synthesizer: %w", err)
	}
	s.ttsSession = ttsSession

	readCh := make(chan inboundFrame, 64)
	go s.readLoop(readCh)

	writerErrCh := make(chan error, 1)
	go func() {
		w := outboundWriter{
			ws:         s.conn,
			ctx:        s.ctx,
			cfg:        s.cfg,
			priority:   s.outboundPriority,
			normal:     s.outboundNormal,
			isCanceled: s.rel.canceled,
			onWrite: func(frame outboundFrame) {
				if frame.isAudio {
					s.metrics.RecordFrameOut()
				}
			},
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	var sessionTimer *time.Timer
	if s.cfg.MaxSessionDuration > 0 {
		sessionTimer = time.NewTimer(s.cfg.MaxSessionDuration)
		defer sessionTimer.Stop()
	}
	sessionTimerCh := func() <-chan time.Time {
		if sessionTimer == nil {
			return nil
		}
		return sessionTimer.C
	}

	for {
		select {
		case <-s.ctx.Done():
			s.teardown("canceled")
			return nil
		case err := <-writerErrCh:
			s.teardown("transport_error")
			return err
		case frame, ok := <-readCh:
			if !ok || frame.err != nil {
				s.teardown("disconnected")
				return nil
			}
			if done := s.handleInbound(frame.data); done {
				return nil
			}
		case seg, ok := <-sttSession.Segments():
			if !ok {
				s.teardown("recognizer_closed")
				return nil
			}
			s.handleSegment(seg)
		case o := <-s.reasonCh:
			s.handleReasonOutcome(o)
		case chunk, ok := <-ttsSession.Chunks():
			if !ok {
				s.teardown("synthesizer_closed")
				return nil
			}
			s.handleChunk(chunk)
		case <-sessionTimerCh():
			s.logger.Info("maximum call duration reached", "session_id", s.sessionID)
			s.teardown("timeout")
			return nil
		}
	}
}

func (s *Session) readLoop(ch chan<- inboundFrame) {
	defer close(ch)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case ch <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		if s.cfg.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		if messageType != websocket.TextMessage {
			continue
		}
		select {
		case ch <- inboundFrame{data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

// handleInbound decodes one transport event. It returns true when the session
// should end.
func (s *Session) handleInbound(data []byte) bool {
	msg, err := protocol.DecodeInboundEvent(data)
	if err != nil {
		s.logger.Warn("undecodable transport event", "session_id", s.sessionID, "error", err)
		return false
	}
	switch m := msg.(type) {
	case protocol.InboundStart:
		s.handleStart(m)
	case protocol.InboundMedia:
		s.handleMedia(m)
	case protocol.InboundStop:
		s.logger.Info("call ended by transport", "session_id", s.sessionID, "stream_sid", s.streamSid)
		s.teardown("completed")
		return true
	case protocol.InboundMark:
		if m.Mark.Name == protocol.MarkPlaybackComplete {
			s.logger.Debug("playback reached caller", "session_id", s.sessionID)
		}
	}
	return false
}

func (s *Session) handleStart(m protocol.InboundStart) {
	if s.state != StateConnecting {
		return
	}
	s.state = StateActive
	s.streamSid = m.Start.StreamSid
	s.callSid = m.Start.CallSid
	s.callStarted = s.now()
	s.metrics.RecordCallStart()
	s.persist.OpenCall(s.streamSid, s.callSid)
	s.logger.Info("call started",
		"session_id", s.sessionID,
		"stream_sid", s.streamSid,
		"call_sid", s.callSid,
	)
	if greeting := strings.TrimSpace(s.cfg.Greeting); greeting != "" && !s.greeted {
		s.greeted = true
		s.persist.RecordTurn(store.RoleAgent, greeting)
		s.speak(greeting)
	}
}

func (s *Session) handleMedia(m protocol.InboundMedia) {
	buf := audio.DecodeInbound(m.Media.Payload)
	if len(buf) == 0 {
		return
	}
	s.metrics.RecordAudio("in", len(buf))
	if err := s.sttSession.SendAudio(buf); err != nil {
		s.logger.Warn("forward audio to recognizer failed", "session_id", s.sessionID, "error", err)
	}
}

func (s *Session) handleSegment(seg stt.Segment) {
	text := normalizeSpace(seg.Text)
	if text != "" && s.rel.isSpeaking() {
		s.bargeIn()
	}
	// A speech-final segment carries both the utterance's last words and the
	// end marker, so the text must land in the aggregator before dispatch.
	if text != "" && seg.IsFinal {
		s.agg.addFinal(text)
	}
	if seg.UtteranceEnd || (seg.IsFinal && !s.endpointing) {
		s.tryDispatch()
	}
}

// bargeIn cancels the active playback generation and clears the transport's
// buffered audio. Exactly one clear is sent per generation.
func (s *Session) bargeIn() {
	if !s.rel.interrupt() {
		return
	}
	s.metrics.RecordBargeIn()
	s.logger.Info("caller barge-in", "session_id", s.sessionID, "stream_sid", s.streamSid)
	payload, err := json.Marshal(protocol.NewClear(s.streamSid))
	if err != nil {
		return
	}
	s.enqueuePriority(payload)
}

// tryDispatch drains buffered finals into one reasoning call. It is a no-op
// while a call is already in flight or the agent is still speaking; buffered
// text waits and coalesces.
func (s *Session) tryDispatch() {
	utterance, ok := s.agg.takeIfReady(s.inFlight || s.rel.isSpeaking())
	if !ok {
		return
	}
	s.inFlight = true
	s.persist.RecordTurn(store.RoleCaller, utterance)
	s.logger.Debug("dispatching utterance", "session_id", s.sessionID, "utterance", utterance)

	rctx, cancel := context.WithTimeout(s.ctx, s.cfg.ReasonTimeout)
	start := time.Now()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		res, err := s.reasoner.Infer(rctx, utterance)
		select {
		case s.reasonCh <- reasonOutcome{result: res, err: err, elapsed: time.Since(start)}:
		case <-s.ctx.Done():
		}
	}()
}

func (s *Session) handleReasonOutcome(o reasonOutcome) {
	s.inFlight = false
	res := o.result
	outcome := "ok"
	if o.err != nil {
		s.logger.Warn("reasoning failed, speaking fallback", "session_id", s.sessionID, "error", o.err)
		res = reason.Fallback()
		outcome = "fallback"
	} else {
		s.persist.RecordIntent(res)
		if res.Escalate {
			s.logger.Info("escalation requested", "session_id", s.sessionID, "intent", res.Intent)
		}
	}
	s.metrics.RecordReasoning(outcome, o.elapsed)
	s.persist.RecordTurn(store.RoleAgent, res.ResponseText)
	s.speak(res.ResponseText)
	s.tryDispatch()
}

func (s *Session) handleChunk(chunk tts.Chunk) {
	// The synthesizer emits chunks in order on one stream, so after a
	// barge-in everything up to and including the canceled generation's
	// final chunk is stale and must not touch the new generation.
	if s.rel.consumeStale(chunk.Final) {
		return
	}
	generation := s.rel.current()
	if generation == 0 {
		// Audio for an interrupted or completed generation.
		return
	}
	if len(chunk.Audio) > 0 {
		s.metrics.RecordAudio("out", len(chunk.Audio))
		for _, frame := range audio.Frames(chunk.Audio) {
			payload, err := json.Marshal(protocol.NewMedia(s.streamSid, audio.EncodeOutbound(frame)))
			if err != nil {
				continue
			}
			s.enqueueAudio(generation, payload)
		}
	}
	if chunk.Final && s.rel.complete(generation) {
		// The mark rides the audio lane so it is dropped along with the
		// audio if the generation gets canceled first.
		payload, err := json.Marshal(protocol.NewMark(s.streamSid, protocol.MarkPlaybackComplete))
		if err == nil {
			s.enqueueAudio(generation, payload)
		}
		s.tryDispatch()
	}
}

// speak starts a new playback generation for the given text.
func (s *Session) speak(text string) {
	text = strings.TrimSpace(text)
	if text == "" || s.ttsSession == nil {
		return
	}
	generation := s.rel.begin()
	if err := s.ttsSession.SendText(s.ctx, text, true); err != nil {
		s.logger.Warn("synthesis request failed", "session_id", s.sessionID, "error", err)
		s.rel.complete(generation)
	}
}

func (s *Session) enqueueAudio(generation int64, payload []byte) {
	select {
	case s.outboundNormal <- outboundFrame{isAudio: true, generation: generation, payload: payload}:
	default:
		s.logger.Warn("outbound queue full, dropping media frame", "session_id", s.sessionID)
	}
}

func (s *Session) enqueuePriority(payload []byte) {
	frame := outboundFrame{payload: payload}
	select {
	case s.outboundPriority <- frame:
		return
	default:
	}
	// Queue full: evict the oldest so the latest clear still lands.
	select {
	case <-s.outboundPriority:
	default:
	}
	select {
	case s.outboundPriority <- frame:
	default:
	}
}

// teardown releases every per-call resource exactly once. Safe to call from
// the Run goroutine any number of times.
func (s *Session) teardown(status string) {
	if s.state == StateClosing || s.state == StateClosed {
		return
	}
	s.state = StateClosing
	if s.sttSession != nil {
		_ = s.sttSession.Close()
	}
	if s.ttsSession != nil {
		_ = s.ttsSession.Close()
	}
	s.persist.CloseCall(persistCloseWait)
	if !s.callStarted.IsZero() {
		s.metrics.RecordCallEnd(status, s.now().Sub(s.callStarted))
	}
	s.cancel()
	s.state = StateClosed
	s.logger.Info("session closed", "session_id", s.sessionID, "status", status)
}
