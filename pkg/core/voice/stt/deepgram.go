package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	deepgramWSBase = "wss://api.deepgram.com/v1/listen"

	// Deepgram closes idle streams after ~10s without audio or a keepalive.
	deepgramKeepAliveInterval = 5 * time.Second
)

// DeepgramProvider implements the STT Provider interface against Deepgram's
// live transcription websocket.
type DeepgramProvider struct {
	apiKey  string
	baseURL string
}

// NewDeepgram creates a new Deepgram STT provider.
func NewDeepgram(apiKey string) *DeepgramProvider {
	return &DeepgramProvider{apiKey: apiKey, baseURL: deepgramWSBase}
}

// NewDeepgramWithBaseURL creates a provider against a custom websocket base,
// used by tests to point at a local fake.
func NewDeepgramWithBaseURL(apiKey, baseURL string) *DeepgramProvider {
	if baseURL == "" {
		baseURL = deepgramWSBase
	}
	return &DeepgramProvider{apiKey: apiKey, baseURL: baseURL}
}

// Name returns the provider identifier.
func (p *DeepgramProvider) Name() string { return "deepgram" }

// NewStream opens a live transcription stream.
func (p *DeepgramProvider) NewStream(ctx context.Context, opts StreamOptions) (Stream, error) {
	wsURL, err := deepgramStreamURL(p.baseURL, opts)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket connect (status %d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &deepgramStream{
		conn:     conn,
		segments: make(chan Segment, 100),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	go s.readLoop()
	go s.keepAliveLoop()

	return s, nil
}

type deepgramStream struct {
	conn     *websocket.Conn
	segments chan Segment
	done     chan struct{}
	closed   atomic.Bool
	writeMu  sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
}

type deepgramMessage struct {
	Type    string `json:"type"` // "Results", "UtteranceEnd", "Metadata", "SpeechStarted"
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	SpeechFinal bool `json:"speech_final"`
}

// deepgramStreamURL builds the live transcription websocket URL for opts.
func deepgramStreamURL(base string, opts StreamOptions) (string, error) {
	if base == "" {
		base = deepgramWSBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse websocket URL: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = "nova-2-phonecall"
	}
	language := opts.Language
	if language == "" {
		language = "en-US"
	}
	encoding := opts.Encoding
	if encoding == "" {
		encoding = "mulaw"
	}
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 8000
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("language", language)
	q.Set("encoding", encoding)
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	if opts.Interim {
		q.Set("interim_results", "true")
	}
	if opts.UtteranceEndMS > 0 {
		// utterance_end requires interim results on Deepgram's side.
		q.Set("interim_results", "true")
		q.Set("utterance_end_ms", strconv.Itoa(opts.UtteranceEndMS))
		q.Set("endpointing", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseDeepgramSegment converts one server message into a Segment.
// The second return is false for messages that carry nothing to emit.
func parseDeepgramSegment(data []byte) (Segment, bool) {
	var msg deepgramMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Segment{}, false
	}

	switch msg.Type {
	case "Results":
		var text string
		if len(msg.Channel.Alternatives) > 0 {
			text = msg.Channel.Alternatives[0].Transcript
		}
		if text == "" && !msg.SpeechFinal {
			return Segment{}, false
		}
		return Segment{
			Text:         text,
			IsFinal:      msg.IsFinal,
			UtteranceEnd: msg.SpeechFinal,
		}, true
	case "UtteranceEnd":
		return Segment{UtteranceEnd: true}, true
	default:
		return Segment{}, false
	}
}

func (s *deepgramStream) readLoop() {
	defer func() {
		close(s.segments)
		close(s.done)
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		seg, ok := parseDeepgramSegment(data)
		if !ok {
			continue
		}
		select {
		case s.segments <- seg:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *deepgramStream) keepAliveLoop() {
	ticker := time.NewTicker(deepgramKeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			s.writeMu.Unlock()
		}
	}
}

// SendAudio forwards raw μ-law bytes to the recognizer.
func (s *deepgramStream) SendAudio(data []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Finalize flushes buffered audio so the current utterance is emitted as final.
func (s *deepgramStream) Finalize() error {
	if s.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Finalize"}`))
}

// Segments returns the channel of recognition updates.
func (s *deepgramStream) Segments() <-chan Segment { return s.segments }

// Done returns a channel closed when the stream ends.
func (s *deepgramStream) Done() <-chan struct{} { return s.done }

// Close finalizes the stream and tears down the connection.
func (s *deepgramStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()

	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}
