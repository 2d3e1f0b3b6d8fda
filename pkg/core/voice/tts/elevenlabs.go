package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultElevenLabsWSBase = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"

	// The service drops connections that stay silent; blank-text frames keep
	// the stream open between turns.
	elevenLabsKeepAliveInterval = 15 * time.Second
)

// ElevenLabsProvider implements the TTS Provider interface against the
// ElevenLabs streaming websocket.
type ElevenLabsProvider struct {
	apiKey  string
	baseURL string
}

// NewElevenLabs creates a new ElevenLabs TTS provider.
func NewElevenLabs(apiKey string) *ElevenLabsProvider {
	return &ElevenLabsProvider{apiKey: apiKey, baseURL: defaultElevenLabsWSBase}
}

// NewElevenLabsWithBaseURL creates a provider against a custom websocket
// base, used by tests to point at a local fake.
func NewElevenLabsWithBaseURL(apiKey, baseURL string) *ElevenLabsProvider {
	if baseURL == "" {
		baseURL = defaultElevenLabsWSBase
	}
	return &ElevenLabsProvider{apiKey: apiKey, baseURL: baseURL}
}

// Name returns the provider identifier.
func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

// NewStream opens a live synthesis stream for one voice.
func (p *ElevenLabsProvider) NewStream(ctx context.Context, opts StreamOptions) (Stream, error) {
	if strings.TrimSpace(p.apiKey) == "" {
		return nil, fmt.Errorf("elevenlabs api key is required")
	}
	if strings.TrimSpace(opts.Voice) == "" {
		return nil, fmt.Errorf("elevenlabs voice id is required")
	}
	wsURL, err := buildElevenLabsWSURL(p.baseURL, opts)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", strings.TrimSpace(p.apiKey))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	s := &elevenLabsStream{
		conn:   conn,
		chunks: make(chan Chunk, 256),
		closed: make(chan struct{}),
	}

	// The stream must be primed with a leading space before any real text.
	if err := s.writeJSON(ctx, map[string]any{"text": " "}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("prime stream: %w", err)
	}

	go s.readLoop()
	go s.keepAliveLoop()

	return s, nil
}

type elevenLabsStream struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	errMu   sync.Mutex

	chunks    chan Chunk
	closed    chan struct{}
	closeOnce sync.Once

	lastServerError string
	lastClose       string
}

// SendText submits text for synthesis. A trailing space is required by the
// service's chunking scheme; trigger asks for immediate generation.
func (s *elevenLabsStream) SendText(ctx context.Context, text string, trigger bool) error {
	payload := text
	if strings.TrimSpace(payload) != "" && !strings.HasSuffix(payload, " ") {
		payload += " "
	}
	msg := map[string]any{"text": payload}
	if trigger {
		msg["try_trigger_generation"] = true
		msg["flush"] = true
	}
	return s.writeJSON(ctx, msg)
}

// Chunks returns the channel of synthesis output.
func (s *elevenLabsStream) Chunks() <-chan Chunk {
	if s == nil {
		ch := make(chan Chunk)
		close(ch)
		return ch
	}
	return s.chunks
}

// Done returns a channel closed when the stream ends.
func (s *elevenLabsStream) Done() <-chan struct{} { return s.closed }

// Close tears down the stream.
func (s *elevenLabsStream) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		// Best-effort end-of-stream marker before closing the socket.
		_ = s.writeJSON(context.Background(), map[string]any{"text": ""})
		close(s.closed)
		s.setLastClose("closed")
		_ = s.conn.Close()
	})
	return nil
}

func (s *elevenLabsStream) readLoop() {
	defer close(s.chunks)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				s.setLastClose(fmt.Sprintf("code=%d msg=%s", closeErr.Code, strings.TrimSpace(closeErr.Text)))
			} else {
				s.setLastClose(strings.TrimSpace(err.Error()))
			}
			return
		}

		var msg map[string]json.RawMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if serverErr := decodeString(msg["error"]); serverErr != "" {
			s.setLastServerError(serverErr)
		} else if serverErr := decodeString(msg["message"]); serverErr != "" {
			s.setLastServerError(serverErr)
		}

		audioB64 := decodeString(msg["audio"])
		var audio []byte
		if audioB64 != "" {
			audio, err = decodeBase64Any(audioB64)
			if err != nil {
				s.setLastServerError("invalid audio base64")
				audio = nil
			}
		}
		final := decodeBool(msg["isFinal"]) || decodeBool(msg["is_final"])

		if len(audio) == 0 && !final {
			continue
		}

		select {
		case s.chunks <- Chunk{Audio: audio, Final: final}:
		case <-s.closed:
			return
		}
	}
}

func (s *elevenLabsStream) keepAliveLoop() {
	ticker := time.NewTicker(elevenLabsKeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			_ = s.writeJSON(context.Background(), map[string]any{"text": " "})
		}
	}
}

func (s *elevenLabsStream) writeJSON(ctx context.Context, payload any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	} else {
		_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	}
	if err := s.conn.WriteJSON(payload); err != nil {
		reason := strings.TrimSpace(s.failureReason())
		if reason == "" {
			return err
		}
		return fmt.Errorf("%w (elevenlabs %s)", err, reason)
	}
	return nil
}

func buildElevenLabsWSURL(base string, opts StreamOptions) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = defaultElevenLabsWSBase
	}
	base = strings.ReplaceAll(base, "{voice_id}", url.PathEscape(opts.Voice))
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws base url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/text-to-speech/" + url.PathEscape(opts.Voice) + "/stream-input"
	}

	model := opts.Model
	if model == "" {
		model = "eleven_flash_v2_5"
	}
	format := opts.OutputFormat
	if format == "" {
		format = "ulaw_8000"
	}

	q := u.Query()
	if q.Get("model_id") == "" {
		q.Set("model_id", model)
	}
	if q.Get("output_format") == "" {
		q.Set("output_format", format)
	}
	if q.Get("apply_text_normalization") == "" {
		q.Set("apply_text_normalization", "off")
	}
	if q.Get("inactivity_timeout") == "" {
		q.Set("inactivity_timeout", "60")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func decodeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func decodeBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var out bool
	if err := json.Unmarshal(raw, &out); err != nil {
		return false
	}
	return out
}

func decodeBase64Any(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	// Standard base64, with and without padding.
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return nil, fmt.Errorf("invalid base64")
}

func (s *elevenLabsStream) setLastServerError(msg string) {
	msg = sanitizeReason(msg)
	if msg == "" {
		return
	}
	s.errMu.Lock()
	s.lastServerError = msg
	s.errMu.Unlock()
}

func (s *elevenLabsStream) setLastClose(msg string) {
	msg = sanitizeReason(msg)
	if msg == "" {
		return
	}
	s.errMu.Lock()
	s.lastClose = msg
	s.errMu.Unlock()
}

func (s *elevenLabsStream) failureReason() string {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	parts := make([]string, 0, 2)
	if strings.TrimSpace(s.lastServerError) != "" {
		parts = append(parts, "server_error="+s.lastServerError)
	}
	if strings.TrimSpace(s.lastClose) != "" {
		parts = append(parts, "close="+s.lastClose)
	}
	return strings.Join(parts, " ")
}

func sanitizeReason(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return ""
	}
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.Join(strings.Fields(msg), " ")
	if len(msg) > 300 {
		msg = msg[:300] + "…"
	}
	return msg
}
