// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// PublicHost is the externally reachable host used in the TwiML stream
	// URL. When empty the TwiML handler falls back to the request host.
	PublicHost string

	// Speech recognition.
	DeepgramAPIKey  string
	DeepgramBaseURL string
	STTModel        string
	Language        string
	UtteranceEndMS  int

	// Speech synthesis.
	ElevenLabsAPIKey  string
	ElevenLabsBaseURL string
	Voice             string
	TTSModel          string

	// Reasoning.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	// Persistence. Empty disables the database and records nothing.
	DatabaseURL string

	Greeting string

	MaxCallDuration time.Duration
	ReasonTimeout   time.Duration

	WSPingInterval   time.Duration
	WSWriteTimeout   time.Duration
	WSReadTimeout    time.Duration
	HandshakeTimeout time.Duration
	MaxMessageBytes  int64

	OutboundQueueSize int

	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	MetricsNamespace string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("VOICEGATE_ADDR", ":8080"),
		PublicHost:          envOr("VOICEGATE_PUBLIC_HOST", ""),
		DeepgramAPIKey:      envOr("VOICEGATE_DEEPGRAM_API_KEY", ""),
		DeepgramBaseURL:     envOr("VOICEGATE_DEEPGRAM_BASE_URL", ""),
		STTModel:            envOr("VOICEGATE_STT_MODEL", "nova-2-phonecall"),
		Language:            envOr("VOICEGATE_LANGUAGE", "en-US"),
		UtteranceEndMS:      envIntOr("VOICEGATE_UTTERANCE_END_MS", 1000),
		ElevenLabsAPIKey:    envOr("VOICEGATE_ELEVENLABS_API_KEY", ""),
		ElevenLabsBaseURL:   envOr("VOICEGATE_ELEVENLABS_BASE_URL", ""),
		Voice:               envOr("VOICEGATE_VOICE_ID", ""),
		TTSModel:            envOr("VOICEGATE_TTS_MODEL", "eleven_flash_v2_5"),
		OpenAIAPIKey:        envOr("VOICEGATE_OPENAI_API_KEY", ""),
		OpenAIBaseURL:       envOr("VOICEGATE_OPENAI_BASE_URL", ""),
		OpenAIModel:         envOr("VOICEGATE_OPENAI_MODEL", "gpt-4o-mini"),
		DatabaseURL:         envOr("VOICEGATE_DATABASE_URL", ""),
		Greeting:            envOr("VOICEGATE_GREETING", "Hello! How can I help you today?"),
		MaxCallDuration:     envDurationOr("VOICEGATE_MAX_CALL_DURATION", time.Hour),
		ReasonTimeout:       envDurationOr("VOICEGATE_REASON_TIMEOUT", 15*time.Second),
		WSPingInterval:      envDurationOr("VOICEGATE_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:      envDurationOr("VOICEGATE_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadTimeout:       envDurationOr("VOICEGATE_WS_READ_TIMEOUT", 60*time.Second),
		HandshakeTimeout:    envDurationOr("VOICEGATE_WS_HANDSHAKE_TIMEOUT", 5*time.Second),
		MaxMessageBytes:     envInt64Or("VOICEGATE_WS_MAX_MESSAGE_BYTES", 256<<10),
		OutboundQueueSize:   envIntOr("VOICEGATE_OUTBOUND_QUEUE_SIZE", 256),
		ReadHeaderTimeout:   envDurationOr("VOICEGATE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("VOICEGATE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		MetricsNamespace:    envOr("VOICEGATE_METRICS_NAMESPACE", "voicegate"),
	}

	if strings.TrimSpace(cfg.DeepgramAPIKey) == "" {
		return Config{}, fmt.Errorf("VOICEGATE_DEEPGRAM_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.ElevenLabsAPIKey) == "" {
		return Config{}, fmt.Errorf("VOICEGATE_ELEVENLABS_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.Voice) == "" {
		return Config{}, fmt.Errorf("VOICEGATE_VOICE_ID must be set")
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return Config{}, fmt.Errorf("VOICEGATE_OPENAI_API_KEY must be set")
	}
	if cfg.UtteranceEndMS < 0 {
		return Config{}, fmt.Errorf("VOICEGATE_UTTERANCE_END_MS must be >= 0")
	}
	if cfg.MaxCallDuration <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_MAX_CALL_DURATION must be > 0")
	}
	if cfg.ReasonTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_REASON_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSReadTimeout < 0 {
		return Config{}, fmt.Errorf("VOICEGATE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.MaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.OutboundQueueSize <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_OUTBOUND_QUEUE_SIZE must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("VOICEGATE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
