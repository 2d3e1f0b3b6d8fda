package config

import (
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"VOICEGATE_ADDR",
	"VOICEGATE_PUBLIC_HOST",
	"VOICEGATE_DEEPGRAM_API_KEY",
	"VOICEGATE_DEEPGRAM_BASE_URL",
	"VOICEGATE_STT_MODEL",
	"VOICEGATE_LANGUAGE",
	"VOICEGATE_UTTERANCE_END_MS",
	"VOICEGATE_ELEVENLABS_API_KEY",
	"VOICEGATE_ELEVENLABS_BASE_URL",
	"VOICEGATE_VOICE_ID",
	"VOICEGATE_TTS_MODEL",
	"VOICEGATE_OPENAI_API_KEY",
	"VOICEGATE_OPENAI_BASE_URL",
	"VOICEGATE_OPENAI_MODEL",
	"VOICEGATE_DATABASE_URL",
	"VOICEGATE_GREETING",
	"VOICEGATE_MAX_CALL_DURATION",
	"VOICEGATE_REASON_TIMEOUT",
	"VOICEGATE_WS_PING_INTERVAL",
	"VOICEGATE_WS_WRITE_TIMEOUT",
	"VOICEGATE_WS_READ_TIMEOUT",
	"VOICEGATE_WS_HANDSHAKE_TIMEOUT",
	"VOICEGATE_WS_MAX_MESSAGE_BYTES",
	"VOICEGATE_OUTBOUND_QUEUE_SIZE",
	"VOICEGATE_READ_HEADER_TIMEOUT",
	"VOICEGATE_SHUTDOWN_GRACE_PERIOD",
	"VOICEGATE_METRICS_NAMESPACE",
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
}

func setRequiredKeys(t *testing.T) {
	t.Helper()
	t.Setenv("VOICEGATE_DEEPGRAM_API_KEY", "dg_test")
	t.Setenv("VOICEGATE_ELEVENLABS_API_KEY", "el_test")
	t.Setenv("VOICEGATE_VOICE_ID", "voice_test")
	t.Setenv("VOICEGATE_OPENAI_API_KEY", "sk_test")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredKeys(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.STTModel != "nova-2-phonecall" {
		t.Fatalf("STTModel = %q", cfg.STTModel)
	}
	if cfg.Language != "en-US" {
		t.Fatalf("Language = %q", cfg.Language)
	}
	if cfg.UtteranceEndMS != 1000 {
		t.Fatalf("UtteranceEndMS = %d, want 1000", cfg.UtteranceEndMS)
	}
	if cfg.TTSModel != "eleven_flash_v2_5" {
		t.Fatalf("TTSModel = %q", cfg.TTSModel)
	}
	if cfg.OpenAIModel != "gpt-4o-mini" {
		t.Fatalf("OpenAIModel = %q", cfg.OpenAIModel)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.Greeting == "" {
		t.Fatal("Greeting default must not be empty")
	}
	if cfg.MaxCallDuration != time.Hour {
		t.Fatalf("MaxCallDuration = %v, want 1h", cfg.MaxCallDuration)
	}
	if cfg.ReasonTimeout != 15*time.Second {
		t.Fatalf("ReasonTimeout = %v, want 15s", cfg.ReasonTimeout)
	}
	if cfg.WSPingInterval != 20*time.Second {
		t.Fatalf("WSPingInterval = %v, want 20s", cfg.WSPingInterval)
	}
	if cfg.WSWriteTimeout != 5*time.Second {
		t.Fatalf("WSWriteTimeout = %v, want 5s", cfg.WSWriteTimeout)
	}
	if cfg.WSReadTimeout != 60*time.Second {
		t.Fatalf("WSReadTimeout = %v, want 60s", cfg.WSReadTimeout)
	}
	if cfg.HandshakeTimeout != 5*time.Second {
		t.Fatalf("HandshakeTimeout = %v, want 5s", cfg.HandshakeTimeout)
	}
	if cfg.MaxMessageBytes != 256<<10 {
		t.Fatalf("MaxMessageBytes = %d, want %d", cfg.MaxMessageBytes, int64(256<<10))
	}
	if cfg.OutboundQueueSize != 256 {
		t.Fatalf("OutboundQueueSize = %d, want 256", cfg.OutboundQueueSize)
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 30s", cfg.ShutdownGracePeriod)
	}
	if cfg.MetricsNamespace != "voicegate" {
		t.Fatalf("MetricsNamespace = %q", cfg.MetricsNamespace)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredKeys(t)
	t.Setenv("VOICEGATE_ADDR", ":9090")
	t.Setenv("VOICEGATE_PUBLIC_HOST", "gw.example.com")
	t.Setenv("VOICEGATE_STT_MODEL", "nova-3")
	t.Setenv("VOICEGATE_LANGUAGE", "es")
	t.Setenv("VOICEGATE_UTTERANCE_END_MS", "1500")
	t.Setenv("VOICEGATE_GREETING", "Welcome.")
	t.Setenv("VOICEGATE_DATABASE_URL", "postgres://local/calls")
	t.Setenv("VOICEGATE_MAX_CALL_DURATION", "30m")
	t.Setenv("VOICEGATE_REASON_TIMEOUT", "9s")
	t.Setenv("VOICEGATE_OUTBOUND_QUEUE_SIZE", "64")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":9090" || cfg.PublicHost != "gw.example.com" {
		t.Fatalf("Addr/PublicHost = %q/%q", cfg.Addr, cfg.PublicHost)
	}
	if cfg.STTModel != "nova-3" || cfg.Language != "es" || cfg.UtteranceEndMS != 1500 {
		t.Fatalf("stt config mismatch: %q/%q/%d", cfg.STTModel, cfg.Language, cfg.UtteranceEndMS)
	}
	if cfg.Greeting != "Welcome." {
		t.Fatalf("Greeting = %q", cfg.Greeting)
	}
	if cfg.DatabaseURL != "postgres://local/calls" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.MaxCallDuration != 30*time.Minute || cfg.ReasonTimeout != 9*time.Second {
		t.Fatalf("durations mismatch: %v/%v", cfg.MaxCallDuration, cfg.ReasonTimeout)
	}
	if cfg.OutboundQueueSize != 64 {
		t.Fatalf("OutboundQueueSize = %d", cfg.OutboundQueueSize)
	}
}

func TestLoadFromEnv_RequiredKeys(t *testing.T) {
	cases := []struct {
		name string
		omit string
	}{
		{"missing deepgram key", "VOICEGATE_DEEPGRAM_API_KEY"},
		{"missing elevenlabs key", "VOICEGATE_ELEVENLABS_API_KEY"},
		{"missing voice id", "VOICEGATE_VOICE_ID"},
		{"missing openai key", "VOICEGATE_OPENAI_API_KEY"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearGatewayEnv(t)
			setRequiredKeys(t)
			t.Setenv(tc.omit, "")

			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.omit) {
				t.Fatalf("error = %v, expected %q in message", err, tc.omit)
			}
		})
	}
}

func TestLoadFromEnv_InvalidBounds(t *testing.T) {
	cases := []struct {
		name      string
		env       map[string]string
		errSubstr string
	}{
		{
			name:      "invalid call duration",
			env:       map[string]string{"VOICEGATE_MAX_CALL_DURATION": "0s"},
			errSubstr: "VOICEGATE_MAX_CALL_DURATION",
		},
		{
			name:      "invalid reason timeout",
			env:       map[string]string{"VOICEGATE_REASON_TIMEOUT": "0s"},
			errSubstr: "VOICEGATE_REASON_TIMEOUT",
		},
		{
			name:      "invalid utterance end",
			env:       map[string]string{"VOICEGATE_UTTERANCE_END_MS": "-1"},
			errSubstr: "VOICEGATE_UTTERANCE_END_MS",
		},
		{
			name:      "invalid queue size",
			env:       map[string]string{"VOICEGATE_OUTBOUND_QUEUE_SIZE": "0"},
			errSubstr: "VOICEGATE_OUTBOUND_QUEUE_SIZE",
		},
		{
			name:      "invalid shutdown grace",
			env:       map[string]string{"VOICEGATE_SHUTDOWN_GRACE_PERIOD": "0s"},
			errSubstr: "VOICEGATE_SHUTDOWN_GRACE_PERIOD",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearGatewayEnv(t)
			setRequiredKeys(t)
			for key, value := range tc.env {
				t.Setenv(key, value)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errSubstr) {
				t.Fatalf("error = %v, expected substring %q", err, tc.errSubstr)
			}
		})
	}
}
