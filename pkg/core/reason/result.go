// Package reason turns a finalized caller utterance into a structured
// reasoning result: an intent, a spoken reply, an escalation flag, and
// extracted slots.
package reason

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonrepair"
)

// Default field values used when the reasoning service answers but its
// structured payload is missing or mistyped. A degraded-but-present reply is
// preferable to aborting the turn.
const (
	DefaultIntent   = "unknown"
	DefaultResponse = "How can I help you?"

	FallbackIntent   = "fallback"
	FallbackResponse = "I'm sorry, could you repeat that?"
)

// Result is the structured output of one reasoning call. All four fields are
// always populated.
type Result struct {
	Intent       string         `json:"intent"`
	ResponseText string         `json:"response_text"`
	Escalate     bool           `json:"escalate"`
	Slots        map[string]any `json:"slots"`
}

// Fallback is the fixed result returned when the reasoning service itself
// fails. The caller always hears something.
func Fallback() Result {
	return Result{
		Intent:       FallbackIntent,
		ResponseText: FallbackResponse,
		Escalate:     false,
		Slots:        map[string]any{},
	}
}

// Repair parses a raw structured payload into a Result, substituting the
// default for every missing or mistyped field. Syntactically broken JSON is
// first run through jsonrepair; only payloads that cannot be coerced into an
// object at all produce an error.
func Repair(raw []byte) (Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		fixed, repairErr := jsonrepair.JSONRepair(string(raw))
		if repairErr != nil {
			return Result{}, fmt.Errorf("unparseable reasoning payload: %w", err)
		}
		if err := json.Unmarshal([]byte(fixed), &fields); err != nil {
			return Result{}, fmt.Errorf("unparseable reasoning payload: %w", err)
		}
	}

	out := Result{
		Intent:       DefaultIntent,
		ResponseText: DefaultResponse,
		Escalate:     false,
		Slots:        map[string]any{},
	}

	if s, ok := stringField(fields, "intent"); ok {
		out.Intent = s
	}
	if s, ok := stringField(fields, "response_text", "responseText", "response"); ok {
		out.ResponseText = s
	}
	if raw, ok := firstField(fields, "escalate"); ok {
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			out.Escalate = b
		}
	}
	if raw, ok := firstField(fields, "slots"); ok {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err == nil && m != nil {
			out.Slots = m
		}
	}
	return out, nil
}

func firstField(fields map[string]json.RawMessage, names ...string) (json.RawMessage, bool) {
	for _, name := range names {
		if raw, ok := fields[name]; ok && len(raw) > 0 {
			return raw, true
		}
	}
	return nil, false
}

func stringField(fields map[string]json.RawMessage, names ...string) (string, bool) {
	raw, ok := firstField(fields, names...)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	if s == "" {
		return "", false
	}
	return s, true
}
