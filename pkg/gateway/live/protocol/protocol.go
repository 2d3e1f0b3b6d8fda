// Package protocol defines the JSON-per-message events exchanged with the
// telephony media stream: start/media/stop/mark inbound, media/mark/clear
// outbound. One websocket text message carries exactly one event object.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// MarkPlaybackComplete is the mark name emitted once a synthesized reply
	// has been fully framed and queued to the transport.
	MarkPlaybackComplete = "playback_complete"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badEvent(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_event", Message: message, Param: param}
}

func unknownEvent(message string) *DecodeError {
	return &DecodeError{Code: "unknown_event", Message: message, Param: "event"}
}

// StartPayload carries the transport identifiers for the new media stream.
type StartPayload struct {
	StreamSid  string `json:"streamSid"`
	CallSid    string `json:"callSid,omitempty"`
	AccountSid string `json:"accountSid,omitempty"`
}

// InboundStart announces that the media stream is ready.
type InboundStart struct {
	Event string       `json:"event"`
	Start StartPayload `json:"start"`
}

// MediaPayload holds one base64-encoded audio chunk.
type MediaPayload struct {
	Payload string `json:"payload"`
}

// InboundMedia carries one chunk of caller audio.
type InboundMedia struct {
	Event string       `json:"event"`
	Media MediaPayload `json:"media"`
}

// InboundStop signals the caller hung up.
type InboundStop struct {
	Event string `json:"event"`
}

// MarkPayload names a previously emitted playback mark.
type MarkPayload struct {
	Name string `json:"name"`
}

// InboundMark acknowledges a mark the transport finished playing.
// Informational only; no session state changes on receipt.
type InboundMark struct {
	Event string      `json:"event"`
	Mark  MarkPayload `json:"mark"`
}

// OutboundMedia sends one audio frame to the transport for playback.
type OutboundMedia struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid,omitempty"`
	Media     MediaPayload `json:"media"`
}

// OutboundMark emits a named playback marker after the last media frame of a
// reply.
type OutboundMark struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid,omitempty"`
	Mark      MarkPayload `json:"mark"`
}

// OutboundClear tells the transport to discard buffered-but-unplayed frames.
type OutboundClear struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid,omitempty"`
}

// NewMedia builds an outbound media event for one encoded frame.
func NewMedia(streamSid, payload string) OutboundMedia {
	return OutboundMedia{Event: "media", StreamSid: streamSid, Media: MediaPayload{Payload: payload}}
}

// NewMark builds an outbound mark event.
func NewMark(streamSid, name string) OutboundMark {
	return OutboundMark{Event: "mark", StreamSid: streamSid, Mark: MarkPayload{Name: name}}
}

// NewClear builds an outbound clear event.
func NewClear(streamSid string) OutboundClear {
	return OutboundClear{Event: "clear", StreamSid: streamSid}
}

// DecodeInboundEvent parses one inbound transport message into its typed
// event. Unparseable JSON and unknown event names yield a *DecodeError; the
// session logs and drops those without terminating the call.
func DecodeInboundEvent(data []byte) (any, error) {
	var envelope struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badEvent("invalid json event", "")
	}
	event := strings.TrimSpace(envelope.Event)
	if event == "" {
		return nil, badEvent("missing event", "event")
	}

	switch event {
	case "start":
		var msg InboundStart
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badEvent("invalid start event", "")
		}
		if strings.TrimSpace(msg.Start.StreamSid) == "" {
			return nil, badEvent("start.streamSid is required", "start.streamSid")
		}
		return msg, nil
	case "media":
		var msg InboundMedia
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badEvent("invalid media event", "")
		}
		return msg, nil
	case "stop":
		var msg InboundStop
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badEvent("invalid stop event", "")
		}
		return msg, nil
	case "mark":
		var msg InboundMark
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badEvent("invalid mark event", "")
		}
		return msg, nil
	case "connected":
		// Some transports announce the raw socket before the stream starts.
		return InboundMark{Event: "mark"}, nil
	default:
		return nil, unknownEvent("unsupported event " + event)
	}
}
