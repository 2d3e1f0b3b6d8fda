// Package stt provides streaming speech-to-text for live calls.
package stt

import "context"

// Segment is one streaming recognition update.
type Segment struct {
	Text         string // transcribed text, possibly interim
	IsFinal      bool   // true when the recognizer will not revise this text
	UtteranceEnd bool   // true for a recognizer-side endpointing signal
}

// StreamOptions configures a live recognition stream.
type StreamOptions struct {
	Model          string // provider-specific model name
	Language       string // ISO language code (default: "en-US")
	Encoding       string // raw audio encoding (default: "mulaw")
	SampleRate     int    // audio sample rate in Hz (default: 8000)
	UtteranceEndMS int    // silence window for endpointing, 0 disables
	Interim        bool   // request interim (non-final) results
}

// Stream is a live recognition session. Audio is pushed with SendAudio;
// segments arrive on Segments until the stream ends.
type Stream interface {
	// SendAudio forwards raw decoded audio bytes to the recognizer.
	SendAudio(data []byte) error

	// Finalize flushes buffered audio and ends the current utterance without
	// closing the stream.
	Finalize() error

	// Segments returns the channel of recognition updates. It is closed when
	// the stream ends.
	Segments() <-chan Segment

	// Done is closed when the stream has ended for any reason.
	Done() <-chan struct{}

	// Close finalizes and tears down the stream.
	Close() error
}

// Provider opens live recognition streams.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// NewStream opens a live recognition stream.
	NewStream(ctx context.Context, opts StreamOptions) (Stream, error)
}
