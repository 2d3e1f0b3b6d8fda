// Package tts provides streaming text-to-speech for live calls.
package tts

import "context"

// Chunk is one synthesis output event: a block of raw audio, a
// generation-complete marker, or both.
type Chunk struct {
	Audio []byte // raw audio bytes in the negotiated output format
	Final bool   // true once the requested generation has finished
}

// StreamOptions configures a live synthesis stream.
type StreamOptions struct {
	Voice        string // provider-specific voice identifier
	Model        string // provider-specific model name
	OutputFormat string // audio output format (default: "ulaw_8000")
}

// Stream is a live synthesis session. Text is pushed with SendText; audio
// chunks arrive on Chunks until the stream ends.
type Stream interface {
	// SendText submits text for synthesis. When trigger is true the provider
	// is asked to start generating immediately rather than buffering.
	SendText(ctx context.Context, text string, trigger bool) error

	// Chunks returns the channel of synthesis output. It is closed when the
	// stream ends.
	Chunks() <-chan Chunk

	// Done is closed when the stream has ended for any reason.
	Done() <-chan struct{}

	// Close tears down the stream.
	Close() error
}

// Provider opens live synthesis streams.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// NewStream opens a live synthesis stream.
	NewStream(ctx context.Context, opts StreamOptions) (Stream, error)
}
