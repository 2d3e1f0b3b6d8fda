package session

import "sync/atomic"

// relay tracks agent playback generations. Each spoken response gets a new
// generation id; audio arriving for a canceled or superseded generation is
// dropped so no stale frames reach the caller after a barge-in.
//
// All methods except canceled are called from the session loop goroutine.
// canceled is also read by the outbound writer, hence the atomic.
type relay struct {
	generation   int64
	lastCanceled atomic.Int64
	speaking     bool

	// staleFinals counts interrupted generations whose trailing synthesizer
	// output has not drained yet. While nonzero, incoming chunks belong to a
	// canceled generation, not the current one.
	staleFinals int
}

// begin starts a new playback generation and returns its id.
func (r *relay) begin() int64 {
	r.generation++
	r.speaking = true
	return r.generation
}

// isSpeaking reports whether an agent response is currently playing.
func (r *relay) isSpeaking() bool { return r.speaking }

// current returns the active generation id, or 0 when idle.
func (r *relay) current() int64 {
	if !r.speaking {
		return 0
	}
	return r.generation
}

// interrupt cancels the active generation. It returns true only the first
// time per generation; repeated interrupts are no-ops.
func (r *relay) interrupt() bool {
	if !r.speaking {
		return false
	}
	r.speaking = false
	r.lastCanceled.Store(r.generation)
	r.staleFinals++
	return true
}

// consumeStale reports whether an incoming synthesizer chunk belongs to an
// interrupted generation and should be dropped. The chunk stream is ordered,
// so each canceled generation stays stale until its final chunk passes.
func (r *relay) consumeStale(final bool) bool {
	if r.staleFinals == 0 {
		return false
	}
	if final {
		r.staleFinals--
	}
	return true
}

// complete marks the given generation as fully synthesized. Completions for
// stale or canceled generations are ignored.
func (r *relay) complete(generation int64) bool {
	if !r.speaking || generation != r.generation {
		return false
	}
	r.speaking = false
	return true
}

// canceled reports whether the given generation was interrupted.
func (r *relay) canceled(generation int64) bool {
	return generation <= r.lastCanceled.Load()
}
