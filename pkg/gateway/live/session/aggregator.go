package session

import "strings"

// aggregator buffers finalized transcript segments until the session is ready
// to dispatch them as one utterance. Finals that arrive while a reasoning call
// is in flight coalesce into the next dispatch instead of spawning a second
// one.
type aggregator struct {
	pending []string
}

// addFinal buffers one finalized segment. Blank segments are dropped.
func (a *aggregator) addFinal(text string) {
	trimmed := normalizeSpace(text)
	if trimmed == "" {
		return
	}
	a.pending = append(a.pending, trimmed)
}

// takeIfReady drains the buffer into a single utterance. It returns false when
// the buffer is empty or a reasoning call is already in flight; the buffered
// text stays put for the next attempt.
func (a *aggregator) takeIfReady(inFlight bool) (string, bool) {
	if inFlight || len(a.pending) == 0 {
		return "", false
	}
	utterance := strings.Join(a.pending, " ")
	a.pending = a.pending[:0]
	return utterance, true
}

// hasPending reports whether any finalized text is waiting for dispatch.
func (a *aggregator) hasPending() bool { return len(a.pending) > 0 }

// reset discards any buffered text.
func (a *aggregator) reset() { a.pending = a.pending[:0] }

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
