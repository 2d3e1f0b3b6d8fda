// Package audio handles μ-law audio framing for the telephony media leg.
//
// The outbound transport consumes fixed 20ms frames: 160 bytes of 8-bit
// companded samples at 8kHz. Synthesizer output arrives in arbitrarily sized
// chunks and must be re-cut to that boundary before playback.
package audio

import (
	"encoding/base64"
)

// FrameSize is one transport timing unit: 20ms at 8kHz, one byte per sample.
const FrameSize = 160

// Frames splits buf into consecutive FrameSize-byte frames. The final frame
// may be shorter and is emitted as-is; the transport accepts a short tail.
// Concatenating the returned frames reproduces buf exactly.
func Frames(buf []byte) [][]byte {
	if len(buf) == 0 {
		return nil
	}
	out := make([][]byte, 0, (len(buf)+FrameSize-1)/FrameSize)
	for start := 0; start < len(buf); start += FrameSize {
		end := start + FrameSize
		if end > len(buf) {
			end = len(buf)
		}
		frame := make([]byte, end-start)
		copy(frame, buf[start:end])
		out = append(out, frame)
	}
	return out
}

// DecodeInbound decodes one base64 media payload from the transport.
// Empty or malformed payloads yield nil; the caller drops them silently.
func DecodeInbound(payload string) []byte {
	if payload == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// Some transports omit padding.
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil
		}
	}
	return data
}

// EncodeOutbound encodes one frame for an outbound media event.
func EncodeOutbound(frame []byte) string {
	return base64.StdEncoding.EncodeToString(frame)
}
