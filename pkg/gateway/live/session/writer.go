package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// outboundFrame is one queued transport message. Audio frames carry the
// playback generation they belong to so the writer can discard them after a
// barge-in clear.
type outboundFrame struct {
	isAudio    bool
	generation int64
	payload    []byte
}

// outboundWriter serializes all websocket writes. The priority lane carries
// clear events and must drain before any queued media frame; the normal lane
// carries media and mark frames.
type outboundWriter struct {
	ws         wsWriter
	ctx        context.Context
	cfg        Config
	priority   <-chan outboundFrame
	normal     <-chan outboundFrame
	isCanceled func(int64) bool
	onWrite    func(frame outboundFrame)
}

func (w *outboundWriter) Run() error {
	if w == nil || w.ws == nil {
		return nil
	}

	pingInterval := w.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := w.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	var pendingNormal *outboundFrame

	for {
		if w.ctx != nil {
			select {
			case <-w.ctx.Done():
				w.flushPriorityOnShutdown(writeTimeout)
				_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
				_ = w.ws.Close()
				return nil
			default:
			}
		}

		// Hard priority: anything queued jumps ahead of media frames.
		select {
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.writeFrame(frame, writeTimeout); err != nil {
				return err
			}
			continue
		default:
		}

		// A pending normal frame still yields to a freshly queued priority
		// frame before it is written.
		if pendingNormal != nil {
			select {
			case frame, ok := <-w.priority:
				if !ok {
					w.priority = nil
					continue
				}
				if err := w.writeFrame(frame, writeTimeout); err != nil {
					return err
				}
				continue
			default:
			}
			if err := w.writeFrame(*pendingNormal, writeTimeout); err != nil {
				return err
			}
			pendingNormal = nil
			continue
		}

		if w.priority == nil && w.normal == nil {
			return nil
		}

		select {
		case <-w.ctxDone():
			// Loop back so the shutdown path at the top runs.
			continue
		case <-pingTicker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.writeFrame(frame, writeTimeout); err != nil {
				return err
			}
		case frame, ok := <-w.normal:
			if !ok {
				w.normal = nil
				continue
			}
			pendingNormal = &frame
		}
	}
}

func (w *outboundWriter) ctxDone() <-chan struct{} {
	if w.ctx == nil {
		return nil
	}
	return w.ctx.Done()
}

func (w *outboundWriter) flushPriorityOnShutdown(writeTimeout time.Duration) {
	if w == nil || w.ws == nil || w.priority == nil {
		return
	}

	flushTimeout := 100 * time.Millisecond
	if writeTimeout > 0 && writeTimeout < flushTimeout {
		flushTimeout = writeTimeout
	}
	if flushTimeout <= 0 {
		return
	}

	deadline := time.Now().Add(flushTimeout)
	maxFlushFrames := 8

	for i := 0; i < maxFlushFrames && time.Now().Before(deadline); i++ {
		select {
		case frame, ok := <-w.priority:
			if !ok {
				return
			}
			_ = w.writeFrame(frame, writeTimeout)
		default:
			return
		}
	}
}

func (w *outboundWriter) writeFrame(frame outboundFrame, writeTimeout time.Duration) error {
	if frame.isAudio && w.isCanceled != nil && w.isCanceled(frame.generation) {
		return nil
	}
	if len(frame.payload) == 0 {
		return nil
	}

	if err := w.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := w.ws.WriteMessage(websocket.TextMessage, frame.payload); err != nil {
		return err
	}
	if w.onWrite != nil {
		w.onWrite(frame)
	}
	return nil
}
