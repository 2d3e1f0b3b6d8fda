package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vango-go/voicegate/pkg/core/reason"
	"github.com/vango-go/voicegate/pkg/store"
)

const persistOpTimeout = 5 * time.Second

type persistOp struct {
	openStreamSid string
	openCallSid   string
	open          bool

	turnRole store.Role
	turnText string

	intent *reason.Result

	closeCall bool
}

// persister serializes best-effort store writes on its own goroutine so a
// slow or failing database never stalls the session loop. Writes that cannot
// be queued are dropped and logged.
type persister struct {
	store  store.Store
	logger *slog.Logger
	ops    chan persistOp
	done   chan struct{}
	closed atomic.Bool
}

func newPersister(st store.Store, logger *slog.Logger) *persister {
	if st == nil {
		st = store.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &persister{
		store:  st,
		logger: logger,
		ops:    make(chan persistOp, 64),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) run() {
	defer close(p.done)
	var callID string
	for op := range p.ops {
		ctx, cancel := context.WithTimeout(context.Background(), persistOpTimeout)
		switch {
		case op.open:
			id, err := p.store.OpenCall(ctx, op.openStreamSid, op.openCallSid)
			if err != nil {
				p.logger.Warn("open call record failed", "error", err)
			} else {
				callID = id
			}
		case op.turnText != "":
			if callID == "" {
				break
			}
			if err := p.store.RecordTurn(ctx, callID, op.turnRole, op.turnText); err != nil {
				p.logger.Warn("record turn failed", "error", err)
			}
		case op.intent != nil:
			if callID == "" {
				break
			}
			if err := p.store.RecordIntent(ctx, callID, op.intent.Intent, op.intent.Escalate, op.intent.Slots); err != nil {
				p.logger.Warn("record intent failed", "error", err)
			}
		case op.closeCall:
			if callID == "" {
				break
			}
			if err := p.store.CloseCall(ctx, callID); err != nil {
				p.logger.Warn("close call record failed", "error", err)
			}
		}
		cancel()
	}
}

func (p *persister) enqueue(op persistOp) {
	if p.closed.Load() {
		return
	}
	select {
	case p.ops <- op:
	default:
		p.logger.Warn("persistence queue full, dropping write")
	}
}

func (p *persister) OpenCall(streamSid, callSid string) {
	p.enqueue(persistOp{open: true, openStreamSid: streamSid, openCallSid: callSid})
}

func (p *persister) RecordTurn(role store.Role, text string) {
	if text == "" {
		return
	}
	p.enqueue(persistOp{turnRole: role, turnText: text})
}

func (p *persister) RecordIntent(res reason.Result) {
	p.enqueue(persistOp{intent: &res})
}

// CloseCall stamps the call end and shuts the persister down. It waits
// briefly for queued writes to land.
func (p *persister) CloseCall(wait time.Duration) {
	p.enqueue(persistOp{closeCall: true})
	if p.closed.Swap(true) {
		return
	}
	close(p.ops)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-p.done:
	case <-timer.C:
	}
}
