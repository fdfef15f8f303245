package xchg

import (
	"time"

	"github.com/xchgio/xchg-client/wire"
)

// dispatch routes one decoded inbound frame to its handler (§4.2, §4.5).
// Frame types the engine does not recognize are ignored.
func (e *Engine) dispatch(f *wire.Frame) {
	switch f.Type {
	case wire.TypeRegistered:
		e.handleRegistered(f)
	case wire.TypeRegisterFailed:
		e.handleRegisterFailed(f)
	case wire.TypeRing:
		e.handleRing(f)
	case wire.TypeConnected:
		e.handleConnected(f)
	case wire.TypeBusy:
		e.handleBusy(f)
	case wire.TypeMsg:
		e.handleMsg(f)
	case wire.TypeHangup:
		e.handleHangup(f)
	case wire.TypeHeartbeatAck:
		e.handleHeartbeatAck(f)
	}
}

func (e *Engine) handleRegistered(f *wire.Frame) {
	e.mu.Lock()
	completion := e.registerCompletion
	e.registerCompletion = nil
	e.mu.Unlock()

	if completion != nil {
		close(completion.done)
	}
	e.Emit("registered", f.Address)
}

func (e *Engine) handleRegisterFailed(f *wire.Frame) {
	e.mu.Lock()
	completion := e.registerCompletion
	e.registerCompletion = nil
	e.mu.Unlock()

	err := errRegistrationFailed(f.Reason)
	if completion != nil {
		completion.err = err
		close(completion.done)
	}
	e.Emit("registrationFailed", err)
}

// handleRing constructs an inbound, ringing Call and surfaces it via the
// engine's "ring" event (§4.5 Ring).
func (e *Engine) handleRing(f *wire.Frame) {
	call := newCall(f.CallID, DirectionInbound, f.From, f.Metadata, e)
	e.calls.Store(f.CallID, call)
	e.Emit("ring", call)
}

// handleConnected resolves either an already-known call (a renegotiation
// echo) or the oldest/matching pending dial, then transitions it active
// (§4.5 Connected, §3 matching rule).
func (e *Engine) handleConnected(f *wire.Frame) {
	if call, ok := e.calls.Load(f.CallID); ok {
		call.setActive()
		return
	}

	pd := e.takePendingDial(f.To)
	if pd == nil {
		return
	}

	call := newCall(f.CallID, DirectionOutbound, f.From, pd.metadata, e)
	call.state = StateActive
	e.calls.Store(f.CallID, call)
	pd.resolve(call)
	call.Emit("connected")
}

// handleBusy rejects the pending dial matching the BUSY's destination, or
// the oldest pending dial if none matches (§3 matching rule, §4.5 Busy).
func (e *Engine) handleBusy(f *wire.Frame) {
	pd := e.takePendingDial(f.To)
	if pd == nil {
		return
	}
	pd.reject(errCallFailed(f.Reason))
}

// handleMsg demultiplexes an inbound MSG frame to its call, feeding binary
// payloads into the call's tunnel stream if one has been created, and
// always emitting the call's "message" event. Frames for unknown call ids
// are dropped silently (§4.5 Msg).
func (e *Engine) handleMsg(f *wire.Frame) {
	call, ok := e.calls.Load(f.CallID)
	if !ok {
		return
	}

	payload := wire.DecodePayload(f, e.structuredCodec())
	if payload.ContentType == wire.Binary {
		if stream := call.streamIfPresent(); stream != nil {
			stream.PushInbound(payload.Binary)
		}
	}
	call.Emit("message", payload)
}

func (e *Engine) handleHangup(f *wire.Frame) {
	if call, ok := e.calls.LoadAndDelete(f.CallID); ok {
		call.setEnded(f.Reason)
	}
}

func (e *Engine) handleHeartbeatAck(f *wire.Frame) {
	e.lastAckAt.Store(time.Now().UnixMilli())
	if e.ackTimeoutTimer != nil {
		e.ackTimeoutTimer.Stop()
	}
	e.Emit("heartbeatAck", time.Now())
}
