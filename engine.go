// Package xchg is the client session engine for the Exchange: connection
// lifecycle (registration, heartbeat, reconnect/backoff, re-registration),
// the per-call state machine and demultiplexer, and the public surface
// that ties them together. The wire codec lives in xchg/wire, the
// transport abstraction in xchg/transport, the byte-duplex tunnel in
// xchg/tunnel, and the process bridge in xchg/procbridge.
package xchg

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xchgio/xchg-client/pkg/log"
	"github.com/xchgio/xchg-client/pkg/types"
	"github.com/xchgio/xchg-client/pkg/utils"
	"github.com/xchgio/xchg-client/transport"
	"github.com/xchgio/xchg-client/wire"
)

var engineLog = log.NewLog("xchg:engine")

// SessionState is the engine's connection lifecycle state (§3).
type SessionState int32

const (
	SessionDisconnected SessionState = iota
	SessionConnecting
	SessionConnected
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type connectAttempt struct {
	done chan struct{}
	err  error
}

type registerCompletion struct {
	done chan struct{}
	err  error
}

// Engine owns one transport, runs the connection/registration lifecycle,
// demultiplexes inbound frames to calls, and tracks pending dials,
// heartbeat, and reconnect/backoff (§4.5). Construct with NewEngine.
type Engine struct {
	types.EventEmitter

	url  string
	opts *EngineOptions
	log  *log.Log

	codec wire.StructuredCodec

	mu         sync.RWMutex
	state      SessionState
	transport  transport.Transport
	connecting *connectAttempt
	closed     bool

	subs *types.Slice[types.Callable]

	calls        *types.Map[string, *Call]
	pendingDials *types.Slice[*PendingDial]

	pinnedRegistration *RegistrationRequest
	registerCompletion *registerCompletion

	backoff         *utils.Backoff
	reconnecting    atomic.Bool
	skipReconnect   atomic.Bool
	reconnectTimer  *utils.Timer

	heartbeatTimer  *utils.Timer
	ackTimeoutTimer *utils.Timer
	lastAckAt       atomic.Int64
}

// NewEngine constructs an Engine targeting url. The engine does not
// connect until Register or Dial is called (ensure-connected, §4.5).
func NewEngine(url string, opts ...Option) *Engine {
	resolved := resolveOptions(opts)

	e := &Engine{
		EventEmitter: types.NewEventEmitter(),
		url:          url,
		opts:         resolved,
		log:          engineLog,
		codec:        wire.JSONStructuredCodec{},
		subs:         types.NewSlice[types.Callable](),
		calls:        &types.Map[string, *Call]{},
		pendingDials: types.NewSlice[*PendingDial](),
		backoff: utils.NewBackoff(
			utils.WithMin(float64((*resolved.ReconnectBackoff).Milliseconds())),
			utils.WithMax(float64((*resolved.MaxReconnectBackoff).Milliseconds())),
			utils.WithFactor(2),
		),
	}
	if resolved.Debug {
		log.DEBUG = true
	}
	return e
}

// WithStructuredCodec overrides the default JSON structured-payload codec
// (e.g. wire.MsgpackStructuredCodec{}). Not safe to call once connected.
func (e *Engine) WithStructuredCodec(codec wire.StructuredCodec) *Engine {
	e.mu.Lock()
	e.codec = codec
	e.mu.Unlock()
	return e
}

// State reports the engine's current connection state.
func (e *Engine) State() SessionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// --- controller interface, consumed by Call ---

func (e *Engine) sendFrame(f *wire.Frame) error {
	return e.send(f)
}

func (e *Engine) endCall(id string) {
	if call, ok := e.calls.LoadAndDelete(id); ok {
		if stream := call.streamIfPresent(); stream != nil {
			stream.Destroy(nil)
		}
	}
}

func (e *Engine) structuredCodec() wire.StructuredCodec {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.codec
}

var _ controller = (*Engine)(nil)

// --- low-level send ---

func (e *Engine) send(f *wire.Frame) error {
	e.mu.RLock()
	t := e.transport
	state := e.state
	e.mu.RUnlock()

	if state != SessionConnected || t == nil {
		return errDisconnected()
	}

	data, err := wire.Encode(f)
	if err != nil {
		return errInvalidPayload(err.Error())
	}
	if err := t.Send(transport.Text(string(data))); err != nil {
		return errTransport(err)
	}
	return nil
}

// --- ensure-connected ---

// ensureConnected transitions the engine to connected, joining an
// in-flight attempt if one exists (§4.5).
func (e *Engine) ensureConnected(ctx context.Context) error {
	e.mu.Lock()
	if e.state == SessionConnected {
		e.mu.Unlock()
		return nil
	}
	if attempt := e.connecting; attempt != nil {
		e.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	attempt := &connectAttempt{done: make(chan struct{})}
	e.connecting = attempt
	e.state = SessionConnecting
	e.mu.Unlock()

	err := e.dialOnce(ctx)

	e.mu.Lock()
	e.connecting = nil
	if err == nil {
		e.state = SessionConnected
	} else {
		e.state = SessionDisconnected
	}
	e.mu.Unlock()

	attempt.err = err
	close(attempt.done)

	if err == nil {
		e.onConnected()
	}
	return err
}

func (e *Engine) dialOnce(ctx context.Context) error {
	t := e.opts.TransportFactory()
	e.wireTransport(t)

	if err := t.Connect(ctx, e.url); err != nil {
		return errTransport(err)
	}

	e.mu.Lock()
	e.transport = t
	e.mu.Unlock()
	return nil
}

func (e *Engine) wireTransport(t transport.Transport) {
	offMsg := t.On("message", func(args ...any) {
		inbound, _ := args[0].(transport.Inbound)
		e.onMessage(inbound)
	})
	offClose := t.On("close", func(args ...any) {
		code, _ := args[0].(int)
		reason, _ := args[1].(string)
		e.onTransportClose(code, reason)
	})
	offErr := t.On("error", func(args ...any) {
		if err, ok := args[0].(error); ok {
			e.Emit("error", errTransport(err))
		}
	})
	e.subs.Push(offMsg, offClose, offErr)
}

func (e *Engine) onConnected() {
	e.backoff.Reset()
	e.startHeartbeat()
	e.Emit("connected")

	e.mu.RLock()
	reg := e.pinnedRegistration
	registerOnConnect := *e.opts.RegisterOnConnect
	e.mu.RUnlock()

	if reg != nil && registerOnConnect {
		e.sendRegisterFrame(reg)
	}
}

// --- disconnect cascade (§4.5 Disconnect handling) ---

func (e *Engine) onTransportClose(code int, reason string) {
	e.mu.Lock()
	if e.state == SessionDisconnected {
		e.mu.Unlock()
		return
	}
	e.state = SessionDisconnected
	e.transport = nil
	e.mu.Unlock()

	e.stopHeartbeat()
	e.disposeSubs()

	e.mu.Lock()
	reg := e.registerCompletion
	e.registerCompletion = nil
	e.mu.Unlock()
	if reg != nil {
		reg.err = errDisconnected()
		close(reg.done)
	}

	for {
		pd, err := e.pendingDials.Shift()
		if err != nil {
			break
		}
		pd.reject(errDisconnected())
	}

	e.calls.Range(func(id string, call *Call) bool {
		call.setEnded("disconnected")
		return true
	})
	e.calls.Clear()

	e.Emit("disconnected", code, reason)

	e.mu.RLock()
	autoReconnect := *e.opts.AutoReconnect
	e.mu.RUnlock()
	if autoReconnect && !e.skipReconnect.Load() {
		e.reconnect()
	}
}

func (e *Engine) disposeSubs() {
	for {
		off, err := e.subs.Shift()
		if err != nil {
			break
		}
		off()
	}
}

// onMessage decodes and dispatches one inbound frame (§4.2, §4.5).
// Malformed frames are logged as a decode-error event; the engine
// continues running.
func (e *Engine) onMessage(inbound transport.Inbound) {
	f, err := wire.Decode([]byte(inbound.AsText()))
	if err != nil {
		e.Emit("error", errDecode(err))
		return
	}
	e.dispatch(f)
}

// --- public surface ---

// Register pins address as the engine's registration request and
// asserts it with the Exchange, ensuring a connection first (§4.5
// Registration). Concurrent callers registering while a REGISTER is
// already in flight observe the same outcome.
func (e *Engine) Register(ctx context.Context, address string, opts ...RegisterOption) error {
	if err := ValidateAddress(address); err != nil {
		return err
	}

	req := &RegistrationRequest{Address: address}
	for _, opt := range opts {
		opt(req)
	}

	e.mu.Lock()
	e.pinnedRegistration = req
	e.mu.Unlock()

	if err := e.ensureConnected(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	completion := e.registerCompletion
	if completion == nil {
		completion = &registerCompletion{done: make(chan struct{})}
		e.registerCompletion = completion
		e.mu.Unlock()
		frame := registrationFrame(req)
		if err := e.send(frame); err != nil {
			e.mu.Lock()
			e.registerCompletion = nil
			e.mu.Unlock()
			return err
		}
	} else {
		e.mu.Unlock()
	}

	select {
	case <-completion.done:
		return completion.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) sendRegisterFrame(reg *RegistrationRequest) {
	e.mu.Lock()
	if e.registerCompletion != nil {
		e.mu.Unlock()
		return
	}
	e.registerCompletion = &registerCompletion{done: make(chan struct{})}
	e.mu.Unlock()

	if err := e.send(registrationFrame(reg)); err != nil {
		e.mu.Lock()
		completion := e.registerCompletion
		e.registerCompletion = nil
		e.mu.Unlock()
		if completion != nil {
			completion.err = err
			close(completion.done)
		}
	}
}

func registrationFrame(req *RegistrationRequest) *wire.Frame {
	return &wire.Frame{
		Type:            wire.TypeRegister,
		Address:         req.Address,
		Metadata:        req.Metadata,
		ConcurrencyMode: req.ConcurrencyMode,
		MaxListeners:    req.MaxListeners,
		MaxSessions:     req.MaxSessions,
		PoolSize:        req.PoolSize,
	}
}

// Unregister clears the pinned registration and sends UNREGISTER, so a
// reconnect afterwards does not re-assert the old address (§4.2 lists
// UNREGISTER as a recognized outbound frame alongside REGISTER).
func (e *Engine) Unregister() error {
	e.mu.Lock()
	e.pinnedRegistration = nil
	e.mu.Unlock()
	return e.send(&wire.Frame{Type: wire.TypeUnregister})
}

// Heartbeat manually sends a HEARTBEAT frame, invoking the same path the
// timer-driven heartbeat uses.
func (e *Engine) Heartbeat() {
	e.sendHeartbeat()
}

// Reconnect schedules a backoff-delayed connection attempt, invoking the
// same path the disconnect cascade uses. It does not drop a live
// connection: while connected the attempt does nothing, and while a
// reconnect is already scheduled, or after Close, the call is a no-op.
func (e *Engine) Reconnect() {
	e.reconnect()
}

// Close tears down the engine: disables reconnect, clears timers, and
// closes the transport. Idempotent and safe from any state (§4.5
// Teardown).
func (e *Engine) Close(code int, reason string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.skipReconnect.Store(true)
	t := e.transport
	e.mu.Unlock()

	e.stopHeartbeat()
	if e.reconnectTimer != nil {
		utils.ClearTimeout(e.reconnectTimer)
	}

	e.calls.Range(func(id string, call *Call) bool {
		call.invalidate()
		return true
	})

	if t != nil {
		return t.Close(code, reason)
	}
	return nil
}
