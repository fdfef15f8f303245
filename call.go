package xchg

import (
	"sync"

	"github.com/xchgio/xchg-client/pkg/types"
	"github.com/xchgio/xchg-client/procbridge"
	"github.com/xchgio/xchg-client/tunnel"
	"github.com/xchgio/xchg-client/wire"
)

// Direction is whether a Call was placed by this engine or received from
// the Exchange.
type Direction int

const (
	DirectionOutbound Direction = iota
	DirectionInbound
)

func (d Direction) String() string {
	if d == DirectionInbound {
		return "inbound"
	}
	return "outbound"
}

// State is a Call's lifecycle state (§3). Transitions are one-way:
// nothing ever leaves StateEnded once it is reached.
type State int

const (
	StatePending State = iota
	StateRinging
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRinging:
		return "ringing"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// controller is the capability a Call delegates wire operations to,
// injected by the engine (§9 DESIGN NOTES: cyclic ownership). It is
// nilled out on engine teardown, after which the call's operations fail
// with KindIllegalState rather than reach back into a dead engine.
type controller interface {
	sendFrame(f *wire.Frame) error
	endCall(id string)
	structuredCodec() wire.StructuredCodec
}

// Call is a bidirectional session with a peer address, demultiplexed by
// the engine from inbound frames carrying its call id (§3, §4.4). Events:
// "connected", "message" (Payload), "hangup" (reason string), "error"
// (error).
type Call struct {
	types.EventEmitter

	id          string
	direction   Direction
	peerAddress string
	metadata    map[string]any

	mu         sync.Mutex
	state      State
	controller controller
	stream     *tunnel.Stream
}

func newCall(id string, direction Direction, peerAddress string, metadata map[string]any, ctrl controller) *Call {
	c := &Call{
		EventEmitter: types.NewEventEmitter(),
		id:           id,
		direction:    direction,
		peerAddress:  peerAddress,
		metadata:     metadata,
		controller:   ctrl,
	}
	if direction == DirectionInbound {
		c.state = StateRinging
	} else {
		c.state = StatePending
	}
	return c
}

// ID returns the server-assigned call id.
func (c *Call) ID() string { return c.id }

// Direction reports whether this call was dialed or received.
func (c *Call) Direction() Direction { return c.direction }

// PeerAddress is the address at the other end of the call.
func (c *Call) PeerAddress() string { return c.peerAddress }

// Metadata is the opaque metadata attached at dial/ring time.
func (c *Call) Metadata() map[string]any { return c.metadata }

// State reports the call's current lifecycle state.
func (c *Call) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Call) setActive() {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	c.state = StateActive
	c.mu.Unlock()
	c.Emit("connected")
}

// setEnded transitions the call to ended exactly once, tearing down any
// tunnel stream. Used for both remote HANGUP and the disconnect cascade.
func (c *Call) setEnded(reason string) {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return
	}
	c.state = StateEnded
	stream := c.stream
	c.mu.Unlock()

	if stream != nil {
		stream.EndFromRemote()
	}
	c.Emit("hangup", reason)
}

// invalidate severs the call's link back to the engine. Called on engine
// teardown (§9 DESIGN NOTES); subsequent Answer/Send/Hangup calls fail
// with KindIllegalState instead of touching a dead engine.
func (c *Call) invalidate() {
	c.mu.Lock()
	c.controller = nil
	c.mu.Unlock()
}

// streamIfPresent returns the call's tunnel stream only if it has already
// been created via Stream(); it never creates one as a side effect.
func (c *Call) streamIfPresent() *tunnel.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

// Stream returns the call's tunnel stream, creating it on first call
// (§4.5: "created lazily on first getStream"). Returns nil once the call
// has ended.
func (c *Call) Stream() *tunnel.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateEnded {
		return nil
	}
	if c.stream == nil {
		ctrl := c.controller
		id := c.id
		c.stream = tunnel.NewStream(id, func(b []byte) error {
			if ctrl == nil {
				return errDisconnected()
			}
			f := &wire.Frame{Type: wire.TypeMsg, CallID: id}
			if err := wire.EncodePayload(f, wire.Payload{ContentType: wire.Binary, Binary: b}, ctrl.structuredCodec()); err != nil {
				return errInvalidPayload(err.Error())
			}
			return ctrl.sendFrame(f)
		})
	}
	return c.stream
}

// Answer accepts an inbound ringing call (§4.4). Valid only when
// direction is inbound and state is ringing.
func (c *Call) Answer() error {
	c.mu.Lock()
	if c.direction != DirectionInbound || c.state != StateRinging {
		c.mu.Unlock()
		return errIllegalState("answer", "call is not a ringing inbound call")
	}
	ctrl := c.controller
	c.mu.Unlock()

	if ctrl == nil {
		return errIllegalState("answer", "engine has been torn down")
	}
	if err := ctrl.sendFrame(&wire.Frame{Type: wire.TypeAnswer, CallID: c.id}); err != nil {
		return err
	}

	c.setActive()
	return nil
}

// Send transmits data over an active call (§4.4). contentType is
// inferred from data's Go type when omitted: []byte -> binary, string ->
// text, anything else -> structured.
func (c *Call) Send(data any, contentType ...wire.ContentType) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return errIllegalState("send", "call is not active")
	}
	ctrl := c.controller
	c.mu.Unlock()

	if ctrl == nil {
		return errIllegalState("send", "engine has been torn down")
	}

	payload, err := inferPayload(data, contentType...)
	if err != nil {
		return err
	}

	f := &wire.Frame{Type: wire.TypeMsg, CallID: c.id}
	if err := wire.EncodePayload(f, payload, ctrl.structuredCodec()); err != nil {
		return errInvalidPayload(err.Error())
	}
	return ctrl.sendFrame(f)
}

// Hangup ends the call locally (§4.4). No-op if already ended.
func (c *Call) Hangup(reason ...string) error {
	c.mu.Lock()
	if c.state == StateEnded {
		c.mu.Unlock()
		return nil
	}
	ctrl := c.controller
	if ctrl == nil {
		c.mu.Unlock()
		return errIllegalState("hangup", "engine has been torn down")
	}
	r := ""
	if len(reason) > 0 {
		r = reason[0]
	}
	c.state = StateEnded
	stream := c.stream
	c.mu.Unlock()

	if stream != nil {
		stream.EndFromRemote()
	}

	_ = ctrl.sendFrame(&wire.Frame{Type: wire.TypeHangup, CallID: c.id, Reason: r})
	ctrl.endCall(c.id)

	c.Emit("hangup", r)
	return nil
}

// TunnelOptions configures Tunnel (§4.6).
type TunnelOptions struct {
	procbridge.Options
	// CloseOnHangup closes the returned handle exactly once when the
	// call emits "hangup". Default true.
	CloseOnHangup bool
}

// DefaultTunnelOptions returns the spec-mandated defaults (§4.6).
func DefaultTunnelOptions() TunnelOptions {
	return TunnelOptions{Options: procbridge.DefaultOptions(), CloseOnHangup: true}
}

// Tunnel starts process (awaiting its Start if implemented) and pipes it
// bidirectionally through the call's tunnel stream (§4.4, §4.6). Valid
// only when the call is active.
func (c *Call) Tunnel(process procbridge.Process, opts TunnelOptions) (*procbridge.Handle, error) {
	if c.State() != StateActive {
		return nil, errIllegalState("tunnel", "call is not active")
	}

	stream := c.Stream()
	if stream == nil {
		return nil, errIllegalState("tunnel", "call has ended")
	}

	handle, err := procbridge.Attach(stream, process, opts.Options)
	if err != nil {
		return nil, err
	}

	if opts.CloseOnHangup {
		var once sync.Once
		c.On("hangup", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if s, ok := args[0].(string); ok {
					reason = s
				}
			}
			once.Do(func() { handle.Close(reason) })
		})
	}

	return handle, nil
}

// inferPayload resolves data and an optional explicit content type into a
// wire.Payload (§4.4 send contentType inference).
func inferPayload(data any, contentType ...wire.ContentType) (wire.Payload, error) {
	var ct wire.ContentType
	if len(contentType) > 0 {
		ct = contentType[0]
	} else {
		switch data.(type) {
		case []byte:
			ct = wire.Binary
		case string:
			ct = wire.Text
		default:
			ct = wire.Structured
		}
	}

	switch ct {
	case wire.Binary:
		b, ok := data.([]byte)
		if !ok {
			return wire.Payload{}, errInvalidPayload("binary send requires []byte data")
		}
		return wire.Payload{ContentType: wire.Binary, Binary: b}, nil
	case wire.Text:
		s, ok := data.(string)
		if !ok {
			return wire.Payload{}, errInvalidPayload("text send requires string data")
		}
		return wire.Payload{ContentType: wire.Text, Text: s}, nil
	default:
		return wire.Payload{ContentType: wire.Structured, Structured: data}, nil
	}
}
