// Package transport abstracts the full-duplex, message-oriented byte
// stream the session engine rides on top of (§4.1). The engine never
// depends on a concrete transport directly; it is handed a Factory and
// talks to whatever that factory produces through this interface.
package transport

import (
	"context"

	"github.com/xchgio/xchg-client/pkg/types"
)

// State is the lifecycle state of a Transport, mirroring a WebSocket's
// readyState.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Outbound is a single frame handed to Send: either a text string or an
// opaque byte buffer, never both. Use Text/Binary to construct one.
type Outbound struct {
	IsText bool
	Text   string
	Bytes  []byte
}

// Text constructs a text Outbound frame.
func Text(s string) Outbound { return Outbound{IsText: true, Text: s} }

// Binary constructs a binary Outbound frame.
func Binary(b []byte) Outbound { return Outbound{Bytes: b} }

// Inbound is a single frame delivered on the "message" event. The engine
// treats payloads polymorphically: a string is taken as-is, and a byte
// buffer is decoded as UTF-8 (§4.1) before the wire codec ever sees it,
// since the Exchange protocol is JSON-per-frame text regardless of which
// transport carries it.
type Inbound struct {
	IsText bool
	Text   string
	Bytes  []byte
}

// AsText attempts to read the frame as UTF-8 text regardless of how it
// arrived over the wire.
func (i Inbound) AsText() string {
	if i.IsText {
		return i.Text
	}
	return string(i.Bytes)
}

// Transport is a polymorphic full-duplex message transport (§4.1). It
// emits "open", "message" (with an Inbound argument), "close" (code int,
// reason string), and "error" (error) on its embedded EventEmitter. The
// engine never blocks a transport's delivery path beyond enqueueing into
// per-call buffers (§4.1), so listeners registered here must not block.
type Transport interface {
	types.EventEmitter

	// Connect dials url and blocks until the connection is established
	// or ctx is done / the dial fails. On success the transport also
	// emits "open"; on failure it emits "error" and this call returns
	// the same error.
	Connect(ctx context.Context, url string) error

	// Send hands a frame to the transport for delivery. The built-in
	// WebSocket transport writes the frame to the connection before
	// returning, so its Send can block on the network; it has no separate
	// outbound queue.
	Send(frame Outbound) error

	// Close begins closing the transport with an optional code/reason,
	// eventually emitting "close". Idempotent.
	Close(code int, reason string) error

	// State reports the current lifecycle state.
	State() State
}

// Factory produces a fresh, unconnected Transport instance. The engine
// calls it once per connection attempt (§4.5 Ensure-connected).
type Factory func() Transport
