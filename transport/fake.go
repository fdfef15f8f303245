package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xchgio/xchg-client/pkg/types"
)

// Fake is a scriptable Transport double for tests: it never touches the
// network, records every frame handed to Send, and lets the test inject
// inbound frames and close/error events on demand.
type Fake struct {
	types.EventEmitter

	FailConnect error // if set, Connect fails with this error

	state atomic.Int32
	mu    sync.Mutex
	sent  []Outbound
}

// NewFakeFactory returns a Factory that always hands out the same *Fake, so a
// test can keep a reference to assert against it across reconnects.
func NewFakeFactory(f *Fake) Factory {
	return func() Transport { return f }
}

// NewFake constructs an unconnected Fake transport.
func NewFake() *Fake {
	return &Fake{EventEmitter: types.NewEventEmitter()}
}

func (f *Fake) State() State {
	return State(f.state.Load())
}

func (f *Fake) Connect(ctx context.Context, url string) error {
	if f.FailConnect != nil {
		f.state.Store(int32(StateClosed))
		f.Emit("error", f.FailConnect)
		return f.FailConnect
	}
	f.state.Store(int32(StateOpen))
	f.Emit("open")
	return nil
}

func (f *Fake) Send(frame Outbound) error {
	f.mu.Lock()
	f.sent = append(f.sent, frame)
	f.mu.Unlock()
	return nil
}

func (f *Fake) Close(code int, reason string) error {
	if State(f.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}
	f.Emit("close", code, reason)
	return nil
}

// Sent returns a copy of every Outbound frame handed to Send so far.
func (f *Fake) Sent() []Outbound {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Outbound, len(f.sent))
	copy(out, f.sent)
	return out
}

// InjectText delivers a text frame as if received from the Exchange.
func (f *Fake) InjectText(s string) {
	f.Emit("message", Inbound{IsText: true, Text: s})
}

// InjectClose simulates the remote end closing the connection.
func (f *Fake) InjectClose(code int, reason string) {
	f.state.Store(int32(StateClosed))
	f.Emit("close", code, reason)
}
