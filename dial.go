package xchg

import (
	"context"
	"time"

	"github.com/xchgio/xchg-client/pkg/utils"
	"github.com/xchgio/xchg-client/wire"
)

// PendingDial is an outbound dial that has been sent but has not yet
// matched a CONNECTED or BUSY (§3). FIFO-ordered on the engine.
type PendingDial struct {
	to       string
	metadata map[string]any

	done chan struct{}
	call *Call
	err  error

	timer *utils.Timer
}

func (pd *PendingDial) resolve(call *Call) {
	pd.call = call
	close(pd.done)
}

func (pd *PendingDial) reject(err error) {
	pd.err = err
	close(pd.done)
}

// Dial places an outbound call to address (§4.5 Dial), ensuring a
// connection first. An optional timeout rejects the dial with
// KindTimeout if neither CONNECTED nor BUSY matches in time.
func (e *Engine) Dial(ctx context.Context, to string, opts ...DialOption) (*Call, error) {
	if err := ValidateAddress(to); err != nil {
		return nil, err
	}

	dopts := &DialOptions{}
	for _, opt := range opts {
		opt(dopts)
	}

	if err := e.ensureConnected(ctx); err != nil {
		return nil, err
	}

	pd := &PendingDial{to: to, metadata: dopts.Metadata, done: make(chan struct{})}
	e.pendingDials.Push(pd)

	frame := &wire.Frame{Type: wire.TypeDial, To: to, Metadata: dopts.Metadata}
	if err := e.send(frame); err != nil {
		e.removePendingDial(pd)
		return nil, err
	}

	if dopts.TimeoutMs > 0 {
		pd.timer = utils.SetTimeout(func() {
			if e.removePendingDial(pd) {
				pd.reject(errTimeout("dial"))
			}
		}, time.Duration(dopts.TimeoutMs)*time.Millisecond)
	}

	select {
	case <-pd.done:
		if pd.timer != nil {
			utils.ClearTimeout(pd.timer)
		}
		return pd.call, pd.err
	case <-ctx.Done():
		e.removePendingDial(pd)
		if pd.timer != nil {
			utils.ClearTimeout(pd.timer)
		}
		return nil, ctx.Err()
	}
}

// removePendingDial removes pd from the FIFO if still present, returning
// whether it was found (false means it already matched or was already
// removed by someone else).
func (e *Engine) removePendingDial(pd *PendingDial) bool {
	removed, _ := e.pendingDials.RangeAndSplice(func(candidate *PendingDial, i int) (bool, int, int, []*PendingDial) {
		return candidate == pd, i, 1, nil
	})
	return len(removed) > 0
}

// takePendingDial dequeues the first pending dial whose destination
// equals to, falling back to the oldest pending dial overall (§4.5:
// matching rule shared by CONNECTED and BUSY).
func (e *Engine) takePendingDial(to string) *PendingDial {
	if removed, _ := e.pendingDials.RangeAndSplice(func(pd *PendingDial, i int) (bool, int, int, []*PendingDial) {
		return pd.to == to, i, 1, nil
	}); len(removed) > 0 {
		return removed[0]
	}
	if removed, _ := e.pendingDials.Splice(0, 1); len(removed) > 0 {
		return removed[0]
	}
	return nil
}
