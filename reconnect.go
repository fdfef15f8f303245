package xchg

import (
	"context"
	"time"

	"github.com/xchgio/xchg-client/pkg/utils"
)

// reconnect arms a single backoff-delayed reconnect attempt, recursing on
// failure with a grown delay (§4.5 Reconnect/backoff). Only one reconnect
// loop runs at a time; a second call while one is already scheduled is a
// no-op.
func (e *Engine) reconnect() {
	if !e.reconnecting.CompareAndSwap(false, true) {
		return
	}

	delay := time.Duration(e.backoff.Duration()) * time.Millisecond
	e.log.Debug("scheduling reconnect in %s", delay)

	e.mu.Lock()
	e.reconnectTimer = utils.SetTimeout(e.attemptReconnect, delay)
	e.mu.Unlock()
}

func (e *Engine) attemptReconnect() {
	if e.skipReconnect.Load() {
		e.reconnecting.Store(false)
		return
	}

	if err := e.ensureConnected(context.Background()); err != nil {
		e.reconnecting.Store(false)
		if e.skipReconnect.Load() {
			return
		}
		e.reconnect()
		return
	}

	e.reconnecting.Store(false)
}
