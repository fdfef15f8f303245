package xchg

import (
	"time"

	"github.com/xchgio/xchg-client/pkg/utils"
	"github.com/xchgio/xchg-client/wire"
)

// startHeartbeat arms the periodic HEARTBEAT sender (§4.5 Heartbeat). A
// zero or negative interval disables heartbeating entirely.
func (e *Engine) startHeartbeat() {
	interval := *e.opts.HeartbeatInterval
	if interval <= 0 {
		return
	}

	e.lastAckAt.Store(time.Now().UnixMilli())
	e.sendHeartbeat()

	e.mu.Lock()
	e.heartbeatTimer = utils.SetInterval(e.sendHeartbeat, interval)
	e.mu.Unlock()
}

func (e *Engine) stopHeartbeat() {
	e.mu.Lock()
	hb := e.heartbeatTimer
	ack := e.ackTimeoutTimer
	e.heartbeatTimer = nil
	e.ackTimeoutTimer = nil
	e.mu.Unlock()

	utils.ClearInterval(hb)
	utils.ClearTimeout(ack)
}

// sendHeartbeat sends one HEARTBEAT frame and arms the ack deadline. If
// the send itself fails the transport is already going down, so the
// failure is swallowed; onTransportClose will run the disconnect cascade.
func (e *Engine) sendHeartbeat() {
	if err := e.send(&wire.Frame{Type: wire.TypeHeartbeat}); err != nil {
		return
	}

	timeout := *e.opts.HeartbeatTimeout
	if timeout <= 0 {
		return
	}

	e.mu.Lock()
	e.ackTimeoutTimer = utils.SetTimeout(e.checkAck, timeout)
	e.mu.Unlock()
}

// checkAck fires the heartbeat timeout deadline: if no HEARTBEAT_ACK has
// landed within the last timeout, the transport is forced closed so the
// disconnect cascade (and, if enabled, reconnect) takes over (§4.5
// Heartbeat timeout, scenario 5).
func (e *Engine) checkAck() {
	e.mu.RLock()
	t := e.transport
	timeout := *e.opts.HeartbeatTimeout
	e.mu.RUnlock()

	if t == nil {
		return
	}
	if time.Since(time.UnixMilli(e.lastAckAt.Load())) < timeout {
		return
	}
	t.Close(4000, "heartbeat_timeout")
}
