package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/xchgio/xchg-client/pkg/log"
	"github.com/xchgio/xchg-client/pkg/types"
)

var wsLog = log.NewLog("xchg:transport:websocket")

// websocketTransport is the built-in Transport, dialing the Exchange over
// a single WebSocket connection. Exchanges behind other byte-stream
// carriers plug in their own Transport via a Factory instead (§6).
type websocketTransport struct {
	types.EventEmitter

	dialer *ws.Dialer
	conn   *ws.Conn

	state atomic.Int32
	mu    sync.Mutex // guards writes; gorilla/websocket forbids concurrent writers
}

// NewWebSocketFactory returns a Factory producing the default WebSocket
// transport.
func NewWebSocketFactory() Factory {
	return func() Transport {
		return &websocketTransport{
			EventEmitter: types.NewEventEmitter(),
			dialer:       &ws.Dialer{Proxy: http.ProxyFromEnvironment},
		}
	}
}

func (w *websocketTransport) State() State {
	return State(w.state.Load())
}

func (w *websocketTransport) setState(s State) {
	w.state.Store(int32(s))
}

func (w *websocketTransport) Connect(ctx context.Context, url string) error {
	w.setState(StateConnecting)

	conn, _, err := w.dialer.DialContext(ctx, url, nil)
	if err != nil {
		w.setState(StateClosed)
		w.Emit("error", err)
		return err
	}

	w.conn = conn
	w.setState(StateOpen)
	w.Emit("open")

	go w.readLoop()

	return nil
}

func (w *websocketTransport) readLoop() {
	for {
		mt, data, err := w.conn.ReadMessage()
		if err != nil {
			if w.State() == StateClosed || w.State() == StateClosing {
				return
			}
			if ws.IsUnexpectedCloseError(err) || errors.Is(err, net.ErrClosed) {
				w.setState(StateClosed)
				w.Emit("close", 1006, err.Error())
			} else {
				w.Emit("error", err)
			}
			return
		}

		switch mt {
		case ws.TextMessage:
			w.Emit("message", Inbound{IsText: true, Text: string(data)})
		case ws.BinaryMessage:
			w.Emit("message", Inbound{Bytes: data})
		case ws.CloseMessage:
			w.setState(StateClosed)
			w.Emit("close", 1000, "")
			return
		}
	}
}

func (w *websocketTransport) Send(frame Outbound) error {
	if w.State() != StateOpen {
		wsLog.Debug("send while not open, dropping frame")
		return errors.New("transport not open")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if frame.IsText {
		return w.conn.WriteMessage(ws.TextMessage, []byte(frame.Text))
	}
	return w.conn.WriteMessage(ws.BinaryMessage, frame.Bytes)
}

func (w *websocketTransport) Close(code int, reason string) error {
	prev := State(w.state.Swap(int32(StateClosing)))
	if prev == StateClosed || prev == StateIdle {
		w.state.Store(int32(StateClosed))
		return nil
	}

	w.mu.Lock()
	if w.conn != nil {
		closeCode := code
		if closeCode == 0 {
			closeCode = ws.CloseNormalClosure
		}
		_ = w.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(closeCode, reason), time.Now().Add(time.Second))
		err := w.conn.Close()
		w.mu.Unlock()
		w.setState(StateClosed)
		w.Emit("close", code, reason)
		return err
	}
	w.mu.Unlock()

	w.setState(StateClosed)
	w.Emit("close", code, reason)
	return nil
}
