// Package tunnel implements the byte-oriented duplex pipe layered on top
// of a call (spec §4.3): chunking and framing outbound bytes, reassembling
// inbound chunks in arrival order, and signalling end-of-stream/backpressure
// to whatever owns the stream (a Call, or the process bridge).
package tunnel

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/xchgio/xchg-client/pkg/types"
)

// ErrStreamClosed is returned by Write once the stream has been destroyed.
// End-of-stream from the remote side ends only the readable half; Write
// keeps working until Destroy.
var ErrStreamClosed = errors.New("tunnel: stream closed")

const (
	// DefaultChunkSize bounds a single outbound binary MSG frame's payload
	// before base64 framing.
	DefaultChunkSize = 32 * 1024
	// DefaultHighWatermark is the number of outstanding outbound chunks
	// (or, on the inbound side, chunk-equivalents) a Stream tolerates
	// before Write stalls / a backpressure event fires (§4.3).
	DefaultHighWatermark = 16
)

// Sender hands one outbound chunk to the owning call's send path. It is
// expected to be synchronous and non-blocking, mirroring the engine's
// send contract (§5): Sender is what ultimately calls Engine.send under
// the hood.
type Sender func([]byte) error

// Stream is a duplex byte pipe anchored to one call id. A call owns at
// most one Stream (§3). Events: "backpressure" (no args, advisory),
// "end" (remote signalled end-of-stream), "close" (err error, destroyed).
type Stream struct {
	types.EventEmitter

	callID    string
	send      Sender
	chunkSize int
	compress  bool

	outCh     chan []byte
	doneCh    chan struct{}
	closeOnce sync.Once

	mu           sync.Mutex
	cond         *sync.Cond
	inbound      [][]byte
	inboundBytes int
	ended        bool
	destroyed    bool
	destroyErr   error
}

// Option configures a Stream at construction.
type Option func(*Stream)

// WithChunkSize overrides DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithCompression flate-compresses outbound chunks and inflates inbound
// ones, exercising klauspost/compress for Exchanges that benefit from it
// on large byte-stream tunnels.
func WithCompression(enabled bool) Option {
	return func(s *Stream) { s.compress = enabled }
}

// NewStream constructs a Stream that hands outbound chunks to send. The
// returned Stream owns a background goroutine draining its outbound
// queue; call Destroy to release it.
func NewStream(callID string, send Sender, opts ...Option) *Stream {
	s := &Stream{
		EventEmitter: types.NewEventEmitter(),
		callID:       callID,
		send:         send,
		chunkSize:    DefaultChunkSize,
		outCh:        make(chan []byte, DefaultHighWatermark),
		doneCh:       make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	go s.drainLoop()
	return s
}

// CallID returns the call id this stream is anchored to.
func (s *Stream) CallID() string { return s.callID }

func (s *Stream) drainLoop() {
	for {
		select {
		case chunk, ok := <-s.outCh:
			if !ok {
				return
			}
			if err := s.send(chunk); err != nil {
				s.Destroy(err)
				return
			}
		case <-s.doneCh:
			return
		}
	}
}

// Write chunks p, optionally flate-compresses each chunk, and enqueues it
// on the outbound queue (§4.3). It blocks once the queue holds
// DefaultHighWatermark unsent chunks, resuming as the drain loop catches
// up — the backpressure stall named in §4.3 and §5.
func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		return 0, ErrStreamClosed
	}

	data := p
	if s.compress {
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return 0, err
		}
		if _, err := w.Write(p); err != nil {
			return 0, err
		}
		if err := w.Close(); err != nil {
			return 0, err
		}
		data = buf.Bytes()
	}

	for len(data) > 0 {
		n := len(data)
		if n > s.chunkSize {
			n = s.chunkSize
		}
		chunk := make([]byte, n)
		copy(chunk, data[:n])
		select {
		case s.outCh <- chunk:
		case <-s.doneCh:
			return 0, ErrStreamClosed
		}
		data = data[n:]
	}
	return len(p), nil
}

// PushInbound enqueues bytes received on an inbound binary MSG frame for
// this call (§4.5). Never blocks the caller (the engine's single
// state-mutation path): past the high watermark it keeps buffering but
// emits "backpressure" so the owner can react.
func (s *Stream) PushInbound(b []byte) {
	data := b
	if s.compress {
		r := flate.NewReader(bytes.NewReader(b))
		out, err := io.ReadAll(r)
		r.Close()
		if err == nil {
			data = out
		}
	}

	s.mu.Lock()
	if s.destroyed || s.ended {
		s.mu.Unlock()
		return
	}
	s.inbound = append(s.inbound, data)
	s.inboundBytes += len(data)
	overflow := s.inboundBytes > DefaultHighWatermark*s.chunkSize
	s.cond.Broadcast()
	s.mu.Unlock()

	if overflow {
		s.Emit("backpressure")
	}
}

// Read implements io.Reader over the readable side, blocking until a
// chunk is available, end-of-stream is signalled, or the stream is
// destroyed. Chunks are returned in the order PushInbound received them.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	for len(s.inbound) == 0 && !s.ended && !s.destroyed {
		s.cond.Wait()
	}

	if len(s.inbound) == 0 {
		err := io.EOF
		if s.destroyed && s.destroyErr != nil {
			err = s.destroyErr
		}
		s.mu.Unlock()
		return 0, err
	}

	chunk := s.inbound[0]
	n := copy(p, chunk)
	if n < len(chunk) {
		s.inbound[0] = chunk[n:]
	} else {
		s.inbound = s.inbound[1:]
	}
	s.inboundBytes -= n
	s.mu.Unlock()
	return n, nil
}

// EndFromRemote signals end-of-stream on the readable side exactly once
// (§4.3), called on inbound HANGUP or transport close.
func (s *Stream) EndFromRemote() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.Emit("end")
}

// Destroy terminates both halves of the stream: writes fail and reads
// return end-of-stream. Idempotent.
func (s *Stream) Destroy(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.destroyed = true
		s.destroyErr = err
		s.ended = true
		s.cond.Broadcast()
		s.mu.Unlock()

		close(s.doneCh)
		s.Emit("close", err)
	})
}
