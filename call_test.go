package xchg

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/xchgio/xchg-client/procbridge"
	"github.com/xchgio/xchg-client/wire"
)

// fakeController is a minimal controller double recording every frame
// handed to sendFrame, so Call's operations can be tested in isolation
// from Engine.
type fakeController struct {
	mu     sync.Mutex
	frames []*wire.Frame
	ended  []string
}

func (f *fakeController) sendFrame(frame *wire.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeController) endCall(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, id)
}

func (f *fakeController) structuredCodec() wire.StructuredCodec {
	return wire.JSONStructuredCodec{}
}

func (f *fakeController) last() *wire.Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return nil
	}
	return f.frames[len(f.frames)-1]
}

func TestAnswerActivatesRingingInboundCall(t *testing.T) {
	ctrl := &fakeController{}
	call := newCall("c1", DirectionInbound, "bob@example.com", nil, ctrl)

	fired := false
	call.On("connected", func(args ...any) { fired = true })

	if err := call.Answer(); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if call.State() != StateActive {
		t.Fatalf("expected active, got %s", call.State())
	}
	if !fired {
		t.Fatal("expected connected event")
	}
	if f := ctrl.last(); f == nil || f.Type != wire.TypeAnswer {
		t.Fatalf("expected an ANSWER frame, got %#v", f)
	}
}

func TestAnswerRejectsOutboundCall(t *testing.T) {
	ctrl := &fakeController{}
	call := newCall("c1", DirectionOutbound, "bob@example.com", nil, ctrl)
	call.state = StateActive

	err := call.Answer()
	if err == nil {
		t.Fatal("expected illegal-state error")
	}
	if xerr, ok := err.(*Error); !ok || xerr.Kind != KindIllegalState {
		t.Fatalf("expected KindIllegalState, got %#v", err)
	}
}

func TestSendRequiresActiveCall(t *testing.T) {
	ctrl := &fakeController{}
	call := newCall("c1", DirectionInbound, "bob@example.com", nil, ctrl)

	if err := call.Send("hi"); err == nil {
		t.Fatal("expected send on a ringing call to fail")
	}
}

func TestSendInfersTextAndBinaryContentType(t *testing.T) {
	ctrl := &fakeController{}
	call := newCall("c1", DirectionOutbound, "bob@example.com", nil, ctrl)
	call.state = StateActive

	if err := call.Send("hello"); err != nil {
		t.Fatalf("send text: %v", err)
	}
	if f := ctrl.last(); f.ContentType != wire.ContentText || f.Data != "hello" {
		t.Fatalf("expected text frame, got %#v", f)
	}

	if err := call.Send([]byte{1, 2, 3}); err != nil {
		t.Fatalf("send binary: %v", err)
	}
	if f := ctrl.last(); f.ContentType != wire.ContentBinary {
		t.Fatalf("expected binary frame, got %#v", f)
	}
}

func TestHangupIsIdempotentAndNotifiesController(t *testing.T) {
	ctrl := &fakeController{}
	call := newCall("c1", DirectionOutbound, "bob@example.com", nil, ctrl)
	call.state = StateActive

	reasons := 0
	call.On("hangup", func(args ...any) { reasons++ })

	if err := call.Hangup("done"); err != nil {
		t.Fatalf("hangup: %v", err)
	}
	if err := call.Hangup("done again"); err != nil {
		t.Fatalf("second hangup: %v", err)
	}
	if reasons != 1 {
		t.Fatalf("expected exactly one hangup event, got %d", reasons)
	}
	if len(ctrl.ended) != 1 || ctrl.ended[0] != "c1" {
		t.Fatalf("expected endCall(c1) exactly once, got %#v", ctrl.ended)
	}
}

func TestInvalidateFailsFurtherOperations(t *testing.T) {
	ctrl := &fakeController{}
	call := newCall("c1", DirectionInbound, "bob@example.com", nil, ctrl)
	call.invalidate()

	if err := call.Answer(); err == nil {
		t.Fatal("expected answer to fail against an invalidated call")
	}
}

func TestStreamIsLazyAndWritesGoThroughController(t *testing.T) {
	ctrl := &fakeController{}
	call := newCall("c1", DirectionOutbound, "bob@example.com", nil, ctrl)
	call.state = StateActive

	if call.streamIfPresent() != nil {
		t.Fatal("expected no stream before first Stream() call")
	}

	stream := call.Stream()
	if stream == nil {
		t.Fatal("expected a stream")
	}
	if stream != call.Stream() {
		t.Fatal("expected Stream() to return the same instance on repeat calls")
	}

	if _, err := stream.Write([]byte("payload")); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Write only enqueues the chunk; the stream's drain goroutine hands it
	// to the controller shortly after.
	f := ctrl.last()
	for deadline := time.Now().Add(time.Second); f == nil && time.Now().Before(deadline); f = ctrl.last() {
		time.Sleep(time.Millisecond)
	}
	if f == nil || f.Type != wire.TypeMsg || f.ContentType != wire.ContentBinary {
		t.Fatalf("expected a binary MSG frame, got %#v", f)
	}
}

type noopRW struct{}

func (noopRW) Read(p []byte) (int, error)  { return 0, nil }
func (noopRW) Write(p []byte) (int, error) { return len(p), nil }

type simpleProcess struct{}

func (simpleProcess) Stdout() io.Reader { return noopRW{} }
func (simpleProcess) Stdin() io.Writer  { return noopRW{} }

var _ procbridge.Process = simpleProcess{}

func TestTunnelRequiresActiveCall(t *testing.T) {
	ctrl := &fakeController{}
	call := newCall("c1", DirectionInbound, "bob@example.com", nil, ctrl)

	_, err := call.Tunnel(simpleProcess{}, DefaultTunnelOptions())
	if err == nil {
		t.Fatal("expected tunnel on a ringing call to fail")
	}
}
