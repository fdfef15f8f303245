package procbridge

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// loopStream is a minimal io.ReadWriter test double standing in for a
// tunnel stream: writes land in an internal buffer readable via Written,
// and Read replays whatever is queued via feed.
type loopStream struct {
	mu      sync.Mutex
	written bytes.Buffer
	in      *io.PipeReader
	inW     *io.PipeWriter
}

func newLoopStream() *loopStream {
	r, w := io.Pipe()
	return &loopStream{in: r, inW: w}
}

func (l *loopStream) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written.Write(p)
}

func (l *loopStream) Read(p []byte) (int, error) {
	return l.in.Read(p)
}

func (l *loopStream) feed(s string) {
	go l.inW.Write([]byte(s))
}

func (l *loopStream) Written() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.written.String()
}

// upperProcess implements Process + Starter + Stopper: stdout is the
// upper-cased echo of stdin, mirroring the spec's scenario 4 fixture.
type upperProcess struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	started bool
	stopped chan string
}

func newUpperProcess() *upperProcess {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	return &upperProcess{
		stdinR: inR, stdinW: inW,
		stdoutR: outR, stdoutW: outW,
		stopped: make(chan string, 1),
	}
}

func (p *upperProcess) Stdout() io.Reader { return p.stdoutR }
func (p *upperProcess) Stdin() io.Writer  { return p.stdinW }

func (p *upperProcess) Start() error {
	p.started = true
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := p.stdinR.Read(buf)
			if n > 0 {
				io.WriteString(p.stdoutW, strings.ToUpper(string(buf[:n])))
			}
			if err != nil {
				p.stdoutW.Close()
				return
			}
		}
	}()
	return nil
}

func (p *upperProcess) Stop(reason string) error {
	p.stopped <- reason
	p.stdinR.Close()
	return nil
}

func TestAttachPipesStdinThroughProcessToStream(t *testing.T) {
	proc := newUpperProcess()
	stream := newLoopStream()

	h, err := Attach(stream, proc, DefaultOptions())
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !proc.started {
		t.Fatal("expected Start to be called")
	}

	stream.feed("hello shells\n")

	deadline := time.After(2 * time.Second)
	for stream.Written() != "HELLO SHELLS\n" {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for echo, got %q", stream.Written())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := h.Close("done"); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case reason := <-proc.stopped:
		if reason != "done" {
			t.Fatalf("expected stop reason %q, got %q", "done", reason)
		}
	case <-time.After(time.Second):
		t.Fatal("expected Stop to be invoked")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	proc := newUpperProcess()
	stream := newLoopStream()

	h, err := Attach(stream, proc, DefaultOptions())
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	if err := h.Close("first"); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := h.Close("second"); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}
	if len(proc.stopped) != 1 {
		t.Fatalf("expected Stop invoked exactly once, got %d", len(proc.stopped))
	}
}
