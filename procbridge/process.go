// Package procbridge bridges a tunnel stream to an external "process-like"
// unit exposing stdin/stdout/optional stderr (spec §4.6). It knows nothing
// about calls or engines: it pipes an io.ReadWriter to a Process and hands
// back a Handle to tear the pipes down.
package procbridge

import (
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Process is the minimal contract the adapter needs: a readable stdout, a
// writable stdin, and optionally a readable stderr plus lifecycle hooks.
// Implementations typically wrap os/exec.Cmd.
type Process interface {
	Stdout() io.Reader
	Stdin() io.Writer
}

// Starter is implemented by processes that need an explicit start step
// before their pipes are readable/writable.
type Starter interface {
	Start() error
}

// Stopper is implemented by processes that need an explicit, observable
// stop step (e.g. signalling and awaiting exit).
type Stopper interface {
	Stop(reason string) error
}

// StderrProvider is implemented by processes exposing a stderr stream.
type StderrProvider interface {
	Stderr() io.Reader
}

// Options configures Attach. Zero value is not valid; use DefaultOptions.
type Options struct {
	// ForwardStderr relays stderr chunks onto the tunnel in addition to
	// (or instead of) OnStderrChunk. Default true.
	ForwardStderr bool
	// OnStderrChunk, if set, observes each stderr chunk as it arrives.
	OnStderrChunk func([]byte)
}

// DefaultOptions returns the spec-mandated defaults (§4.6).
func DefaultOptions() Options {
	return Options{ForwardStderr: true}
}

// Handle represents one attached process. Close is idempotent.
type Handle struct {
	proc Process
	opts Options

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Attach awaits proc.Start() if implemented, then wires:
//
//	proc.Stdout() -> stream.Write   (process output enters the tunnel)
//	stream.Read   -> proc.Stdin()   (tunnel input reaches the process)
//
// Pipe completion in either direction does not propagate to the other: a
// process exiting does not close stream, and stream ending does not kill
// the process. Use Handle.Close to tear both down together.
func Attach(stream io.ReadWriter, proc Process, opts Options) (*Handle, error) {
	if starter, ok := proc.(Starter); ok {
		if err := starter.Start(); err != nil {
			return nil, err
		}
	}

	h := &Handle{proc: proc, opts: opts}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		io.Copy(stream, proc.Stdout())
	}()
	// Close does not wait for this copy: it can stay blocked in stream.Read
	// until the stream yields data, end-of-stream or an error.
	go func() {
		io.Copy(proc.Stdin(), stream)
	}()

	if opts.ForwardStderr || opts.OnStderrChunk != nil {
		if sp, ok := proc.(StderrProvider); ok {
			h.wg.Add(1)
			go h.pumpStderr(stream, sp.Stderr())
		}
	}

	return h, nil
}

func (h *Handle) pumpStderr(stream io.Writer, stderr io.Reader) {
	defer h.wg.Done()

	buf := make([]byte, 4096)
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if h.opts.OnStderrChunk != nil {
				h.opts.OnStderrChunk(chunk)
			}
			if h.opts.ForwardStderr {
				stream.Write(chunk)
			}
		}
		if err != nil {
			return
		}
	}
}

// Close detaches the pipes, closes the writable side of the process's
// stdin if it supports io.Closer, closes stderr likewise, awaits
// Stop(reason) if implemented, and waits for the stdout and stderr pumps
// to finish. Idempotent: subsequent calls return nil without side effects.
func (h *Handle) Close(reason string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	var result *multierror.Error

	if closer, ok := h.proc.Stdin().(io.Closer); ok {
		if err := closer.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if sp, ok := h.proc.(StderrProvider); ok {
		if closer, ok := sp.Stderr().(io.Closer); ok {
			if err := closer.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	if stopper, ok := h.proc.(Stopper); ok {
		if err := stopper.Stop(reason); err != nil {
			result = multierror.Append(result, err)
		}
	}

	h.wg.Wait()

	if result == nil {
		return nil
	}
	return result
}
