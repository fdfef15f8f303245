package tunnel

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func TestWriteDeliversChunksToSender(t *testing.T) {
	var got []byte
	sent := make(chan struct{}, 1)
	s := NewStream("c1", func(b []byte) error {
		got = append(got, b...)
		sent <- struct{}{}
		return nil
	})
	defer s.Destroy(nil)

	want := []byte{0x68, 0x65, 0x6c, 0x6c, 0x6f}
	if _, err := s.Write(want); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-sent:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sender")
	}

	if !bytes.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestWriteChunksLargePayloads(t *testing.T) {
	var chunks [][]byte
	done := make(chan struct{})
	s := NewStream("c1", func(b []byte) error {
		cp := make([]byte, len(b))
		copy(cp, b)
		chunks = append(chunks, cp)
		if len(chunks) == 3 {
			close(done)
		}
		return nil
	}, WithChunkSize(4))
	defer s.Destroy(nil)

	if _, err := s.Write([]byte("0123456789AB")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for chunks")
	}

	if len(chunks) != 3 || string(chunks[0]) != "0123" || string(chunks[2]) != "89AB" {
		t.Fatalf("unexpected chunking: %q", chunks)
	}
}

func TestPushInboundReadOrder(t *testing.T) {
	s := NewStream("c1", func([]byte) error { return nil })
	defer s.Destroy(nil)

	s.PushInbound([]byte("hello"))
	s.PushInbound([]byte(" world"))

	buf := make([]byte, 64)
	n, err := s.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("expected first chunk %q, got %q", "hello", buf[:n])
	}

	n, err = s.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != " world" {
		t.Fatalf("expected second chunk %q, got %q", " world", buf[:n])
	}
}

func TestEndFromRemoteSignalsEOFOnce(t *testing.T) {
	s := NewStream("c1", func([]byte) error { return nil })
	defer s.Destroy(nil)

	ended := 0
	s.On("end", func(...any) { ended++ })

	s.EndFromRemote()
	s.EndFromRemote()

	if ended != 1 {
		t.Fatalf("expected exactly 1 end event, got %d", ended)
	}

	buf := make([]byte, 8)
	if _, err := s.Read(buf); err != io.EOF {
		t.Fatalf("expected io.EOF after end, got %v", err)
	}
}

func TestDestroyFailsWritesAndReads(t *testing.T) {
	s := NewStream("c1", func([]byte) error { return nil })

	closed := 0
	s.On("close", func(...any) { closed++ })

	s.Destroy(nil)
	s.Destroy(nil) // idempotent

	if closed != 1 {
		t.Fatalf("expected exactly 1 close event, got %d", closed)
	}

	if _, err := s.Write([]byte("x")); err != ErrStreamClosed {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}

	buf := make([]byte, 8)
	if _, err := s.Read(buf); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestPushInboundEmitsBackpressureOnOverflow(t *testing.T) {
	s := NewStream("c1", func([]byte) error { return nil }, WithChunkSize(4))
	defer s.Destroy(nil)

	fired := make(chan struct{}, 1)
	s.On("backpressure", func(...any) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	big := bytes.Repeat([]byte("x"), (DefaultHighWatermark+1)*4)
	s.PushInbound(big)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected backpressure event on sustained overrun")
	}
}
