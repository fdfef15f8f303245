package wire

import "testing"

func TestEncodeDecodePayloadText(t *testing.T) {
	f := &Frame{}
	if err := EncodePayload(f, Payload{ContentType: Text, Text: "hello"}, JSONStructuredCodec{}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if f.ContentType != ContentText || f.Data != "hello" {
		t.Fatalf("unexpected frame: %+v", f)
	}
	got := DecodePayload(f, JSONStructuredCodec{})
	if got.ContentType != Text || got.Text != "hello" {
		t.Fatalf("unexpected decoded payload: %+v", got)
	}
}

func TestEncodeDecodePayloadBinary(t *testing.T) {
	f := &Frame{}
	want := []byte{0x68, 0x65, 0x6c, 0x6c, 0x6f}
	if err := EncodePayload(f, Payload{ContentType: Binary, Binary: want}, JSONStructuredCodec{}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if f.ContentType != ContentBinary {
		t.Fatalf("expected binary content type, got %q", f.ContentType)
	}
	got := DecodePayload(f, JSONStructuredCodec{})
	if got.ContentType != Binary || string(got.Binary) != string(want) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestEncodeDecodePayloadStructuredJSON(t *testing.T) {
	f := &Frame{}
	in := map[string]any{"a": float64(1), "b": "two"}
	if err := EncodePayload(f, Payload{ContentType: Structured, Structured: in}, JSONStructuredCodec{}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := DecodePayload(f, JSONStructuredCodec{})
	if got.ContentType != Structured {
		t.Fatalf("expected structured content type, got %+v", got)
	}
	m, ok := got.Structured.(map[string]any)
	if !ok || m["a"] != float64(1) || m["b"] != "two" {
		t.Fatalf("unexpected structured payload: %#v", got.Structured)
	}
}

func TestEncodeDecodePayloadStructuredMsgpack(t *testing.T) {
	f := &Frame{}
	in := map[string]any{"x": "y"}
	codec := MsgpackStructuredCodec{}
	if err := EncodePayload(f, Payload{ContentType: Structured, Structured: in}, codec); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := DecodePayload(f, codec)
	if got.ContentType != Structured {
		t.Fatalf("expected structured content type, got %+v", got)
	}
	m, ok := got.Structured.(map[string]any)
	if !ok || m["x"] != "y" {
		t.Fatalf("unexpected structured payload: %#v", got.Structured)
	}
}

func TestDecodePayloadMalformedStructuredFallsBackToText(t *testing.T) {
	f := &Frame{ContentType: ContentStructured, Data: "not json"}
	got := DecodePayload(f, JSONStructuredCodec{})
	if got.ContentType != Text || got.Text != "not json" {
		t.Fatalf("expected fallback to text, got %+v", got)
	}
}

func TestFrameEncodeDecodeRoundTrip(t *testing.T) {
	f := &Frame{Type: TypeDial, To: "bob@example.com", CallID: "c1"}
	data, err := Encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != TypeDial || got.To != "bob@example.com" || got.CallID != "c1" {
		t.Fatalf("unexpected frame: %+v", got)
	}
}
