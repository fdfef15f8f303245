package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// ContentType identifies how a MessagePayload's Data is framed on the wire.
type ContentType string

const (
	Text       ContentType = ContentText
	Structured ContentType = ContentStructured
	Binary     ContentType = ContentBinary
)

// Payload is the decoded form of a MSG frame's data/content_type pair.
type Payload struct {
	ContentType ContentType
	Text        string // valid when ContentType == Text
	Structured  any    // valid when ContentType == Structured
	Binary      []byte // valid when ContentType == Binary
}

// StructuredCodec marshals/unmarshals the "structured" content type. The
// default is JSON, embedded as a literal JSON string per §4.2; an
// alternate msgpack codec is offered for Exchanges that speak msgpack,
// base64-framed since msgpack output is not valid UTF-8 text.
type StructuredCodec interface {
	// MarshalStructured returns the string to place in the frame's data
	// field for v.
	MarshalStructured(v any) (string, error)
	// UnmarshalStructured parses the frame's data field back into a
	// generic value.
	UnmarshalStructured(data string) (any, error)
}

// JSONStructuredCodec is the default StructuredCodec: the data field
// holds the literal JSON encoding of v.
type JSONStructuredCodec struct{}

func (JSONStructuredCodec) MarshalStructured(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (JSONStructuredCodec) UnmarshalStructured(data string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// MsgpackStructuredCodec encodes structured payloads as msgpack,
// base64-framed so the bytes survive the JSON frame envelope.
type MsgpackStructuredCodec struct{}

func (MsgpackStructuredCodec) MarshalStructured(v any) (string, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (MsgpackStructuredCodec) UnmarshalStructured(data string) (any, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	var v any
	if err := msgpack.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodePayload fills in a Frame's Data/ContentType fields from a Payload.
func EncodePayload(f *Frame, p Payload, codec StructuredCodec) error {
	switch p.ContentType {
	case Text:
		f.Data = p.Text
		f.ContentType = ContentText
	case Binary:
		f.Data = base64.StdEncoding.EncodeToString(p.Binary)
		f.ContentType = ContentBinary
	case Structured:
		data, err := codec.MarshalStructured(p.Structured)
		if err != nil {
			return fmt.Errorf("encode structured payload: %w", err)
		}
		f.Data = data
		f.ContentType = ContentStructured
	default:
		return fmt.Errorf("unknown content type %q", p.ContentType)
	}
	return nil
}

// DecodePayload reconstructs a Payload from a Frame's Data/ContentType
// fields. Per the open question in spec.md §9, a structured payload that
// fails to parse falls back to being delivered as the raw string rather
// than erroring the whole frame.
func DecodePayload(f *Frame, codec StructuredCodec) Payload {
	switch ContentType(f.ContentType) {
	case Binary:
		raw, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			// malformed base64: deliver as text so the caller can at
			// least see something rather than silently dropping it.
			return Payload{ContentType: Text, Text: f.Data}
		}
		return Payload{ContentType: Binary, Binary: raw}
	case Structured:
		v, err := codec.UnmarshalStructured(f.Data)
		if err != nil {
			return Payload{ContentType: Text, Text: f.Data}
		}
		return Payload{ContentType: Structured, Structured: v}
	default:
		return Payload{ContentType: Text, Text: f.Data}
	}
}
