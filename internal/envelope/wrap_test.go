package envelope

import (
	"bytes"
	"errors"
	"testing"
)

func TestWrapBuildsPayload(t *testing.T) {
	w := NewWrapper("ctx-1")
	w.opID = func() uint32 { return 42 }
	msg := `{"id":7,"method":"Debugger.enable"}`
	out, err := w.Wrap(msg, CategoryCommand, CompressNone)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if int(out.OriginalSize) != len(out.Data) {
		t.Fatalf("original size %d != len(data) %d", out.OriginalSize, len(out.Data))
	}
	p, err := DecodePayload(out.Data)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.SessionContextID != "ctx-1" || p.OperationID != 42 || p.Payload != msg {
		t.Fatalf("payload = %+v", p)
	}
}

func TestWrapOperationIDRange(t *testing.T) {
	w := NewWrapper("")
	for i := 0; i < 1000; i++ {
		out, err := w.Wrap("{}", CategoryCommand, CompressNone)
		if err != nil {
			t.Fatalf("wrap: %v", err)
		}
		p, err := DecodePayload(out.Data)
		if err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if p.OperationID > maxOperationID {
			t.Fatalf("operation id %d out of range", p.OperationID)
		}
	}
}

func TestWrapRejectsCompression(t *testing.T) {
	_, err := NewWrapper("").Wrap("{}", CategoryCommand, 1)
	if !errors.Is(err, ErrUnsupportedCompression) {
		t.Fatalf("expected ErrUnsupportedCompression, got %v", err)
	}
}

func TestPayloadFidelity(t *testing.T) {
	msgs := []string{
		`{"id":1,"result":{}}`,
		`{"id":7,"method":"Debugger.enable"}`,
		"",
		"not json at all \x00\xff",
		`{"method":"Runtime.consoleAPICalled","params":{"args":[{"value":"你好"}]}}`,
	}
	w := NewWrapper("")
	var c ProtoCodec
	for _, m := range msgs {
		out, err := w.Wrap(m, CategoryCommand, CompressNone)
		if err != nil {
			t.Fatalf("wrap: %v", err)
		}
		b, err := c.Encode(Envelope{Seq: 1, Category: CategoryResult, Data: out.Data, OriginalSize: out.OriginalSize})
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		e, err := c.Decode(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		p, ok := w.Unwrap(e)
		if !ok {
			t.Fatalf("unwrap failed for %q", m)
		}
		if p.Payload != m {
			t.Fatalf("payload = %q; want %q", p.Payload, m)
		}
	}
}

func TestUnwrapRejects(t *testing.T) {
	w := NewWrapper("")
	good := EncodePayload(Payload{OperationID: 1, Payload: "{}"})
	cases := map[string]Envelope{
		"command category": {Category: CategoryCommand, Data: good},
		"unknown category": {Category: "setupContext", Data: good},
		"compressed":       {Category: CategoryResult, Data: good, CompressAlgo: 1},
		"garbage data":     {Category: CategoryResult, Data: []byte{0x1a, 0x09, 'x'}},
		"no data":          {Category: CategoryResult},
		"empty data":       {Category: CategoryResult, Data: []byte{}},
		"no payload field": {Category: CategoryResult, Data: []byte{0x0a, 0x01, 'c', 0x10, 0x05}},
	}
	for name, e := range cases {
		if p, ok := w.Unwrap(e); ok {
			t.Fatalf("%s: unexpected payload %+v", name, p)
		}
	}
}

func TestUnwrapEmptyPayloadField(t *testing.T) {
	p, ok := NewWrapper("").Unwrap(Envelope{Category: CategoryResult, Data: []byte{0x1a, 0x00}})
	if !ok || p.Payload != "" {
		t.Fatalf("explicit empty payload: ok=%v payload=%q", ok, p.Payload)
	}
}

func TestWrapRejectsNonCommandCategory(t *testing.T) {
	for _, cat := range []Category{CategoryResult, "setupContext", ""} {
		if _, err := NewWrapper("").Wrap("{}", cat, CompressNone); !errors.Is(err, ErrUnsupportedCategory) {
			t.Fatalf("category %q: expected ErrUnsupportedCategory, got %v", cat, err)
		}
	}
}

func TestEncodePayloadKeepsEmptyPayload(t *testing.T) {
	b := EncodePayload(Payload{})
	if want := []byte{0x1a, 0x00}; !bytes.Equal(b, want) {
		t.Fatalf("encoded = % x; want % x", b, want)
	}
}
