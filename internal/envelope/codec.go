// Package envelope implements the runtime's binary debug message envelope and
// the structured payload carried inside it.
//
// Both are protobuf messages. They are encoded field by field with protowire so
// the bridge does not depend on generated code for a schema it does not own.
package envelope

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Category tags what an envelope carries.
type Category string

// Wire tags used by the runtime for the two routed directions. Any other
// category decodes fine and is simply not routed.
const (
	CategoryCommand Category = "chromeDevtools"
	CategoryResult  Category = "chromeDevtoolsResult"
)

// CompressNone is the only compression algorithm the bridge produces or accepts.
const CompressNone int32 = 0

// Envelope field numbers.
const (
	fieldSeq          protowire.Number = 1
	fieldCategory     protowire.Number = 2
	fieldData         protowire.Number = 3
	fieldCompressAlgo protowire.Number = 4
	fieldOriginalSize protowire.Number = 5
)

// Envelope is the outer message exchanged with the runtime. As in proto3,
// zero values are not written, so an empty Data and a nil Data encode to the
// same bytes and both decode as nil. Compare Data with bytes.Equal.
type Envelope struct {
	Seq          uint32
	Category     Category
	Data         []byte
	CompressAlgo int32
	OriginalSize uint32
}

// Codec encodes and decodes envelopes.
type Codec interface {
	Encode(Envelope) ([]byte, error)
	Decode([]byte) (Envelope, error)
}

// ErrDecode matches every error returned by a failed decode.
var ErrDecode = errors.New("envelope: malformed message")

var errWireType = errors.New("unexpected wire type")

// DecodeError reports where a message stopped making sense.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("envelope: decode at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDecode) hold for any DecodeError.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// ProtoCodec is the protobuf implementation of Codec.
type ProtoCodec struct{}

// Encode serializes e. Zero-valued fields are omitted.
func (ProtoCodec) Encode(e Envelope) ([]byte, error) {
	b := make([]byte, 0, len(e.Data)+len(e.Category)+24)
	b = appendVarintField(b, fieldSeq, uint64(e.Seq))
	b = appendStringField(b, fieldCategory, string(e.Category))
	b = appendBytesField(b, fieldData, e.Data)
	b = appendVarintField(b, fieldCompressAlgo, uint64(int64(e.CompressAlgo)))
	b = appendVarintField(b, fieldOriginalSize, uint64(e.OriginalSize))
	return b, nil
}

// Decode parses b. Unknown fields are skipped; scalars follow protobuf
// last-one-wins and truncation rules.
func (ProtoCodec) Decode(b []byte) (Envelope, error) {
	var e Envelope
	r := fieldReader{b: b}
	for !r.done() {
		num, typ, err := r.tag()
		if err != nil {
			return Envelope{}, err
		}
		switch num {
		case fieldSeq:
			v, err := r.varint(typ)
			if err != nil {
				return Envelope{}, err
			}
			e.Seq = uint32(v)
		case fieldCategory:
			v, err := r.bytes(typ)
			if err != nil {
				return Envelope{}, err
			}
			e.Category = Category(v)
		case fieldData:
			v, err := r.bytes(typ)
			if err != nil {
				return Envelope{}, err
			}
			e.Data = append([]byte(nil), v...)
		case fieldCompressAlgo:
			v, err := r.varint(typ)
			if err != nil {
				return Envelope{}, err
			}
			e.CompressAlgo = int32(v)
		case fieldOriginalSize:
			v, err := r.varint(typ)
			if err != nil {
				return Envelope{}, err
			}
			e.OriginalSize = uint32(v)
		default:
			if err := r.skip(num, typ); err != nil {
				return Envelope{}, err
			}
		}
	}
	return e, nil
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// fieldReader walks a protobuf message and turns every protowire failure into
// a DecodeError carrying the offset it happened at.
type fieldReader struct {
	b   []byte
	off int
}

func (r *fieldReader) done() bool { return r.off >= len(r.b) }

func (r *fieldReader) fail(err error) error {
	return &DecodeError{Offset: r.off, Err: err}
}

func (r *fieldReader) tag() (protowire.Number, protowire.Type, error) {
	num, typ, n := protowire.ConsumeTag(r.b[r.off:])
	if n < 0 {
		return 0, 0, r.fail(protowire.ParseError(n))
	}
	r.off += n
	return num, typ, nil
}

func (r *fieldReader) varint(typ protowire.Type) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, r.fail(errWireType)
	}
	v, n := protowire.ConsumeVarint(r.b[r.off:])
	if n < 0 {
		return 0, r.fail(protowire.ParseError(n))
	}
	r.off += n
	return v, nil
}

func (r *fieldReader) bytes(typ protowire.Type) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, r.fail(errWireType)
	}
	v, n := protowire.ConsumeBytes(r.b[r.off:])
	if n < 0 {
		return nil, r.fail(protowire.ParseError(n))
	}
	r.off += n
	return v, nil
}

func (r *fieldReader) skip(num protowire.Number, typ protowire.Type) error {
	n := protowire.ConsumeFieldValue(num, typ, r.b[r.off:])
	if n < 0 {
		return r.fail(protowire.ParseError(n))
	}
	r.off += n
	return nil
}
