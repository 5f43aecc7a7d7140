package envelope

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"google.golang.org/protobuf/encoding/protowire"
)

// Payload field numbers.
const (
	fieldSessionContextID protowire.Number = 1
	fieldOperationID      protowire.Number = 2
	fieldPayload          protowire.Number = 3
)

// maxOperationID bounds the random operation id stamped on outbound commands.
const maxOperationID = 100

// ErrUnsupportedCompression is returned when asked to wrap with an algorithm
// other than CompressNone.
var ErrUnsupportedCompression = errors.New("envelope: compression not supported")

// ErrUnsupportedCategory is returned when asked to wrap anything but a command.
var ErrUnsupportedCategory = errors.New("envelope: only commands are wrapped")

// Payload is the structured content of an envelope's Data field. Payload holds
// the front-end protocol message as raw text.
type Payload struct {
	SessionContextID string
	OperationID      uint32
	Payload          string
}

// Wrapped is a serialized Payload ready to go into an Envelope.
type Wrapped struct {
	Data         []byte
	OriginalSize uint32
}

// Wrapper converts between raw front-end messages and envelope data.
type Wrapper interface {
	Wrap(raw string, cat Category, compressAlgo int32) (Wrapped, error)
	Unwrap(Envelope) (Payload, bool)
}

// ProtoWrapper is the protobuf implementation of Wrapper.
type ProtoWrapper struct {
	sessionContextID string
	opID             func() uint32
}

// NewWrapper returns a wrapper stamping sessionContextID on every outbound
// payload.
func NewWrapper(sessionContextID string) *ProtoWrapper {
	return &ProtoWrapper{
		sessionContextID: sessionContextID,
		opID:             func() uint32 { return uint32(rand.IntN(maxOperationID + 1)) },
	}
}

// Wrap builds and serializes a payload around raw. Only CategoryCommand is
// sent towards the runtime.
func (w *ProtoWrapper) Wrap(raw string, cat Category, compressAlgo int32) (Wrapped, error) {
	if cat != CategoryCommand {
		return Wrapped{}, fmt.Errorf("%w: %q", ErrUnsupportedCategory, cat)
	}
	if compressAlgo != CompressNone {
		return Wrapped{}, ErrUnsupportedCompression
	}
	data := EncodePayload(Payload{
		SessionContextID: w.sessionContextID,
		OperationID:      w.opID(),
		Payload:          raw,
	})
	return Wrapped{Data: data, OriginalSize: uint32(len(data))}, nil
}

// Unwrap extracts the payload of a result envelope. It reports false for
// anything that is not an uncompressed, well-formed result carrying a payload
// field.
func (w *ProtoWrapper) Unwrap(e Envelope) (Payload, bool) {
	if e.Category != CategoryResult || e.CompressAlgo != CompressNone || len(e.Data) == 0 {
		return Payload{}, false
	}
	p, present, err := decodePayload(e.Data)
	if err != nil || !present {
		return Payload{}, false
	}
	return p, true
}

// EncodePayload serializes p. The payload field is always written, even when
// empty, so receivers can tell an empty message from a missing one.
func EncodePayload(p Payload) []byte {
	b := make([]byte, 0, len(p.Payload)+len(p.SessionContextID)+16)
	b = appendStringField(b, fieldSessionContextID, p.SessionContextID)
	b = appendVarintField(b, fieldOperationID, uint64(p.OperationID))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendString(b, p.Payload)
	return b
}

// DecodePayload parses b into a Payload.
func DecodePayload(b []byte) (Payload, error) {
	p, _, err := decodePayload(b)
	return p, err
}

// decodePayload also reports whether the payload field was on the wire.
func decodePayload(b []byte) (Payload, bool, error) {
	var p Payload
	present := false
	r := fieldReader{b: b}
	for !r.done() {
		num, typ, err := r.tag()
		if err != nil {
			return Payload{}, false, err
		}
		switch num {
		case fieldSessionContextID:
			v, err := r.bytes(typ)
			if err != nil {
				return Payload{}, false, err
			}
			p.SessionContextID = string(v)
		case fieldOperationID:
			v, err := r.varint(typ)
			if err != nil {
				return Payload{}, false, err
			}
			p.OperationID = uint32(v)
		case fieldPayload:
			v, err := r.bytes(typ)
			if err != nil {
				return Payload{}, false, err
			}
			p.Payload = string(v)
			present = true
		default:
			if err := r.skip(num, typ); err != nil {
				return Payload{}, false, err
			}
		}
	}
	return p, present, nil
}
