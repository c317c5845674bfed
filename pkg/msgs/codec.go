package msgs

import (
	"errors"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/eda.go/pkg/framing"
)

const frameOverhead = framing.Overhead

// ErrTruncated indicates the payload ends in the middle of a field.
var ErrTruncated = errors.New("truncated message")

type wireField struct {
	wireType int
	nested   wireSchema
}

type wireSchema map[uint64]wireField

var (
	timestampSchema = wireSchema{
		1: {wireType: proto.WireVarint},
		2: {wireType: proto.WireVarint},
	}
	impedanceSchema = wireSchema{
		1: {wireType: proto.WireFixed32},
		2: {wireType: proto.WireFixed32},
	}
	impedanceReportSchema = wireSchema{
		1: {wireType: proto.WireBytes, nested: impedanceSchema},
		2: {wireType: proto.WireBytes, nested: timestampSchema},
	}
)

func schemaOf(kind Kind) wireSchema {
	switch kind {
	case KindTimeSync:
		return timestampSchema
	case KindImpedanceReport:
		return impedanceReportSchema
	}
	return nil
}

// New creates an empty message of the kind.
func New(kind Kind) (Message, error) {
	switch kind {
	case KindTimeSync:
		return &TimeSync{}, nil
	case KindImpedanceReport:
		return &ImpedanceReport{}, nil
	}
	return nil, ErrUnknownKind
}

// Encode encodes msg into a new frame.
func Encode(msg Message) ([]byte, error) {
	return AppendFrame(nil, msg)
}

// AppendFrame encodes msg as a frame appended to dst.
// dst is returned unchanged on error, which allows a caller to reuse
// one buffer for every outgoing message.
func AppendFrame(dst []byte, msg Message) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return dst, err
	}
	start := len(dst)
	b := proto.NewBuffer(append(dst, framing.Sentinel))
	if err := b.Marshal(msg); err != nil {
		return dst, err
	}
	out := b.Bytes()
	kind := msg.Kind()
	if size := len(out) - start - 1; size > kind.MaxSize() {
		return dst, &SizeError{Kind: kind, Size: size, Max: kind.MaxSize()}
	}
	out = append(out, framing.Sentinel)
	if err := framing.EncodeInPlace(out[start:]); err != nil {
		return dst, err
	}
	return out, nil
}

// Decode decodes a frame of the specified kind.
// The frame is de-escaped in place.
func Decode(kind Kind, frame []byte) (Message, error) {
	msg, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err = DecodeInto(frame, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// DecodeTimeSync decodes a TimeSync frame.
func DecodeTimeSync(frame []byte) (*TimeSync, error) {
	var msg TimeSync
	if err := DecodeInto(frame, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeImpedanceReport decodes an ImpedanceReport frame.
func DecodeImpedanceReport(frame []byte) (*ImpedanceReport, error) {
	var msg ImpedanceReport
	if err := DecodeInto(frame, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeInto decodes a frame into msg.
func DecodeInto(frame []byte, msg Message) error {
	kind := msg.Kind()
	if max := kind.MaxFrameSize(); len(frame) > max {
		return &SizeError{Kind: kind, Size: len(frame), Max: max}
	}
	payload, err := framing.Unframe(frame, kind.MaxFrameSize())
	if err != nil {
		return err
	}
	if err = checkWire(payload, schemaOf(kind)); err != nil {
		return err
	}
	if err = proto.Unmarshal(payload, msg); err != nil {
		return err
	}
	return msg.Validate()
}

// checkWire walks the payload and rejects fields that are not in the
// schema or are encoded with a different wire type.
func checkWire(buf []byte, schema wireSchema) error {
	for i := 0; i < len(buf); {
		key, n := proto.DecodeVarint(buf[i:])
		if n == 0 {
			return ErrTruncated
		}
		i += n
		field, ok := schema[key>>3]
		if !ok {
			return ErrUnknownField
		}
		if wt := int(key & 7); wt != field.wireType {
			return ErrWireType
		}
		switch field.wireType {
		case proto.WireVarint:
			if _, n = proto.DecodeVarint(buf[i:]); n == 0 {
				return ErrTruncated
			}
			i += n
		case proto.WireFixed32:
			if i+4 > len(buf) {
				return ErrTruncated
			}
			i += 4
		case proto.WireFixed64:
			if i+8 > len(buf) {
				return ErrTruncated
			}
			i += 8
		case proto.WireBytes:
			l, n := proto.DecodeVarint(buf[i:])
			if n == 0 {
				return ErrTruncated
			}
			i += n
			if l > uint64(len(buf)-i) {
				return ErrTruncated
			}
			end := i + int(l)
			if field.nested != nil {
				if err := checkWire(buf[i:end], field.nested); err != nil {
					return err
				}
			}
			i = end
		}
	}
	return nil
}
