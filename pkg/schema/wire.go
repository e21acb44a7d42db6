package schema

import (
	"fmt"
	"math"

	"github.com/illmade-knight/go-vizbridge/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
)

// fieldReader walks the top-level fields of one protobuf message.
type fieldReader struct {
	msg string
	b   []byte
	num protowire.Number
	typ protowire.Type
}

func newFieldReader(msg string, b []byte) *fieldReader {
	return &fieldReader{msg: msg, b: b}
}

func (r *fieldReader) fail(format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", r.msg, fmt.Sprintf(format, args...), types.ErrDecode)
}

// next advances to the next field. It returns false at the end of the message.
func (r *fieldReader) next() (bool, error) {
	if len(r.b) == 0 {
		return false, nil
	}
	num, typ, n := protowire.ConsumeTag(r.b)
	if n < 0 {
		return false, r.fail("tag: %v", protowire.ParseError(n))
	}
	r.b = r.b[n:]
	r.num, r.typ = num, typ
	return true, nil
}

func (r *fieldReader) expect(typ protowire.Type) error {
	if r.typ != typ {
		return r.fail("field %d has wire type %d, want %d", r.num, r.typ, typ)
	}
	return nil
}

func (r *fieldReader) readBytes() ([]byte, error) {
	if err := r.expect(protowire.BytesType); err != nil {
		return nil, err
	}
	v, n := protowire.ConsumeBytes(r.b)
	if n < 0 {
		return nil, r.fail("field %d: %v", r.num, protowire.ParseError(n))
	}
	r.b = r.b[n:]
	return v, nil
}

func (r *fieldReader) readString() (string, error) {
	v, err := r.readBytes()
	return string(v), err
}

func (r *fieldReader) readVarint() (uint64, error) {
	if err := r.expect(protowire.VarintType); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeVarint(r.b)
	if n < 0 {
		return 0, r.fail("field %d: %v", r.num, protowire.ParseError(n))
	}
	r.b = r.b[n:]
	return v, nil
}

func (r *fieldReader) readUint32() (uint32, error) {
	v, err := r.readVarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, r.fail("field %d overflows uint32", r.num)
	}
	return uint32(v), nil
}

func (r *fieldReader) readFloat32() (float32, error) {
	if err := r.expect(protowire.Fixed32Type); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeFixed32(r.b)
	if n < 0 {
		return 0, r.fail("field %d: %v", r.num, protowire.ParseError(n))
	}
	r.b = r.b[n:]
	return math.Float32frombits(v), nil
}

func (r *fieldReader) skip() error {
	n := protowire.ConsumeFieldValue(r.num, r.typ, r.b)
	if n < 0 {
		return r.fail("field %d: %v", r.num, protowire.ParseError(n))
	}
	r.b = r.b[n:]
	return nil
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFloatField(b []byte, num protowire.Number, v float32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}
