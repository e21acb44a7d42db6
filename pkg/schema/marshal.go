package schema

import (
	"github.com/illmade-knight/go-vizbridge/pkg/types"
	"google.golang.org/protobuf/proto"
)

// The Marshal methods produce the same wire layout the Unmarshal functions read. They
// back the synthetic publisher and the tests.

// Marshal encodes the header.
func (h *Header) Marshal() []byte {
	var b []byte
	if h.Timestamp != nil {
		ts, _ := proto.Marshal(h.Timestamp)
		b = appendBytesField(b, 1, ts)
	}
	b = appendVarintField(b, 2, uint64(h.ReferenceID))
	if h.EntityPath != "" {
		b = appendBytesField(b, 3, []byte(h.EntityPath))
	}
	return b
}

func appendHeader(b []byte, h *Header) []byte {
	if h == nil {
		return b
	}
	return appendBytesField(b, 1, h.Marshal())
}

// Marshal encodes the message.
func (m *PlainText) Marshal() []byte {
	b := appendHeader(nil, m.Header)
	return appendBytesField(b, 2, []byte(m.Body))
}

// Marshal encodes the message.
func (m *ImageJPEG) Marshal() []byte {
	b := appendHeader(nil, m.Header)
	return appendBytesField(b, 2, m.Data)
}

// Marshal encodes the message.
func (m *Image) Marshal() []byte {
	b := appendHeader(nil, m.Header)
	b = appendVarintField(b, 2, uint64(m.Width))
	b = appendVarintField(b, 3, uint64(m.Height))
	return appendBytesField(b, 4, m.Data)
}

// Marshal encodes the message, placing the image in the oneof field for its format.
func (m *ImageRawAny) Marshal() []byte {
	b := appendHeader(nil, m.Header)
	if m.Image == nil {
		return b
	}
	for num, format := range rawAnyFields {
		if format == m.Image.Format {
			b = appendBytesField(b, num, m.Image.Marshal())
			break
		}
	}
	return b
}

// Marshal encodes the message.
func (m *Boxes2DAxisAligned) Marshal() []byte {
	b := appendHeader(nil, m.Header)
	for _, box := range m.Boxes {
		var bb []byte
		bb = appendHeader(bb, box.Header)
		if g := box.Geometry; g != nil {
			var gb []byte
			gb = appendFloatField(gb, 1, g.X)
			gb = appendFloatField(gb, 2, g.Y)
			gb = appendFloatField(gb, 3, g.Width)
			gb = appendFloatField(gb, 4, g.Height)
			bb = appendBytesField(bb, 2, gb)
		}
		bb = appendFloatField(bb, 3, box.Confidence)
		bb = appendVarintField(bb, 4, uint64(int64(box.ClassID)))
		b = appendBytesField(b, 2, bb)
	}
	return b
}

// NewImage is a convenience constructor for a fixed-format image message.
func NewImage(header *Header, width, height uint32, format types.PixelFormat, data []byte) *Image {
	return &Image{
		Header:   header,
		RawImage: types.RawImage{Width: width, Height: height, Format: format, Data: data},
	}
}

