package schema

import (
	"fmt"

	"github.com/illmade-knight/go-vizbridge/pkg/types"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Header is the optional envelope carried by every message.
type Header struct {
	Timestamp   *timestamppb.Timestamp
	ReferenceID int64
	EntityPath  string
}

// PlainText is a text document.
type PlainText struct {
	Header *Header
	Body   string
}

// ImageJPEG is an already compressed JPEG frame.
type ImageJPEG struct {
	Header *Header
	Data   []byte
}

// Image is a raw image of one fixed pixel format.
type Image struct {
	Header *Header
	types.RawImage
}

// ImageRawAny carries exactly one raw image of any supported format. Image is nil when
// the oneof is unset.
type ImageRawAny struct {
	Header *Header
	Image  *Image
}

// Geometry is an axis-aligned rectangle given by its top-left corner and size.
type Geometry struct {
	X, Y, Width, Height float32
}

// Box2DAxisAligned is one detection.
type Box2DAxisAligned struct {
	Header     *Header
	Geometry   *Geometry
	Confidence float32
	ClassID    int32
}

// Boxes2DAxisAligned is a batch of detections.
type Boxes2DAxisAligned struct {
	Header *Header
	Boxes  []Box2DAxisAligned
}

// rawAnyFields maps ImageRawAny oneof field numbers onto pixel formats.
var rawAnyFields = map[protowire.Number]types.PixelFormat{
	2: types.FormatRGB888,
	3: types.FormatRGBA8888,
	4: types.FormatYUV420,
	5: types.FormatYUV422,
	6: types.FormatYUV444,
	7: types.FormatNV12,
}

// UnmarshalHeader decodes a Header.
func UnmarshalHeader(b []byte) (*Header, error) {
	h := &Header{}
	r := newFieldReader("Header", b)
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return h, nil
		}
		switch r.num {
		case 1:
			raw, err := r.readBytes()
			if err != nil {
				return nil, err
			}
			ts := &timestamppb.Timestamp{}
			if err := proto.Unmarshal(raw, ts); err != nil {
				return nil, fmt.Errorf("Header.timestamp: %v: %w", err, types.ErrDecode)
			}
			h.Timestamp = ts
		case 2:
			v, err := r.readVarint()
			if err != nil {
				return nil, err
			}
			h.ReferenceID = int64(v)
		case 3:
			if h.EntityPath, err = r.readString(); err != nil {
				return nil, err
			}
		default:
			if err := r.skip(); err != nil {
				return nil, err
			}
		}
	}
}

// readHeader decodes the header sub-message at the reader's current field.
func (r *fieldReader) readHeader() (*Header, error) {
	raw, err := r.readBytes()
	if err != nil {
		return nil, err
	}
	return UnmarshalHeader(raw)
}

// UnmarshalPlainText decodes a PlainText message.
func UnmarshalPlainText(b []byte) (*PlainText, error) {
	m := &PlainText{}
	r := newFieldReader("PlainText", b)
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return m, nil
		}
		switch r.num {
		case 1:
			m.Header, err = r.readHeader()
		case 2:
			m.Body, err = r.readString()
		default:
			err = r.skip()
		}
		if err != nil {
			return nil, err
		}
	}
}

// UnmarshalImageJPEG decodes an ImageJPEG message.
func UnmarshalImageJPEG(b []byte) (*ImageJPEG, error) {
	m := &ImageJPEG{}
	r := newFieldReader("ImageJPEG", b)
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return m, nil
		}
		switch r.num {
		case 1:
			m.Header, err = r.readHeader()
		case 2:
			m.Data, err = r.readBytes()
		default:
			err = r.skip()
		}
		if err != nil {
			return nil, err
		}
	}
}

// UnmarshalImage decodes a fixed-format raw image message. The format is not carried on
// the wire; it comes from the schema type the message was routed by.
func UnmarshalImage(b []byte, format types.PixelFormat) (*Image, error) {
	m := &Image{RawImage: types.RawImage{Format: format}}
	r := newFieldReader("Image"+format.String(), b)
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return m, nil
		}
		switch r.num {
		case 1:
			m.Header, err = r.readHeader()
		case 2:
			m.Width, err = r.readUint32()
		case 3:
			m.Height, err = r.readUint32()
		case 4:
			m.Data, err = r.readBytes()
		default:
			err = r.skip()
		}
		if err != nil {
			return nil, err
		}
	}
}

// UnmarshalImageRawAny decodes an ImageRawAny message. When the oneof is set more than
// once the last occurrence wins, as in protobuf.
func UnmarshalImageRawAny(b []byte) (*ImageRawAny, error) {
	m := &ImageRawAny{}
	r := newFieldReader("ImageRawAny", b)
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return m, nil
		}
		if r.num == 1 {
			if m.Header, err = r.readHeader(); err != nil {
				return nil, err
			}
			continue
		}
		format, known := rawAnyFields[r.num]
		if !known {
			if err := r.skip(); err != nil {
				return nil, err
			}
			continue
		}
		raw, err := r.readBytes()
		if err != nil {
			return nil, err
		}
		if m.Image, err = UnmarshalImage(raw, format); err != nil {
			return nil, err
		}
	}
}

func unmarshalGeometry(b []byte) (*Geometry, error) {
	g := &Geometry{}
	r := newFieldReader("Geometry", b)
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return g, nil
		}
		switch r.num {
		case 1:
			g.X, err = r.readFloat32()
		case 2:
			g.Y, err = r.readFloat32()
		case 3:
			g.Width, err = r.readFloat32()
		case 4:
			g.Height, err = r.readFloat32()
		default:
			err = r.skip()
		}
		if err != nil {
			return nil, err
		}
	}
}

func unmarshalBox(b []byte) (Box2DAxisAligned, error) {
	var box Box2DAxisAligned
	r := newFieldReader("Box2DAxisAligned", b)
	for {
		ok, err := r.next()
		if err != nil {
			return box, err
		}
		if !ok {
			return box, nil
		}
		switch r.num {
		case 1:
			box.Header, err = r.readHeader()
		case 2:
			var raw []byte
			if raw, err = r.readBytes(); err == nil {
				box.Geometry, err = unmarshalGeometry(raw)
			}
		case 3:
			box.Confidence, err = r.readFloat32()
		case 4:
			var v uint64
			if v, err = r.readVarint(); err == nil {
				box.ClassID = int32(v)
			}
		default:
			err = r.skip()
		}
		if err != nil {
			return box, err
		}
	}
}

// UnmarshalBoxes2DAxisAligned decodes a Boxes2DAxisAligned message.
func UnmarshalBoxes2DAxisAligned(b []byte) (*Boxes2DAxisAligned, error) {
	m := &Boxes2DAxisAligned{}
	r := newFieldReader("Boxes2DAxisAligned", b)
	for {
		ok, err := r.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return m, nil
		}
		switch r.num {
		case 1:
			m.Header, err = r.readHeader()
		case 2:
			var raw []byte
			if raw, err = r.readBytes(); err == nil {
				var box Box2DAxisAligned
				if box, err = unmarshalBox(raw); err == nil {
					m.Boxes = append(m.Boxes, box)
				}
			}
		default:
			err = r.skip()
		}
		if err != nil {
			return nil, err
		}
	}
}
