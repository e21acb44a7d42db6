package colorconv

import (
	"fmt"

	"github.com/illmade-knight/go-vizbridge/pkg/types"
)

// Subsampling is the chroma subsampling of a planar Y'CbCr image.
type Subsampling int

const (
	Subsample420 Subsampling = iota
	Subsample422
	Subsample444
)

func (s Subsampling) String() string {
	switch s {
	case Subsample420:
		return "4:2:0"
	case Subsample422:
		return "4:2:2"
	case Subsample444:
		return "4:4:4"
	default:
		return fmt.Sprintf("Subsampling(%d)", int(s))
	}
}

// ChromaDims returns the width and height of one chroma plane. Odd luma dimensions
// round up.
func (s Subsampling) ChromaDims(width, height int) (int, int) {
	switch s {
	case Subsample420:
		return (width + 1) / 2, (height + 1) / 2
	case Subsample422:
		return (width + 1) / 2, height
	default:
		return width, height
	}
}

func (s Subsampling) shifts() (sx, sy uint) {
	switch s {
	case Subsample420:
		return 1, 1
	case Subsample422:
		return 1, 0
	default:
		return 0, 0
	}
}

// PlanarSize is the byte count of a tightly packed planar image: the luma plane
// followed by two chroma planes. For 4:2:0 with even dimensions this is w*h*3/2.
func PlanarSize(s Subsampling, width, height int) int {
	cw, ch := s.ChromaDims(width, height)
	return width*height + 2*cw*ch
}

// Planes is a view over the three planes of a Y'CbCr image. The slices alias the
// source buffer unless produced by DeinterleaveNV12.
type Planes struct {
	Width, Height int
	Subsampling   Subsampling
	Y, U, V       []byte
	YStride       int
	CStride       int
}

func checkDims(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid dimensions %dx%d: %w", width, height, types.ErrMalformedPayload)
	}
	return nil
}

// SplitPlanar slices data into Y, U and V planes. The planes are unpadded, so the
// strides equal the plane widths. data must hold exactly PlanarSize bytes.
func SplitPlanar(data []byte, width, height int, s Subsampling) (Planes, error) {
	if err := checkDims(width, height); err != nil {
		return Planes{}, err
	}
	want := PlanarSize(s, width, height)
	if len(data) != want {
		return Planes{}, fmt.Errorf("planar %s %dx%d needs %d bytes, got %d: %w",
			s, width, height, want, len(data), types.ErrMalformedPayload)
	}
	cw, ch := s.ChromaDims(width, height)
	ySize, cSize := width*height, cw*ch
	return Planes{
		Width:       width,
		Height:      height,
		Subsampling: s,
		Y:           data[:ySize:ySize],
		U:           data[ySize : ySize+cSize : ySize+cSize],
		V:           data[ySize+cSize : ySize+2*cSize],
		YStride:     width,
		CStride:     cw,
	}, nil
}

// SplitYUV420 slices an I420 buffer: a w*h luma plane followed by U then V at half
// resolution in both dimensions.
func SplitYUV420(data []byte, width, height int) (Planes, error) {
	return SplitPlanar(data, width, height, Subsample420)
}

// DeinterleaveNV12 splits an NV12 buffer into separate planes. The luma plane aliases
// data; the interleaved chroma plane is copied out with even-indexed bytes going to U
// and odd-indexed bytes to V.
func DeinterleaveNV12(data []byte, width, height int) (Planes, error) {
	if err := checkDims(width, height); err != nil {
		return Planes{}, err
	}
	want := PlanarSize(Subsample420, width, height)
	if len(data) != want {
		return Planes{}, fmt.Errorf("nv12 %dx%d needs %d bytes, got %d: %w",
			width, height, want, len(data), types.ErrMalformedPayload)
	}
	cw, ch := Subsample420.ChromaDims(width, height)
	ySize, cSize := width*height, cw*ch

	uv := data[ySize:]
	u := make([]byte, cSize)
	v := make([]byte, cSize)
	for i := 0; i < cSize; i++ {
		u[i] = uv[2*i]
		v[i] = uv[2*i+1]
	}

	return Planes{
		Width:       width,
		Height:      height,
		Subsampling: Subsample420,
		Y:           data[:ySize:ySize],
		U:           u,
		V:           v,
		YStride:     width,
		CStride:     cw,
	}, nil
}
