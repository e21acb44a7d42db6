package colorconv

import (
	"fmt"

	"github.com/illmade-knight/go-vizbridge/pkg/types"
)

// RGBSize is the byte count of a packed RGB888 image.
func RGBSize(width, height int) int { return width * height * 3 }

// ToRGB converts p into packed RGB888 written to dst, which must be exactly
// RGBSize(p.Width, p.Height) bytes. The output row stride is width*3.
// Nothing is written when dst has the wrong size.
func ToRGB(p Planes, params Params, dst []byte) error {
	if want := RGBSize(p.Width, p.Height); len(dst) != want {
		return fmt.Errorf("rgb destination needs %d bytes, got %d: %w", want, len(dst), types.ErrMalformedPayload)
	}
	c := params.coefficients()
	sx, sy := p.Subsampling.shifts()
	const half = 1 << (fixShift - 1)

	for row := 0; row < p.Height; row++ {
		yRow := p.Y[row*p.YStride:]
		cOff := (row >> sy) * p.CStride
		uRow, vRow := p.U[cOff:], p.V[cOff:]
		out := dst[row*p.Width*3:]

		for col := 0; col < p.Width; col++ {
			y := (int(yRow[col]) - c.yOffset) * c.yMul
			u := int(uRow[col>>sx]) - 128
			v := int(vRow[col>>sx]) - 128

			out[3*col] = clamp((y + c.vToR*v + half) >> fixShift)
			out[3*col+1] = clamp((y - c.uToG*u - c.vToG*v + half) >> fixShift)
			out[3*col+2] = clamp((y + c.uToB*u + half) >> fixShift)
		}
	}
	return nil
}

// YUV420ToRGB converts an I420 buffer into a newly allocated RGB888 buffer.
func YUV420ToRGB(data []byte, width, height int, params Params) ([]byte, error) {
	planes, err := SplitYUV420(data, width, height)
	if err != nil {
		return nil, err
	}
	return planesToRGB(planes, params)
}

// NV12ToRGB de-interleaves an NV12 buffer and converts it like YUV420ToRGB.
func NV12ToRGB(data []byte, width, height int, params Params) ([]byte, error) {
	planes, err := DeinterleaveNV12(data, width, height)
	if err != nil {
		return nil, err
	}
	return planesToRGB(planes, params)
}

func planesToRGB(p Planes, params Params) ([]byte, error) {
	dst := make([]byte, RGBSize(p.Width, p.Height))
	if err := ToRGB(p, params, dst); err != nil {
		return nil, err
	}
	return dst, nil
}
