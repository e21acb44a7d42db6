package types

import "fmt"

// PixelFormat tags the layout of a RawImage's pixel buffer.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	FormatRGB888
	FormatRGBA8888
	FormatYUV420
	FormatNV12
	FormatYUV422
	FormatYUV444
)

var pixelFormatNames = map[PixelFormat]string{
	FormatUnknown:  "unknown",
	FormatRGB888:   "RGB888",
	FormatRGBA8888: "RGBA8888",
	FormatYUV420:   "YUV420",
	FormatNV12:     "NV12",
	FormatYUV422:   "YUV422",
	FormatYUV444:   "YUV444",
}

func (f PixelFormat) String() string {
	if name, ok := pixelFormatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// RawImage is an uncompressed image as carried on the bus.
type RawImage struct {
	Width  uint32
	Height uint32
	Data   []byte
	Format PixelFormat
}

// ExpectedSize is the exact byte count Data must have for the format and dimensions.
// Chroma planes of odd-sized subsampled images round up.
func (img RawImage) ExpectedSize() (int, error) {
	w, h := int(img.Width), int(img.Height)
	cw, ch := (w+1)/2, (h+1)/2
	switch img.Format {
	case FormatRGB888:
		return w * h * 3, nil
	case FormatRGBA8888:
		return w * h * 4, nil
	case FormatYUV420, FormatNV12:
		return w*h + 2*cw*ch, nil
	case FormatYUV422:
		return w*h + 2*cw*h, nil
	case FormatYUV444:
		return w * h * 3, nil
	default:
		return 0, fmt.Errorf("pixel format %s: %w", img.Format, ErrDecode)
	}
}

// Validate checks the dimensions and the buffer length against ExpectedSize.
func (img RawImage) Validate() error {
	if img.Width == 0 || img.Height == 0 {
		return fmt.Errorf("%s image has zero dimension %dx%d: %w", img.Format, img.Width, img.Height, ErrMalformedPayload)
	}
	want, err := img.ExpectedSize()
	if err != nil {
		return err
	}
	if len(img.Data) != want {
		return fmt.Errorf("%s %dx%d needs %d bytes, got %d: %w",
			img.Format, img.Width, img.Height, want, len(img.Data), ErrMalformedPayload)
	}
	return nil
}
