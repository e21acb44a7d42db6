// Package pixelnorm turns raw and compressed image payloads into a single renderable
// artifact: either a packed RGB/RGBA tensor or a JPEG byte stream.
package pixelnorm

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/illmade-knight/go-vizbridge/pkg/colorconv"
	"github.com/illmade-knight/go-vizbridge/pkg/types"
)

// Mode selects which artifact the engine produces for raw images.
type Mode int

const (
	// ModeTensor produces a TensorArtifact, converting YUV formats to RGB.
	ModeTensor Mode = iota
	// ModeCompressed encodes every raw format straight to JPEG without an
	// intermediate RGB tensor for the YUV formats.
	ModeCompressed
)

// ParseMode accepts "tensor" or "compressed".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "tensor", "":
		return ModeTensor, nil
	case "compressed":
		return ModeCompressed, nil
	default:
		return 0, fmt.Errorf("unknown image mode %q", s)
	}
}

func (m Mode) String() string {
	if m == ModeCompressed {
		return "compressed"
	}
	return "tensor"
}

// Config holds the engine settings.
type Config struct {
	Mode        Mode
	Params      colorconv.Params
	JPEGQuality int
}

// NewDefaultConfig returns tensor mode, limited range BT.709 and JPEG quality 85.
func NewDefaultConfig() Config {
	return Config{
		Mode:        ModeTensor,
		Params:      colorconv.DefaultParams,
		JPEGQuality: 85,
	}
}

// Engine normalizes images. It holds no per-image state and can be shared.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine. A JPEGQuality outside 1..100 falls back to 85.
func NewEngine(cfg Config) *Engine {
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 85
	}
	return &Engine{cfg: cfg}
}

// Mode reports the configured mode.
func (e *Engine) Mode() Mode { return e.cfg.Mode }

// Normalize produces exactly one artifact for img according to the configured mode.
func (e *Engine) Normalize(img types.RawImage) (types.Artifact, error) {
	if e.cfg.Mode == ModeCompressed {
		return e.Compress(img)
	}
	return e.Tensor(img)
}

// PassThrough wraps an already compressed payload without decoding it.
func PassThrough(data []byte, mediaType string) types.CompressedArtifact {
	return types.CompressedArtifact{MediaType: mediaType, Data: data}
}

// Tensor builds a TensorArtifact. RGB888 and RGBA8888 alias img.Data; YUV420 and NV12
// are converted into a new RGB buffer. YUV422 and YUV444 report ErrUnsupportedFormat.
func (e *Engine) Tensor(img types.RawImage) (types.TensorArtifact, error) {
	switch img.Format {
	case types.FormatYUV422, types.FormatYUV444:
		return types.TensorArtifact{}, fmt.Errorf("tensor conversion of %s: %w", img.Format, types.ErrUnsupportedFormat)
	}
	if err := img.Validate(); err != nil {
		return types.TensorArtifact{}, err
	}

	w, h := int(img.Width), int(img.Height)
	switch img.Format {
	case types.FormatRGB888:
		return packedTensor(img.Data, w, h, types.ColorModelRGB), nil
	case types.FormatRGBA8888:
		return packedTensor(img.Data, w, h, types.ColorModelRGBA), nil
	case types.FormatYUV420:
		rgb, err := colorconv.YUV420ToRGB(img.Data, w, h, e.cfg.Params)
		if err != nil {
			return types.TensorArtifact{}, err
		}
		return packedTensor(rgb, w, h, types.ColorModelRGB), nil
	case types.FormatNV12:
		rgb, err := colorconv.NV12ToRGB(img.Data, w, h, e.cfg.Params)
		if err != nil {
			return types.TensorArtifact{}, err
		}
		return packedTensor(rgb, w, h, types.ColorModelRGB), nil
	default:
		return types.TensorArtifact{}, fmt.Errorf("tensor conversion of %s: %w", img.Format, types.ErrDecode)
	}
}

func packedTensor(data []byte, width, height int, model types.ColorModel) types.TensorArtifact {
	channels := model.Channels()
	return types.TensorArtifact{
		Width:         width,
		Height:        height,
		ColorModel:    model,
		RowStride:     width * channels,
		ColumnStride:  channels,
		ElementStride: 1,
		Data:          data,
	}
}

// Pack copies a tensor into a tightly packed (height, width, channels) buffer,
// honoring its strides.
func Pack(t types.TensorArtifact) []byte {
	channels := t.ColorModel.Channels()
	out := make([]byte, t.Width*t.Height*channels)
	i := 0
	for row := 0; row < t.Height; row++ {
		for col := 0; col < t.Width; col++ {
			base := row*t.RowStride + col*t.ColumnStride
			for ch := 0; ch < channels; ch++ {
				out[i] = t.Data[base+ch*t.ElementStride]
				i++
			}
		}
	}
	return out
}

// encodedSubsampling is what image/jpeg writes for every color input, whatever the
// source ratio.
const encodedSubsampling = "4:2:0"

// Compress encodes img to JPEG. YUV inputs are handed to the encoder as Y'CbCr planes
// (range-expanded to full range when limited) so no RGB tensor is materialized.
func (e *Engine) Compress(img types.RawImage) (types.CompressedArtifact, error) {
	if err := img.Validate(); err != nil {
		return types.CompressedArtifact{}, err
	}
	w, h := int(img.Width), int(img.Height)

	var src image.Image
	switch img.Format {
	case types.FormatYUV420, types.FormatNV12, types.FormatYUV422, types.FormatYUV444:
		planes, err := yuvPlanes(img)
		if err != nil {
			return types.CompressedArtifact{}, err
		}
		src = e.ycbcrImage(planes)
	case types.FormatRGBA8888:
		src = &image.RGBA{Pix: img.Data, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	case types.FormatRGB888:
		src = rgbToRGBA(img.Data, w, h)
	default:
		return types.CompressedArtifact{}, fmt.Errorf("jpeg encoding of %s: %w", img.Format, types.ErrDecode)
	}

	var buf bytes.Buffer
	buf.Grow(w * h / 4)
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: e.cfg.JPEGQuality}); err != nil {
		return types.CompressedArtifact{}, fmt.Errorf("jpeg encoding of %s: %v: %w", img.Format, err, types.ErrConversion)
	}
	return types.CompressedArtifact{
		MediaType:   types.MediaTypeJPEG,
		Subsampling: encodedSubsampling,
		Data:        buf.Bytes(),
	}, nil
}

func yuvPlanes(img types.RawImage) (colorconv.Planes, error) {
	w, h := int(img.Width), int(img.Height)
	switch img.Format {
	case types.FormatNV12:
		return colorconv.DeinterleaveNV12(img.Data, w, h)
	case types.FormatYUV422:
		return colorconv.SplitPlanar(img.Data, w, h, colorconv.Subsample422)
	case types.FormatYUV444:
		return colorconv.SplitPlanar(img.Data, w, h, colorconv.Subsample444)
	default:
		return colorconv.SplitYUV420(img.Data, w, h)
	}
}

var subsampleRatios = map[colorconv.Subsampling]image.YCbCrSubsampleRatio{
	colorconv.Subsample420: image.YCbCrSubsampleRatio420,
	colorconv.Subsample422: image.YCbCrSubsampleRatio422,
	colorconv.Subsample444: image.YCbCrSubsampleRatio444,
}

// ycbcrImage wraps planes as an image.YCbCr. The JPEG encoder interprets samples as
// full range, so limited-range planes are remapped through lookup tables first.
func (e *Engine) ycbcrImage(p colorconv.Planes) *image.YCbCr {
	y, u, v := p.Y, p.U, p.V
	if e.cfg.Params.Range == colorconv.LimitedRange {
		luma, chroma := e.cfg.Params.FullRangeTables()
		y = remap(p.Y, &luma)
		u = remap(p.U, &chroma)
		v = remap(p.V, &chroma)
	}
	return &image.YCbCr{
		Y:              y,
		Cb:             u,
		Cr:             v,
		YStride:        p.YStride,
		CStride:        p.CStride,
		SubsampleRatio: subsampleRatios[p.Subsampling],
		Rect:           image.Rect(0, 0, p.Width, p.Height),
	}
}

func remap(src []byte, table *[256]uint8) []byte {
	out := make([]byte, len(src))
	for i, b := range src {
		out[i] = table[b]
	}
	return out
}

func rgbToRGBA(data []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < len(data); i, j = i+3, j+4 {
		img.Pix[j] = data[i]
		img.Pix[j+1] = data[i+1]
		img.Pix[j+2] = data[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
