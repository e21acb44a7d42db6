package types

// ColorModel tags the channel layout of a TensorArtifact.
type ColorModel string

const (
	ColorModelRGB  ColorModel = "RGB"
	ColorModelRGBA ColorModel = "RGBA"
)

// Channels returns the number of interleaved channels for the color model.
func (c ColorModel) Channels() int {
	switch c {
	case ColorModelRGBA:
		return 4
	case ColorModelRGB:
		return 3
	default:
		return 0
	}
}

// Artifact is one renderable unit handed to the sink. The concrete type is one of
// TensorArtifact, CompressedArtifact, TextArtifact or BoxesArtifact.
type Artifact interface {
	Kind() string
}

// TensorArtifact is a dense (height, width, channels) u8 pixel tensor.
// Strides are in bytes.
type TensorArtifact struct {
	Width         int        `cbor:"width" json:"width"`
	Height        int        `cbor:"height" json:"height"`
	ColorModel    ColorModel `cbor:"color_model" json:"color_model"`
	RowStride     int        `cbor:"row_stride" json:"row_stride"`
	ColumnStride  int        `cbor:"column_stride" json:"column_stride"`
	ElementStride int        `cbor:"element_stride" json:"element_stride"`
	Data          []byte     `cbor:"data" json:"-"`
}

func (TensorArtifact) Kind() string { return "tensor" }

// CompressedArtifact is an encoded image byte stream tagged with its media type.
type CompressedArtifact struct {
	MediaType string `cbor:"media_type" json:"media_type"`
	// Subsampling is the chroma subsampling in the encoded stream when the artifact was
	// produced by re-encoding. Empty for pass-through, where it is whatever the source had.
	Subsampling string `cbor:"subsampling,omitempty" json:"subsampling,omitempty"`
	Data        []byte `cbor:"data" json:"-"`
}

func (CompressedArtifact) Kind() string { return "compressed" }

// TextArtifact is a plain text document.
type TextArtifact struct {
	Body string `cbor:"body" json:"body"`
}

func (TextArtifact) Kind() string { return "text" }

// BoxesArtifact is a batch of 2D axis-aligned boxes given as centers and half sizes.
type BoxesArtifact struct {
	Centers   [][2]float32 `cbor:"centers" json:"centers"`
	HalfSizes [][2]float32 `cbor:"half_sizes" json:"half_sizes"`
}

func (BoxesArtifact) Kind() string { return "boxes" }

// Payload media types.
const (
	MediaTypeJPEG = "image/jpeg"
)
