package sink

import (
	"fmt"

	"github.com/illmade-knight/go-vizbridge/pkg/types"
)

// Frame kinds on the wire.
const (
	KindTimeCursor = "time_cursor"
	KindTensor     = "tensor"
	KindCompressed = "compressed"
	KindText       = "text"
	KindBoxes      = "boxes"
)

// Frame is the unit written to the sink transports. Exactly one payload field is set,
// matching Kind.
type Frame struct {
	Seq        uint64                    `cbor:"seq"`
	Kind       string                    `cbor:"kind"`
	Path       string                    `cbor:"path,omitempty"`
	Timeline   string                    `cbor:"timeline,omitempty"`
	Seconds    float64                   `cbor:"seconds,omitempty"`
	Tensor     *types.TensorArtifact     `cbor:"tensor,omitempty"`
	Compressed *types.CompressedArtifact `cbor:"compressed,omitempty"`
	Text       *types.TextArtifact       `cbor:"text,omitempty"`
	Boxes      *types.BoxesArtifact      `cbor:"boxes,omitempty"`
}

// Summary is returned by the sink when a stream is closed.
type Summary struct {
	Frames uint64 `cbor:"frames"`
}

// TimeCursorFrame builds the frame that moves a timeline cursor.
func TimeCursorFrame(timeline string, seconds float64) Frame {
	return Frame{Kind: KindTimeCursor, Timeline: timeline, Seconds: seconds}
}

// ArtifactFrame wraps an artifact destined for path.
func ArtifactFrame(path string, artifact types.Artifact) (Frame, error) {
	f := Frame{Path: path}
	switch a := artifact.(type) {
	case types.TensorArtifact:
		f.Kind, f.Tensor = KindTensor, &a
	case types.CompressedArtifact:
		f.Kind, f.Compressed = KindCompressed, &a
	case types.TextArtifact:
		f.Kind, f.Text = KindText, &a
	case types.BoxesArtifact:
		f.Kind, f.Boxes = KindBoxes, &a
	default:
		return Frame{}, fmt.Errorf("artifact %T: %w", artifact, types.ErrForward)
	}
	return f, nil
}

// Artifact returns the payload of an artifact frame, or nil for other kinds.
func (f Frame) Artifact() types.Artifact {
	switch {
	case f.Tensor != nil:
		return *f.Tensor
	case f.Compressed != nil:
		return *f.Compressed
	case f.Text != nil:
		return *f.Text
	case f.Boxes != nil:
		return *f.Boxes
	default:
		return nil
	}
}
