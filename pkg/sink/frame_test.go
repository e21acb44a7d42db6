package sink_test

import (
	"testing"

	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/illmade-knight/go-vizbridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactFrame(t *testing.T) {
	testCases := []struct {
		artifact types.Artifact
		kind     string
	}{
		{types.TensorArtifact{Width: 1, Height: 1, ColorModel: types.ColorModelRGB, Data: []byte{1, 2, 3}}, sink.KindTensor},
		{types.CompressedArtifact{MediaType: types.MediaTypeJPEG, Data: []byte{0xff}}, sink.KindCompressed},
		{types.TextArtifact{Body: "hi"}, sink.KindText},
		{types.BoxesArtifact{Centers: [][2]float32{{1, 2}}, HalfSizes: [][2]float32{{3, 4}}}, sink.KindBoxes},
	}

	for _, tc := range testCases {
		t.Run(tc.kind, func(t *testing.T) {
			frame, err := sink.ArtifactFrame("/p", tc.artifact)
			require.NoError(t, err)
			assert.Equal(t, tc.kind, frame.Kind)
			assert.Equal(t, "/p", frame.Path)
			assert.Equal(t, tc.artifact, frame.Artifact())
		})
	}
}

type strangeArtifact struct{}

func (strangeArtifact) Kind() string { return "strange" }

func TestArtifactFrame_UnknownArtifact(t *testing.T) {
	_, err := sink.ArtifactFrame("/p", strangeArtifact{})
	assert.ErrorIs(t, err, types.ErrForward)
}

func TestTimeCursorFrame(t *testing.T) {
	frame := sink.TimeCursorFrame("header_time", 3.5)
	assert.Equal(t, sink.KindTimeCursor, frame.Kind)
	assert.Nil(t, frame.Artifact())
}
