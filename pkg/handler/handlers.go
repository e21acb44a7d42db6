package handler

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-vizbridge/pkg/pixelnorm"
	"github.com/illmade-knight/go-vizbridge/pkg/schema"
	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/illmade-knight/go-vizbridge/pkg/types"
)

// TextHandler forwards PlainText bodies as text documents.
type TextHandler struct{}

func (TextHandler) Handle(ctx context.Context, payload []byte, stream sink.Stream) (Result, error) {
	msg, err := schema.UnmarshalPlainText(payload)
	if err != nil {
		return Result{}, err
	}
	res := envelope(msg.Header, stream)
	return res, forward(ctx, stream, &res, types.TextArtifact{Body: msg.Body})
}

// JPEGHandler forwards ImageJPEG data unchanged.
type JPEGHandler struct{}

func (JPEGHandler) Handle(ctx context.Context, payload []byte, stream sink.Stream) (Result, error) {
	msg, err := schema.UnmarshalImageJPEG(payload)
	if err != nil {
		return Result{}, err
	}
	res := envelope(msg.Header, stream)
	return res, forward(ctx, stream, &res, pixelnorm.PassThrough(msg.Data, types.MediaTypeJPEG))
}

// RawImageHandler decodes a fixed-format raw image and normalizes it with Engine.
type RawImageHandler struct {
	Format types.PixelFormat
	Engine *pixelnorm.Engine
}

func (h RawImageHandler) Handle(ctx context.Context, payload []byte, stream sink.Stream) (Result, error) {
	msg, err := schema.UnmarshalImage(payload, h.Format)
	if err != nil {
		return Result{}, err
	}
	return normalizeAndForward(ctx, h.Engine, envelope(msg.Header, stream), msg, stream)
}

// RawAnyHandler decodes ImageRawAny and dispatches on the variant it carries.
type RawAnyHandler struct {
	Engine *pixelnorm.Engine
}

func (h RawAnyHandler) Handle(ctx context.Context, payload []byte, stream sink.Stream) (Result, error) {
	msg, err := schema.UnmarshalImageRawAny(payload)
	if err != nil {
		return Result{}, err
	}
	// The outer header describes the message; the inner one is used only without it.
	header := msg.Header
	if header == nil && msg.Image != nil {
		header = msg.Image.Header
	}
	res := envelope(header, stream)
	if msg.Image == nil {
		return res, fmt.Errorf("ImageRawAny carries no image: %w", types.ErrDecode)
	}
	return normalizeAndForward(ctx, h.Engine, res, msg.Image, stream)
}

func normalizeAndForward(ctx context.Context, engine *pixelnorm.Engine, res Result, img *schema.Image, stream sink.Stream) (Result, error) {
	artifact, err := engine.Normalize(img.RawImage)
	if err != nil {
		return res, err
	}
	return res, forward(ctx, stream, &res, artifact)
}

// BoxesHandler forwards Boxes2DAxisAligned as one batch of centers and half sizes.
// Boxes without geometry are left out; when nothing remains no write is made.
type BoxesHandler struct{}

func (BoxesHandler) Handle(ctx context.Context, payload []byte, stream sink.Stream) (Result, error) {
	msg, err := schema.UnmarshalBoxes2DAxisAligned(payload)
	if err != nil {
		return Result{}, err
	}
	res := envelope(msg.Header, stream)

	artifact := BoxesToArtifact(msg.Boxes)
	if len(artifact.Centers) == 0 {
		return res, nil
	}
	return res, forward(ctx, stream, &res, artifact)
}

// BoxesToArtifact converts top-left/size rectangles into centers and half sizes.
func BoxesToArtifact(boxes []schema.Box2DAxisAligned) types.BoxesArtifact {
	var out types.BoxesArtifact
	for _, b := range boxes {
		g := b.Geometry
		if g == nil {
			continue
		}
		out.Centers = append(out.Centers, [2]float32{g.X + g.Width/2, g.Y + g.Height/2})
		out.HalfSizes = append(out.HalfSizes, [2]float32{g.Width / 2, g.Height / 2})
	}
	return out
}
