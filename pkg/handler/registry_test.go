package handler_test

import (
	"context"
	"testing"

	"github.com/illmade-knight/go-vizbridge/pkg/handler"
	"github.com/illmade-knight/go-vizbridge/pkg/sink"
	"github.com/illmade-knight/go-vizbridge/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSchemaType(t *testing.T) {
	r := handler.NewRegistry()
	testCases := []struct {
		name   string
		topic  string
		typeID string
		ok     bool
	}{
		{"standard", "site/robot/pub/make87_messages-image-uncompressed-ImageRGB888/front", "image-uncompressed-ImageRGB888", true},
		{"deeper suffix", "a/b/c/make87_messages-text-PlainText/x/y/z", "text-PlainText", true},
		{"schema later than fourth", "a/b/c/d/make87_messages-text-PlainText/x", "text-PlainText", true},
		{"empty prefix segments", "///make87_messages-text-PlainText/x", "text-PlainText", true},
		{"no trailing separator", "a/b/c/make87_messages-text-PlainText", "", false},
		{"too few segments", "a/b/make87_messages-text-PlainText/x", "", false},
		{"no marker", "a/b/c/text-PlainText/x", "", false},
		{"marker only", "a/b/c/make87_messages-/x", "", false},
		{"empty", "", "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			typeID, ok := r.ExtractSchemaType(tc.topic)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.typeID, typeID)
		})
	}
}

func TestExtractSchemaType_EmptyPrefix(t *testing.T) {
	r := handler.NewRegistry(handler.WithSchemaPrefix(""))

	typeID, ok := r.ExtractSchemaType("a/b/c/text-PlainText/rest")
	assert.True(t, ok)
	assert.Equal(t, "text-PlainText", typeID)

	_, ok = r.ExtractSchemaType("a/b/c/text-PlainText")
	assert.False(t, ok)
}

func TestDefaultRegistry_ResolvesEveryType(t *testing.T) {
	r := handler.NewDefaultRegistry(tensorEngine())
	assert.Len(t, r.Types(), 10)

	for _, typeID := range r.Types() {
		h, ok := r.Resolve("a/b/c/make87_messages-" + typeID + "/x")
		assert.True(t, ok, typeID)
		assert.NotNil(t, h, typeID)
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := handler.NewDefaultRegistry(tensorEngine())

	h, ok := r.Resolve("a/b/c/make87_messages-audio-Opus/x")
	assert.False(t, ok)
	assert.Nil(t, h)

	typeID, _, err := r.Route("a/b/c/make87_messages-audio-Opus/x")
	assert.Equal(t, "audio-Opus", typeID)
	assert.ErrorIs(t, err, types.ErrRouting)

	_, _, err = r.Route("not/a/topic")
	assert.ErrorIs(t, err, types.ErrRouting)
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := handler.NewRegistry()
	calls := 0
	r.Register("x-Custom", func() handler.Handler { return handler.TextHandler{} })
	r.Register("x-Custom", func() handler.Handler {
		calls++
		return handler.HandlerFunc(func(context.Context, []byte, sink.Stream) (handler.Result, error) {
			return handler.Result{}, nil
		})
	})

	h, ok := r.Resolve("a/b/c/make87_messages-x-Custom/y")
	require.True(t, ok)
	_, isText := h.(handler.TextHandler)
	assert.False(t, isText)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"x-Custom"}, r.Types())
}

func TestCachedResolver(t *testing.T) {
	built := 0
	r := handler.NewRegistry()
	r.Register("text-PlainText", func() handler.Handler {
		built++
		return handler.TextHandler{}
	})
	resolver, err := handler.NewCachedResolver(r, 2)
	require.NoError(t, err)
	ctx := context.Background()

	topic := "a/b/c/make87_messages-text-PlainText/x"
	for i := 0; i < 3; i++ {
		res, err := resolver.Resolve(ctx, topic)
		require.NoError(t, err)
		assert.Equal(t, "text-PlainText", res.SchemaType)
	}
	assert.Equal(t, 1, built, "handler built once per topic")

	_, err = resolver.Resolve(ctx, "a/b/c/make87_messages-nope/x")
	assert.ErrorIs(t, err, types.ErrRouting)
	assert.Equal(t, 1, resolver.Len(), "unroutable topics are not cached")
}

func TestIsWildcard(t *testing.T) {
	assert.True(t, handler.IsWildcard("a/+/c"))
	assert.True(t, handler.IsWildcard("a/#"))
	assert.True(t, handler.IsWildcard("a/*/c"))
	assert.False(t, handler.IsWildcard("a/b/c"))
}
