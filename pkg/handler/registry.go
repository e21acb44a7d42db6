package handler

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/illmade-knight/go-vizbridge/pkg/pixelnorm"
	"github.com/illmade-knight/go-vizbridge/pkg/types"
)

// DefaultSchemaPrefix marks the topic segment that names the schema type.
const DefaultSchemaPrefix = "make87_messages-"

// prefixSegments is the number of leading topic segments that never carry the schema.
const prefixSegments = 3

// Schema type identifiers registered by NewDefaultRegistry.
const (
	TypePlainText      = "text-PlainText"
	TypeImageJPEG      = "image-compressed-ImageJPEG"
	TypeImageRawAny    = "image-uncompressed-ImageRawAny"
	TypeImageYUV420    = "image-uncompressed-ImageYUV420"
	TypeImageNV12      = "image-uncompressed-ImageNV12"
	TypeImageRGB888    = "image-uncompressed-ImageRGB888"
	TypeImageRGBA8888  = "image-uncompressed-ImageRGBA8888"
	TypeImageYUV422    = "image-uncompressed-ImageYUV422"
	TypeImageYUV444    = "image-uncompressed-ImageYUV444"
	TypeBoxes2DAligned = "detection-box-Boxes2DAxisAligned"
)

// Registry maps schema type identifiers to handler factories. It is safe for concurrent
// use, though registration normally finishes before any lookup.
type Registry struct {
	prefix string

	mu        sync.RWMutex
	factories map[string]Factory
}

// Option configures a Registry.
type Option func(*Registry)

// WithSchemaPrefix changes the schema segment marker. With an empty prefix the schema
// type is the fourth segment as is.
func WithSchemaPrefix(prefix string) Option {
	return func(r *Registry) { r.prefix = prefix }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		prefix:    DefaultSchemaPrefix,
		factories: make(map[string]Factory),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDefaultRegistry registers a handler for every supported schema type. Raw image
// handlers share engine.
func NewDefaultRegistry(engine *pixelnorm.Engine, opts ...Option) *Registry {
	r := NewRegistry(opts...)
	r.Register(TypePlainText, func() Handler { return TextHandler{} })
	r.Register(TypeImageJPEG, func() Handler { return JPEGHandler{} })
	r.Register(TypeImageRawAny, func() Handler { return RawAnyHandler{Engine: engine} })
	r.Register(TypeBoxes2DAligned, func() Handler { return BoxesHandler{} })

	raw := map[string]types.PixelFormat{
		TypeImageYUV420:   types.FormatYUV420,
		TypeImageNV12:     types.FormatNV12,
		TypeImageRGB888:   types.FormatRGB888,
		TypeImageRGBA8888: types.FormatRGBA8888,
		TypeImageYUV422:   types.FormatYUV422,
		TypeImageYUV444:   types.FormatYUV444,
	}
	for typeID, format := range raw {
		r.Register(typeID, func() Handler { return RawImageHandler{Format: format, Engine: engine} })
	}
	return r
}

// Register installs factory for typeID, replacing any previous one.
func (r *Registry) Register(typeID string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeID] = factory
}

// Types lists the registered identifiers in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for t := range r.factories {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ExtractSchemaType finds the schema type named by topic. The topic has three leading
// segments, then a segment starting with the schema prefix that is followed by at least
// one more separator. The identifier is that segment minus the prefix.
func (r *Registry) ExtractSchemaType(topic string) (string, bool) {
	segments := strings.Split(topic, "/")
	// The last segment never qualifies: the schema segment must be followed by "/".
	for i := prefixSegments; i < len(segments)-1; i++ {
		seg := segments[i]
		if r.prefix == "" {
			return seg, seg != ""
		}
		if strings.HasPrefix(seg, r.prefix) && len(seg) > len(r.prefix) {
			return seg[len(r.prefix):], true
		}
	}
	return "", false
}

// Resolve builds the handler for topic. A false result is the normal outcome for an
// unrecognized schema.
func (r *Registry) Resolve(topic string) (Handler, bool) {
	_, h, err := r.Route(topic)
	return h, err == nil
}

// Route is Resolve with the schema type and an ErrRouting cause.
func (r *Registry) Route(topic string) (string, Handler, error) {
	typeID, ok := r.ExtractSchemaType(topic)
	if !ok {
		return "", nil, fmt.Errorf("topic %q has no schema segment: %w", topic, types.ErrRouting)
	}
	r.mu.RLock()
	factory, ok := r.factories[typeID]
	r.mu.RUnlock()
	if !ok {
		return typeID, nil, fmt.Errorf("schema type %q of topic %q is not registered: %w", typeID, topic, types.ErrRouting)
	}
	return typeID, factory(), nil
}

// IsWildcard reports whether s contains a bus wildcard (MQTT "+" and "#", glob "*").
func IsWildcard(s string) bool {
	return strings.ContainsAny(s, "+#*")
}
