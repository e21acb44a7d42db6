package types

import "errors"

// Error taxonomy shared across the bridge. Components wrap these with fmt.Errorf("...: %w")
// so callers can classify a failure with errors.Is.
var (
	// ErrRouting means a topic does not follow the naming convention or names an unregistered schema.
	ErrRouting = errors.New("unroutable topic")
	// ErrDecode means the payload did not parse as the expected schema.
	ErrDecode = errors.New("decode failure")
	// ErrMalformedPayload means the payload parsed but violates a size or shape invariant.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnsupportedFormat means a recognized but intentionally unimplemented variant.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrConversion means a pixel conversion or encode routine failed.
	ErrConversion = errors.New("conversion failure")
	// ErrForward means the sink rejected or failed a write.
	ErrForward = errors.New("forward failure")
	// ErrConnection means the sink is unreachable.
	ErrConnection = errors.New("sink connection failure")
)

// ErrorClass is the coarse category of a per-message failure.
type ErrorClass string

const (
	ClassNone        ErrorClass = ""
	ClassRouting     ErrorClass = "routing"
	ClassDecode      ErrorClass = "decode"
	ClassMalformed   ErrorClass = "malformed"
	ClassUnsupported ErrorClass = "unsupported"
	ClassConversion  ErrorClass = "conversion"
	ClassForward     ErrorClass = "forward"
	ClassConnection  ErrorClass = "connection"
	ClassUnknown     ErrorClass = "unknown"
)

// Classify maps err onto its ErrorClass. A nil error is ClassNone.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrUnsupportedFormat):
		return ClassUnsupported
	case errors.Is(err, ErrMalformedPayload):
		return ClassMalformed
	case errors.Is(err, ErrDecode):
		return ClassDecode
	case errors.Is(err, ErrConversion):
		return ClassConversion
	case errors.Is(err, ErrRouting):
		return ClassRouting
	case errors.Is(err, ErrForward):
		return ClassForward
	case errors.Is(err, ErrConnection):
		return ClassConnection
	default:
		return ClassUnknown
	}
}
