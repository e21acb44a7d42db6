package schema

import (
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// TimelineName is the timeline every message's capture time is recorded on.
const TimelineName = "header_time"

// RootPath is the destination used when a message carries no header.
const RootPath = "/"

// TimeCursor is the part of a sink stream the envelope decoder drives.
type TimeCursor interface {
	SetTimeCursor(timeline string, seconds float64)
}

// TimestampSeconds converts a protobuf timestamp into fractional seconds since the epoch.
func TimestampSeconds(ts *timestamppb.Timestamp) float64 {
	return float64(ts.GetSeconds()) + float64(ts.GetNanos())/1e9
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// EnsureLeadingSlash prefixes path with "/" unless it already starts with one.
func EnsureLeadingSlash(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	return "/" + path
}

// DecodeEnvelope resolves the destination path and capture time of a message and moves
// the stream's TimelineName cursor to that time, so every artifact forwarded for the
// message shares one timestamp. Without a header the path is RootPath and the time is
// now; a header without a timestamp also uses now.
func DecodeEnvelope(header *Header, cursor TimeCursor) (string, float64) {
	path, seconds := RootPath, 0.0
	switch {
	case header == nil:
		seconds = nowSeconds()
	case header.Timestamp != nil:
		path = EnsureLeadingSlash(header.EntityPath)
		seconds = TimestampSeconds(header.Timestamp)
	default:
		path = EnsureLeadingSlash(header.EntityPath)
		seconds = nowSeconds()
	}
	cursor.SetTimeCursor(TimelineName, seconds)
	return path, seconds
}
