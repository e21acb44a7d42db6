// Package schema decodes the protobuf-encoded bus messages into Go values and extracts the
// common envelope (destination path and capture time) from their optional header.
//
// Decoding uses protowire directly; field numbers are:
//
//	Header             1 timestamp (google.protobuf.Timestamp), 2 reference_id (int64), 3 entity_path (string)
//	PlainText          1 header, 2 body (string)
//	ImageJPEG          1 header, 2 data (bytes)
//	Image{RGB888,...}  1 header, 2 width (uint32), 3 height (uint32), 4 data (bytes)
//	ImageRawAny        1 header, oneof image: 2 rgb888, 3 rgba8888, 4 yuv420, 5 yuv422, 6 yuv444, 7 nv12
//	Box2DAxisAligned   1 header, 2 geometry, 3 confidence (float), 4 class_id (int32)
//	Geometry           1 x, 2 y, 3 width, 4 height (float)
//	Boxes2DAxisAligned 1 header, 2 boxes (repeated Box2DAxisAligned)
//
// Unknown fields are skipped.
package schema
