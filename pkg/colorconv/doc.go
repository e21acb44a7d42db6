// Package colorconv holds the pure pixel-layout and color-space routines used by the
// normalization engine: plane slicing for planar and semi-planar YUV, NV12
// de-interleaving and YUV to RGB conversion for a selectable range and matrix.
//
// The default conversion is limited ("studio") range with the BT.709 matrix. Other
// combinations are selected explicitly through Params; nothing in this package tries
// several combinations in turn.
//
// All functions are stateless and safe for concurrent use.
package colorconv
