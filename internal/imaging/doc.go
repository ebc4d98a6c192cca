// Package imaging turns image files into the intensity grid consumed by the
// measurement pipeline and extracts sub-pixel edges from it.
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward. Pixel centers sit at
// integer coordinates, so an edge between rows 9 and 10 is reported at
// y = 9.5.
//
// # Stages
//
//   - LoadIntensity / FromImage: decode (with EXIF orientation) and convert to
//     an 8-bit IntensityGrid using either BT.601 luma or CIE L* lightness.
//   - Normalize: choose silhouette polarity so the droplet is dark on a bright
//     background.
//   - DetectSubPixelEdges: Gaussian blur, Sobel gradient, non-maximum
//     suppression, hysteresis and parabolic sub-pixel refinement.
//   - SuppressBorder: drop edge points near the image boundary.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Every other function is a
// pure transformation of its inputs and may be called concurrently.
package imaging
