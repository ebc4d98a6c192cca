package imaging

// SuppressBorder drops edge points within margin pixels of any image edge.
//
// Frame lines and vignetting produce strong gradients along the image boundary
// that would otherwise join the droplet contour. The returned slice is newly
// allocated; the input is not modified.
func SuppressBorder(points []Point, width, height int, margin float64) []Point {
	if margin <= 0 {
		out := make([]Point, len(points))
		copy(out, points)
		return out
	}

	maxX := float64(width-1) - margin
	maxY := float64(height-1) - margin
	out := make([]Point, 0, len(points))
	for _, p := range points {
		if p.X < margin || p.Y < margin || p.X > maxX || p.Y > maxY {
			continue
		}
		out = append(out, p)
	}
	return out
}
