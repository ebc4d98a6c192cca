package imaging

// polarityThreshold splits bright-background from dark-background captures.
const polarityThreshold = 127.0

// Normalize decides silhouette polarity and returns a grid where the droplet
// is dark on a bright background.
//
// A backlit capture has a mean intensity above 127 and is returned unchanged.
// Anything darker is treated as a bright droplet on a dark field and inverted
// into a new grid. The second return value reports whether inversion happened.
func Normalize(g *IntensityGrid) (*IntensityGrid, bool) {
	if g.Mean() > polarityThreshold {
		return g, false
	}
	out := &IntensityGrid{Width: g.Width, Height: g.Height, Pix: make([]uint8, len(g.Pix))}
	for i, v := range g.Pix {
		out.Pix[i] = 255 - v
	}
	return out, true
}
