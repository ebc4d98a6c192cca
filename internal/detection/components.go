package detection

import (
	"math"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"gonum.org/v1/gonum/floats"
)

// ComponentParams holds the clustering radius and score weights used by
// SelectComponent.
type ComponentParams struct {
	// LinkRadius joins two points into one component when they are at most
	// this far apart. It is also the grid cell size.
	LinkRadius float64

	// MinPoints is the smallest component that qualifies for scoring.
	MinPoints int

	// BorderZone counts a point as border-touching within this distance of
	// any image edge.
	BorderZone float64

	// NearBottomZone counts a point as near-bottom within this distance of
	// the component's lowest point.
	NearBottomZone float64

	// Components shorter than max(MinHeightPx, MinHeightFraction*imageHeight)
	// lose ShortPenalty points.
	MinHeightPx       float64
	MinHeightFraction float64
	ShortPenalty      float64

	// WidthOnset is the width/imageWidth ratio where the width penalty starts;
	// it saturates at 1.
	WidthOnset float64

	SizeWeight       float64
	HeightWeight     float64
	NearBottomWeight float64
	BorderWeight     float64
	CenterWeight     float64
	WidthWeight      float64
}

// DefaultComponentParams returns the calibrated component score.
func DefaultComponentParams() ComponentParams {
	return ComponentParams{
		LinkRadius:        3,
		MinPoints:         12,
		BorderZone:        12,
		NearBottomZone:    12,
		MinHeightPx:       12,
		MinHeightFraction: 0.05,
		ShortPenalty:      1000,
		WidthOnset:        0.85,
		SizeWeight:        1,
		HeightWeight:      8,
		NearBottomWeight:  0.25,
		BorderWeight:      2.2,
		CenterWeight:      40,
		WidthWeight:       180,
	}
}

// Bounds is an axis-aligned extent in floating-point coordinates.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Width returns MaxX - MinX.
func (b Bounds) Width() float64 { return b.MaxX - b.MinX }

// Height returns MaxY - MinY.
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

// Component is one connected edge cluster with its score terms.
type Component struct {
	Points        []imaging.Point
	Bounds        Bounds
	CentroidX     float64
	BorderTouches int
	NearBottom    int
	Score         float64
}

// Selection is the outcome of SelectComponent.
type Selection struct {
	Component Component

	// Candidates is the number of components that met MinPoints.
	Candidates int

	// Fallback is true when no component qualified and the largest raw
	// component was returned instead.
	Fallback bool
}

// SelectComponent groups edge points into connected components and returns
// the most droplet-like one.
//
// Parameters:
//   - points: Edge points after border suppression.
//   - width, height: Image dimensions in pixels.
//   - params: Clustering radius and score weights.
//
// # Score
//
//	size + 8·height + 0.25·nearBottom − 2.2·borderTouches
//	     − 40·centerPenalty − 180·widthPenalty
//
// centerPenalty is the centroid's distance from the image's horizontal center
// normalized by half the width. widthPenalty ramps from 0 at 85% of the image
// width to 1 at full width, which sinks frame lines. Short components lose a
// large constant instead of being dropped, so a usable fallback survives.
//
// Returns ErrNoComponent when points is empty.
func SelectComponent(points []imaging.Point, width, height int, params ComponentParams) (Selection, error) {
	if len(points) == 0 {
		return Selection{}, ErrNoComponent
	}

	clusters := clusterPoints(points, params.LinkRadius)

	var (
		best       Component
		bestScore  = math.Inf(-1)
		candidates int
		largest    []int
	)
	for _, idx := range clusters {
		if len(idx) > len(largest) {
			largest = idx
		}
		if len(idx) < params.MinPoints {
			continue
		}
		candidates++
		c := describeComponent(gather(points, idx), width, height, params)
		if c.Score > bestScore {
			best, bestScore = c, c.Score
		}
	}

	if candidates == 0 {
		c := describeComponent(gather(points, largest), width, height, params)
		return Selection{Component: c, Fallback: true}, nil
	}
	return Selection{Component: best, Candidates: candidates}, nil
}

func describeComponent(pts []imaging.Point, width, height int, params ComponentParams) Component {
	b := boundsOf(pts)
	w, h := float64(width), float64(height)

	var sumX float64
	border, nearBottom := 0, 0
	for _, p := range pts {
		sumX += p.X
		if p.X < params.BorderZone || p.Y < params.BorderZone ||
			p.X > w-1-params.BorderZone || p.Y > h-1-params.BorderZone {
			border++
		}
		if p.Y >= b.MaxY-params.NearBottomZone {
			nearBottom++
		}
	}
	centroidX := sumX / float64(len(pts))

	halfW := w / 2
	centerPenalty := math.Abs(centroidX-halfW) / halfW
	widthPenalty := clampFloat((b.Width()/w-params.WidthOnset)/(1-params.WidthOnset), 0, 1)

	score := params.SizeWeight*float64(len(pts)) +
		params.HeightWeight*b.Height() +
		params.NearBottomWeight*float64(nearBottom) -
		params.BorderWeight*float64(border) -
		params.CenterWeight*centerPenalty -
		params.WidthWeight*widthPenalty

	if b.Height() < math.Max(params.MinHeightPx, params.MinHeightFraction*h) {
		score -= params.ShortPenalty
	}

	return Component{
		Points:        pts,
		Bounds:        b,
		CentroidX:     centroidX,
		BorderTouches: border,
		NearBottom:    nearBottom,
		Score:         score,
	}
}

type cellKey struct{ cx, cy int }

// clusterPoints groups points whose chains of neighbors lie within radius of
// each other. Points are binned into a uniform grid with cell size radius so
// each lookup only visits the 3x3 surrounding cells. Returns index lists.
func clusterPoints(points []imaging.Point, radius float64) [][]int {
	if radius <= 0 {
		radius = 1
	}
	cellOf := func(p imaging.Point) cellKey {
		return cellKey{int(math.Floor(p.X / radius)), int(math.Floor(p.Y / radius))}
	}

	grid := make(map[cellKey][]int, len(points))
	for i, p := range points {
		k := cellOf(p)
		grid[k] = append(grid[k], i)
	}

	r2 := radius * radius
	visited := make([]bool, len(points))
	var clusters [][]int

	for start := range points {
		if visited[start] {
			continue
		}
		visited[start] = true
		cluster := []int{start}
		stack := []int{start}

		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			p := points[i]
			k := cellOf(p)

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					for _, j := range grid[cellKey{k.cx + dx, k.cy + dy}] {
						if visited[j] {
							continue
						}
						ddx, ddy := points[j].X-p.X, points[j].Y-p.Y
						if ddx*ddx+ddy*ddy <= r2 {
							visited[j] = true
							cluster = append(cluster, j)
							stack = append(stack, j)
						}
					}
				}
			}
		}
		clusters = append(clusters, cluster)
	}

	return clusters
}

func gather(points []imaging.Point, idx []int) []imaging.Point {
	out := make([]imaging.Point, len(idx))
	for i, j := range idx {
		out[i] = points[j]
	}
	return out
}

func boundsOf(pts []imaging.Point) Bounds {
	if len(pts) == 0 {
		return Bounds{}
	}
	xs, ys := splitXY(pts)
	return Bounds{
		MinX: floats.Min(xs),
		MinY: floats.Min(ys),
		MaxX: floats.Max(xs),
		MaxY: floats.Max(ys),
	}
}

func splitXY(pts []imaging.Point) (xs, ys []float64) {
	xs = make([]float64, len(pts))
	ys = make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
	}
	return xs, ys
}

func clampFloat(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
