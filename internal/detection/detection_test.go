package detection

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"github.com/ironsheep/contact-angle-mcp/internal/synth"
)

// capArc samples the above-baseline part of a spherical-cap outline in the
// baseline frame, roughly one point per pixel of arc length.
func capArc(angleDeg, baseRadius float64) []imaging.Point {
	theta := angleDeg * math.Pi / 180
	r := baseRadius / math.Sin(theta)
	cy := r * math.Cos(theta)

	var pts []imaging.Point
	n := int(2 * theta * r)
	for i := 0; i <= n; i++ {
		// Sweep from the left contact over the apex to the right contact.
		phi := math.Pi/2 + theta - 2*theta*float64(i)/float64(n)
		p := imaging.Point{X: r * math.Cos(phi), Y: cy - r*math.Sin(phi)}
		if p.Y < -0.5 {
			pts = append(pts, p)
		}
	}
	return pts
}

func horizontalLine(y, x0, x1, step float64) []imaging.Point {
	var pts []imaging.Point
	for x := x0; x <= x1; x += step {
		pts = append(pts, imaging.Point{X: x, Y: y})
	}
	return pts
}

func edgesOf(t *testing.T, scene synth.Scene) []imaging.Point {
	t.Helper()
	grid := scene.Render()
	if err := grid.Validate(); err != nil {
		t.Fatalf("synthetic grid invalid: %v", err)
	}
	res := imaging.DetectSubPixelEdges(grid, imaging.DefaultEdgeOptions())
	if res.Fallback {
		t.Fatal("synthetic scene fell back to integer edges")
	}
	return imaging.SuppressBorder(res.Points, scene.Width, scene.Height, 6)
}

func TestClusterPoints(t *testing.T) {
	pts := append(horizontalLine(10, 0, 20, 1), horizontalLine(40, 0, 20, 1)...)
	pts = append(pts, imaging.Point{X: 100, Y: 100})

	clusters := clusterPoints(pts, 3)
	if len(clusters) != 3 {
		t.Fatalf("got %d clusters, want 3", len(clusters))
	}
	sizes := map[int]int{}
	for _, c := range clusters {
		sizes[len(c)]++
	}
	if sizes[21] != 2 || sizes[1] != 1 {
		t.Errorf("cluster sizes %v, want two of 21 and one of 1", sizes)
	}
}

func TestSelectComponent_Empty(t *testing.T) {
	if _, err := SelectComponent(nil, 100, 100, DefaultComponentParams()); !errors.Is(err, ErrNoComponent) {
		t.Errorf("SelectComponent(nil) error = %v, want ErrNoComponent", err)
	}
}

func TestSelectComponent_FallsBackToLargest(t *testing.T) {
	pts := append(horizontalLine(10, 0, 5, 1), horizontalLine(50, 0, 8, 1)...)

	sel, err := SelectComponent(pts, 100, 100, DefaultComponentParams())
	if err != nil {
		t.Fatalf("SelectComponent failed: %v", err)
	}
	if !sel.Fallback {
		t.Error("expected fallback when no component reaches MinPoints")
	}
	if len(sel.Component.Points) != 9 {
		t.Errorf("fallback component has %d points, want the largest (9)", len(sel.Component.Points))
	}
}

func TestSelectComponent_PenalizesShortComponents(t *testing.T) {
	// A long flat line is larger but shorter than the minimum height; a
	// compact tall arc should win.
	flat := horizontalLine(150, 20, 280, 1)
	arc := capArc(90, 40)
	for i := range arc {
		arc[i].X += 150
		arc[i].Y += 100
	}
	pts := append(flat, arc...)

	sel, err := SelectComponent(pts, 300, 300, DefaultComponentParams())
	if err != nil {
		t.Fatalf("SelectComponent failed: %v", err)
	}
	if sel.Candidates != 2 {
		t.Fatalf("got %d candidates, want 2", sel.Candidates)
	}
	if sel.Component.Bounds.Height() < 30 {
		t.Errorf("selected component height %.1f, want the arc", sel.Component.Bounds.Height())
	}
}

func TestSelectComponent_RejectsFrameBorder(t *testing.T) {
	scene := synth.CleanDrop(100, 90).WithFrameBorder()
	pts := edgesOf(t, scene)
	params := DefaultComponentParams()

	sel, err := SelectComponent(pts, scene.Width, scene.Height, params)
	if err != nil {
		t.Fatalf("SelectComponent failed: %v", err)
	}

	b := sel.Component.Bounds
	if b.MinY < 50 {
		t.Errorf("selected component reaches y=%.1f, frame border was chosen", b.MinY)
	}
	if math.Abs(b.MaxY-scene.SubstrateY) > 1 {
		t.Errorf("selected component bottom %.2f, want substrate at %.1f", b.MaxY, scene.SubstrateY)
	}
	if math.Abs(sel.Component.CentroidX-scene.CenterX) > 20 {
		t.Errorf("selected centroid x %.1f, want near %.1f", sel.Component.CentroidX, scene.CenterX)
	}

	// The frame component itself must score at or below zero.
	found := false
	for _, idx := range clusterPoints(pts, params.LinkRadius) {
		c := describeComponent(gather(pts, idx), scene.Width, scene.Height, params)
		if c.Bounds.MaxY < 20 && len(c.Points) >= params.MinPoints {
			found = true
			if c.Score > 0 {
				t.Errorf("frame component score %.1f, want <= 0", c.Score)
			}
		}
	}
	if !found {
		t.Error("frame component not found among clusters")
	}
}

func TestEstimateBaseline(t *testing.T) {
	tests := []struct {
		name         string
		points       []imaging.Point
		wantSlope    float64
		wantY0       float64
		wantFallback bool
	}{
		{
			name:      "flat substrate under a drop",
			points:    append(horizontalLine(200, 20, 380, 1), shift(capArc(90, 60), 200, 196)...),
			wantSlope: 0,
			wantY0:    200,
		},
		{
			name:      "tilted substrate",
			points:    tiltedLine(0.1, 150, 20, 380),
			wantSlope: 0.1,
			wantY0:    150,
		},
		{
			name:         "tilt beyond 20 degrees",
			points:       tiltedLine(math.Tan(30*math.Pi/180), 50, 20, 200),
			wantSlope:    0,
			wantFallback: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := EstimateBaseline(tt.points, DefaultBaselineParams(), rand.New(rand.NewSource(7)))
			if b.Fallback != tt.wantFallback {
				t.Fatalf("Fallback = %v, want %v", b.Fallback, tt.wantFallback)
			}
			if math.Abs(b.Slope-tt.wantSlope) > 1e-6 {
				t.Errorf("Slope = %v, want %v", b.Slope, tt.wantSlope)
			}
			if tt.wantFallback {
				if b.Intercept != boundsOf(tt.points).MaxY {
					t.Errorf("fallback intercept %.2f, want contour max y %.2f", b.Intercept, boundsOf(tt.points).MaxY)
				}
				return
			}
			if math.Abs(b.Intercept-tt.wantY0) > 1e-6 {
				t.Errorf("Intercept = %v, want %v", b.Intercept, tt.wantY0)
			}
			if b.RMS > 1e-6 {
				t.Errorf("RMS = %v, want 0 for exact points", b.RMS)
			}
			wantAngle := math.Atan(tt.wantSlope) * 180 / math.Pi
			if math.Abs(b.AngleDeg-wantAngle) > 1e-6 {
				t.Errorf("AngleDeg = %v, want %v", b.AngleDeg, wantAngle)
			}
		})
	}
}

func TestEstimateBaseline_TooFewPoints(t *testing.T) {
	b := EstimateBaseline([]imaging.Point{{X: 1, Y: 5}}, DefaultBaselineParams(), rand.New(rand.NewSource(1)))
	if !b.Fallback || b.Intercept != 5 {
		t.Errorf("got %+v, want flat fallback at y=5", b)
	}
}

func TestEstimateBaseline_Deterministic(t *testing.T) {
	pts := edgesOf(t, synth.CleanDrop(80, 70))
	a := EstimateBaseline(pts, DefaultBaselineParams(), rand.New(rand.NewSource(11)))
	b := EstimateBaseline(pts, DefaultBaselineParams(), rand.New(rand.NewSource(11)))
	if a != b {
		t.Errorf("same seed produced %+v and %+v", a, b)
	}
	if a.Fallback || math.Abs(a.YAt(200)-220) > 0.2 || math.Abs(a.AngleDeg) > 0.2 {
		t.Errorf("baseline %+v, want flat line at 220", a)
	}
}

func TestFrame_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		b := Baseline{Slope: rng.Float64()*0.7 - 0.35, Intercept: rng.Float64() * 500}
		f := NewFrame(b, 640)
		p := imaging.Point{X: rng.Float64()*2000 - 500, Y: rng.Float64()*2000 - 500}
		back := f.FromBaseline(f.ToBaseline(p))
		if math.Abs(back.X-p.X) > 1e-9 || math.Abs(back.Y-p.Y) > 1e-9 {
			t.Fatalf("round trip %v -> %v", p, back)
		}
	}
}

func TestFrame_BaselineIsXAxis(t *testing.T) {
	b := Baseline{Slope: 0.2, Intercept: 100}
	f := NewFrame(b, 400)

	for _, x := range []float64{0, 150, 333} {
		q := f.ToBaseline(imaging.Point{X: x, Y: b.YAt(x)})
		if math.Abs(q.Y) > 1e-9 {
			t.Errorf("baseline point at x=%v maps to y=%v, want 0", x, q.Y)
		}
	}

	above := f.ToBaseline(imaging.Point{X: 200, Y: b.YAt(200) - 30})
	if above.Y >= 0 {
		t.Errorf("point above the substrate maps to y=%v, want < 0", above.Y)
	}

	origin := f.ToBaseline(imaging.Point{X: 200, Y: b.YAt(200)})
	if math.Abs(origin.X) > 1e-9 {
		t.Errorf("image center maps to x=%v, want 0", origin.X)
	}

	pts := []imaging.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}
	round := f.Unalign(f.Align(pts))
	for i := range pts {
		if math.Abs(round[i].X-pts[i].X) > 1e-9 || math.Abs(round[i].Y-pts[i].Y) > 1e-9 {
			t.Errorf("Align/Unalign %v -> %v", pts[i], round[i])
		}
	}
}

func TestIsolateDroplet_RejectsClutter(t *testing.T) {
	arc := capArc(90, 50)
	baseline := horizontalLine(0, -150, 150, 1)
	var clutter []imaging.Point
	for y := -40.0; y <= -10; y++ {
		clutter = append(clutter, imaging.Point{X: 120, Y: y})
	}

	aligned := append(append(append([]imaging.Point{}, arc...), baseline...), clutter...)
	iso, err := IsolateDroplet(aligned, DefaultIsolationParams())
	if err != nil {
		t.Fatalf("IsolateDroplet failed: %v", err)
	}
	if iso.Fallback {
		t.Fatal("clean arc should not need the fallback")
	}
	if iso.Candidates != 2 {
		t.Errorf("got %d candidates, want 2", iso.Candidates)
	}
	if len(iso.Points) != len(arc) {
		t.Errorf("isolated %d points, want the %d arc points", len(iso.Points), len(arc))
	}
	for _, p := range iso.Points {
		if p.X > 60 {
			t.Fatalf("clutter point %v leaked into the droplet", p)
		}
	}
}

func TestIsolateDroplet_OneSidedArcFallsBack(t *testing.T) {
	var half []imaging.Point
	for _, p := range capArc(90, 50) {
		if p.X <= 0 {
			half = append(half, p)
		}
	}

	iso, err := IsolateDroplet(half, DefaultIsolationParams())
	if err != nil {
		t.Fatalf("IsolateDroplet failed: %v", err)
	}
	if !iso.Fallback {
		t.Error("one-sided arc should fall back to the full above-baseline set")
	}
	if len(iso.Points) != len(half) {
		t.Errorf("fallback kept %d points, want %d", len(iso.Points), len(half))
	}
}

func TestIsolateDroplet_TooFewPoints(t *testing.T) {
	pts := horizontalLine(-5, 0, 15, 1)
	_, err := IsolateDroplet(pts, DefaultIsolationParams())
	if !errors.Is(err, ErrIsolation) {
		t.Errorf("error = %v, want ErrIsolation", err)
	}
}

func TestLocateContacts_Primary(t *testing.T) {
	arc := capArc(90, 50)
	full := append(append([]imaging.Point{}, arc...), horizontalLine(0, -150, 150, 1)...)

	c, err := LocateContacts(arc, full, DefaultContactParams())
	if err != nil {
		t.Fatalf("LocateContacts failed: %v", err)
	}
	if c.Fallback {
		t.Error("primary estimator should succeed on a vertical-flank drop")
	}
	if math.Abs(c.LeftX+50) > 1 || math.Abs(c.RightX-50) > 1 {
		t.Errorf("contacts (%.2f, %.2f), want (-50, 50)", c.LeftX, c.RightX)
	}
	if c.LeftSupport < 3 || c.RightSupport < 3 {
		t.Errorf("support (%d, %d), want >= 3 each", c.LeftSupport, c.RightSupport)
	}
	if math.Abs(c.Span()-100) > 2 {
		t.Errorf("span %.2f, want ~100", c.Span())
	}
}

func TestLocateContacts_FallbackOnFlatDrop(t *testing.T) {
	arc := capArc(20, 100)

	c, err := LocateContacts(arc, arc, DefaultContactParams())
	if err != nil {
		t.Fatalf("LocateContacts failed: %v", err)
	}
	if !c.Fallback {
		t.Fatal("a 20 degree drop lacks vertical support and should use the fallback")
	}
	if c.LeftX >= 0 || c.RightX <= 0 || c.Span() <= 6 {
		t.Errorf("fallback contacts (%.2f, %.2f) not around the apex", c.LeftX, c.RightX)
	}
}

func TestLocateContacts_Failure(t *testing.T) {
	if _, err := LocateContacts(nil, nil, DefaultContactParams()); !errors.Is(err, ErrContactPoints) {
		t.Errorf("empty arc error = %v, want ErrContactPoints", err)
	}

	// A narrow spike has no separated pair anywhere.
	spike := []imaging.Point{{X: -1, Y: -1}, {X: 0, Y: -20}, {X: 1, Y: -1}}
	if _, err := LocateContacts(spike, spike, DefaultContactParams()); !errors.Is(err, ErrContactPoints) {
		t.Errorf("spike error = %v, want ErrContactPoints", err)
	}
}

func shift(pts []imaging.Point, dx, dy float64) []imaging.Point {
	out := make([]imaging.Point, len(pts))
	for i, p := range pts {
		out[i] = imaging.Point{X: p.X + dx, Y: p.Y + dy}
	}
	return out
}

func tiltedLine(slope, intercept, x0, x1 float64) []imaging.Point {
	var pts []imaging.Point
	for x := x0; x <= x1; x++ {
		pts = append(pts, imaging.Point{X: x, Y: slope*x + intercept})
	}
	return pts
}
