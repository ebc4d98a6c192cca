package fitting

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
)

// capPoints samples a spherical cap with the given contact angle and base
// radius in the baseline frame, about one point every step pixels of arc.
func capPoints(angleDeg, baseRadius, step float64) ([]float64, []float64) {
	theta := angleDeg * math.Pi / 180
	r := baseRadius / math.Sin(theta)
	cy := r * math.Cos(theta)
	n := int(2*theta*r/step) + 1

	xs := make([]float64, 0, n+1)
	ys := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		psi := -theta + 2*theta*float64(i)/float64(n)
		xs = append(xs, r*math.Sin(psi))
		ys = append(ys, math.Min(cy-r*math.Cos(psi), 0))
	}
	return xs, ys
}

func near(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func TestInteriorAngle(t *testing.T) {
	tests := []struct {
		name   string
		dx, dy float64
		side   Side
		want   float64
	}{
		{"left acute", 1, -0.5, Left, 26.565},
		{"left obtuse", -1, -0.5, Left, 153.435},
		{"left reversed direction", 1, 0.5, Left, 153.435},
		{"left vertical", 0, -1, Left, 90},
		{"right acute", -1, -0.5, Right, 26.565},
		{"right obtuse", 1, -0.5, Right, 153.435},
		{"right vertical reversed", 0, 1, Right, 90},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InteriorAngle(tt.dx, tt.dy, tt.side); !near(got, tt.want, 0.01) {
				t.Errorf("InteriorAngle(%v, %v) = %.3f, want %.3f", tt.dx, tt.dy, got, tt.want)
			}
		})
	}
}

func TestParseMethod(t *testing.T) {
	for _, m := range Methods {
		got, err := ParseMethod(m.String())
		if err != nil || got != m {
			t.Errorf("ParseMethod(%q) = %q, %v", m, got, err)
		}
	}
	if _, err := ParseMethod("spline"); err == nil {
		t.Error("ParseMethod(spline) should fail")
	}
}

func TestFitCircle(t *testing.T) {
	for _, angle := range []float64{30, 60, 90, 120, 150} {
		xs, ys := capPoints(angle, 50, 1)
		c, err := FitCircle(xs, ys)
		if err != nil {
			t.Fatalf("angle %v: %v", angle, err)
		}

		wantR := 50 / math.Sin(angle*math.Pi/180)
		if !near(c.R, wantR, 0.01*wantR) {
			t.Errorf("angle %v: R = %.2f, want %.2f", angle, c.R, wantR)
		}
		if c.RSquared < 0.9 {
			t.Errorf("angle %v: RSquared = %.3f", angle, c.RSquared)
		}
		if !near(c.AngleDeg, angle, 0.5) {
			t.Errorf("angle %v: AngleDeg = %.2f", angle, c.AngleDeg)
		}

		left, right, ok := c.BaselineIntersections()
		if !ok || !near(left, -50, 0.5) || !near(right, 50, 0.5) {
			t.Errorf("angle %v: intersections %.2f %.2f %v", angle, left, right, ok)
		}
		if !c.RisesAboveBaseline() {
			t.Errorf("angle %v: circle should rise above baseline", angle)
		}
	}
}

func TestFitCircleErrors(t *testing.T) {
	if _, err := FitCircle([]float64{0, 1}, []float64{0, 1}); !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("two points: err = %v, want ErrTooFewPoints", err)
	}
	if _, err := FitCircle([]float64{0, 1, 2}, []float64{0, 1}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("mismatch: err = %v, want ErrLengthMismatch", err)
	}

	xs := []float64{0, 1, 2, 3, 4, 5}
	ys := []float64{-3, -3, -3, -3, -3, -3}
	if _, err := FitCircle(xs, ys); !errors.Is(err, ErrFitFailed) {
		t.Errorf("collinear: err = %v, want ErrFitFailed", err)
	}
}

func TestCircleSample(t *testing.T) {
	c := Circle{CX: 0, CY: 20, R: 40}
	pts := c.Sample(50)
	if len(pts) != 50 {
		t.Fatalf("len = %d, want 50", len(pts))
	}
	if !near(pts[0].Y, 0, 1e-9) || !near(pts[49].Y, 0, 1e-9) {
		t.Errorf("ends at y = %.3f, %.3f, want 0", pts[0].Y, pts[49].Y)
	}
	if pts[0].X > pts[49].X {
		t.Errorf("sample should run left to right, got %.2f then %.2f", pts[0].X, pts[49].X)
	}
	for _, p := range pts {
		if p.Y > 1e-9 {
			t.Fatalf("point %v below baseline", p)
		}
	}

	if pts := (Circle{CY: 50, R: 40}).Sample(10); pts != nil {
		t.Errorf("circle below baseline sampled %d points", len(pts))
	}
}

// ellipseArc samples the part of an axis-aligned ellipse centered at (0, cy)
// that lies at or above y = 0.
func ellipseArc(a, b, cy float64) ([]float64, []float64) {
	var xs, ys []float64
	for i := 0; i < 720; i++ {
		t := 2 * math.Pi * float64(i) / 720
		x, y := a*math.Cos(t), cy+b*math.Sin(t)
		if y <= 0 {
			xs, ys = append(xs, x), append(ys, y)
		}
	}
	return xs, ys
}

func TestFitEllipse(t *testing.T) {
	const a, b, cy = 70.0, 50.0, 20.0
	xs, ys := ellipseArc(a, b, cy)

	sinT := -cy / b
	contact := a * math.Sqrt(1-sinT*sinT)
	e, err := FitEllipse(xs, ys, -contact, contact)
	if err != nil {
		t.Fatalf("FitEllipse: %v", err)
	}

	if !near(e.SemiMajor, a, 0.01*a) || !near(e.SemiMinor, b, 0.01*b) {
		t.Errorf("axes = %.2f, %.2f, want %v, %v", e.SemiMajor, e.SemiMinor, a, b)
	}
	if !near(e.CX, 0, 0.5) || !near(e.CY, cy, 0.5) {
		t.Errorf("center = (%.2f, %.2f), want (0, %v)", e.CX, e.CY, cy)
	}
	if !near(e.AxisRatio(), a/b, 0.02) {
		t.Errorf("AxisRatio = %.3f", e.AxisRatio())
	}
	if e.RSquared < 0.99 {
		t.Errorf("RSquared = %.4f", e.RSquared)
	}

	// Tangent at the contact is (-a·sin t, b·cos t).
	want := math.Atan2(b*math.Sqrt(1-sinT*sinT), -a*sinT) * 180 / math.Pi
	if !near(e.AngleLeftDeg, want, 1) || !near(e.AngleRightDeg, want, 1) {
		t.Errorf("angles = %.2f, %.2f, want %.2f", e.AngleLeftDeg, e.AngleRightDeg, want)
	}

	for _, p := range e.Sample(120) {
		if p.Y > 1e-9 {
			t.Fatalf("sampled point %v below baseline", p)
		}
	}
}

func TestFitEllipseMatchesCircle(t *testing.T) {
	xs, ys := capPoints(110, 50, 1)
	e, err := FitEllipse(xs, ys, -50, 50)
	if err != nil {
		t.Fatalf("FitEllipse: %v", err)
	}
	if !near(e.AngleDeg, 110, 1) {
		t.Errorf("AngleDeg = %.2f, want 110", e.AngleDeg)
	}
	if e.AxisRatio() > 1.02 {
		t.Errorf("AxisRatio = %.3f for a circle", e.AxisRatio())
	}
}

func TestFitEllipseErrors(t *testing.T) {
	if _, err := FitEllipse([]float64{0, 1, 2}, []float64{0, 1, 2}, 0, 2); !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("three points: err = %v", err)
	}

	xs := []float64{0, 1, 2, 3, 4, 5, 6, 7}
	ys := make([]float64, len(xs))
	if _, err := FitEllipse(xs, ys, 0, 7); !errors.Is(err, ErrFitFailed) {
		t.Errorf("collinear: err = %v, want ErrFitFailed", err)
	}
}

func TestFitPolynomialSymmetricCap(t *testing.T) {
	for _, angle := range []float64{45, 70, 100, 130} {
		xs, ys := capPoints(angle, 50, 0.5)
		p, err := FitPolynomial(xs, ys, -50, 50, DefaultPolynomialParams())
		if err != nil {
			t.Fatalf("angle %v: %v", angle, err)
		}
		if d := math.Abs(p.Left.AngleDeg - p.Right.AngleDeg); d > 2 {
			t.Errorf("angle %v: left %.2f right %.2f differ by %.2f", angle, p.Left.AngleDeg, p.Right.AngleDeg, d)
		}
		if !near(p.AngleDeg, angle, 5) {
			t.Errorf("angle %v: AngleDeg = %.2f", angle, p.AngleDeg)
		}
		if p.Support != p.Left.Points+p.Right.Points {
			t.Errorf("Support = %d", p.Support)
		}
	}
}

func TestFitPolynomialStraightFlank(t *testing.T) {
	var xs, ys []float64
	for h := 0.0; h <= 40; h += 0.25 {
		xs = append(xs, -50-2*h, 50+2*h)
		ys = append(ys, -h, -h)
	}

	p, err := FitPolynomial(xs, ys, -50, 50, DefaultPolynomialParams())
	if err != nil {
		t.Fatalf("FitPolynomial: %v", err)
	}
	want := 180 - math.Atan(0.5)*180/math.Pi
	if !near(p.Left.AngleDeg, want, 1) || !near(p.Right.AngleDeg, want, 1) {
		t.Errorf("angles = %.2f, %.2f, want %.2f", p.Left.AngleDeg, p.Right.AngleDeg, want)
	}
	if p.RSquared < 0.99 {
		t.Errorf("RSquared = %.4f", p.RSquared)
	}

	cp := p.Left.ContactPoint()
	if !near(cp.X, -50, 0.1) || !near(cp.Y, 0, 0.1) {
		t.Errorf("left contact point = %v", cp)
	}
	if pts := p.Left.Sample(10); len(pts) != 10 {
		t.Errorf("Sample len = %d", len(pts))
	}
}

func TestFitPolynomialIgnoresRoundedCorner(t *testing.T) {
	cot := 1 / math.Tan(60*math.Pi/180)
	var xs, ys []float64
	for h := 0.25; h <= 20; h += 0.25 {
		dx := h * cot
		if h < 1.5 {
			// Blurred corner: the outline bends out along the substrate.
			dx -= 3 * (1.5 - h)
		}
		xs = append(xs, -50+dx, 50-dx)
		ys = append(ys, -h, -h)
	}

	p, err := FitPolynomial(xs, ys, -50, 50, DefaultPolynomialParams())
	if err != nil {
		t.Fatalf("FitPolynomial: %v", err)
	}
	if !near(p.Left.AngleDeg, 60, 0.5) || !near(p.Right.AngleDeg, 60, 0.5) {
		t.Errorf("angles = %.2f, %.2f, want 60", p.Left.AngleDeg, p.Right.AngleDeg)
	}

	params := DefaultPolynomialParams()
	params.BaselineGap = 0
	if p, err := FitPolynomial(xs, ys, -50, 50, params); err == nil && near(p.Left.AngleDeg, 60, 0.5) {
		t.Errorf("corner points kept: angle %.2f should be pulled off 60", p.Left.AngleDeg)
	}
}

func TestFitPolynomialOneSided(t *testing.T) {
	var xs, ys []float64
	for h := 0.0; h <= 20; h++ {
		xs, ys = append(xs, -50+h*0.2), append(ys, -h)
	}
	_, err := FitPolynomial(xs, ys, -50, 50, DefaultPolynomialParams())
	if !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("err = %v, want ErrTooFewPoints", err)
	}
}

func TestIntegrateProfileSphere(t *testing.T) {
	xs, zs, phis := IntegrateProfile(0)
	if len(xs) < 100 {
		t.Fatalf("profile has %d points", len(xs))
	}
	for i := range xs {
		if phis[i] > 2.5 {
			break
		}
		if !near(xs[i], math.Sin(phis[i]), 1e-4) || !near(zs[i], 1-math.Cos(phis[i]), 1e-4) {
			t.Fatalf("point %d = (%.5f, %.5f) at phi %.4f is off the unit circle", i, xs[i], zs[i], phis[i])
		}
	}
	if last := phis[len(phis)-1]; last < 3 {
		t.Errorf("integration stopped early at phi %.3f", last)
	}
}

func TestIntegrateProfileBondFlattens(t *testing.T) {
	equator := func(bond float64) float64 {
		xs, _, phis := IntegrateProfile(bond)
		for i := range phis {
			if phis[i] >= math.Pi/2 {
				return xs[i]
			}
		}
		return math.NaN()
	}
	if r0, r1 := equator(0.01), equator(1); !(r1 < r0) {
		t.Errorf("equator radius %.3f at Bo=1 should be below %.3f at Bo=0.01", r1, r0)
	}
}

// forwardDrop renders a profile with apex radius b and Bond number bond, cut
// at tangent angle cutDeg, into baseline-frame points.
func forwardDrop(b, bond, cutDeg float64) (xs, ys []float64, contact, trueAngle float64) {
	px, pz, pphi := IntegrateProfile(bond)
	k := len(pphi) - 1
	for i := range pphi {
		if pphi[i] >= cutDeg*math.Pi/180 {
			k = i
			break
		}
	}
	zc := pz[k]
	for i := 0; i <= k; i++ {
		y := b * (pz[i] - zc)
		xs, ys = append(xs, -b*px[i], b*px[i]), append(ys, y, y)
	}
	return xs, ys, b * px[k], pphi[k] * 180 / math.Pi
}

func TestFitYoungLaplaceRecoversProfile(t *testing.T) {
	xs, ys, contact, trueAngle := forwardDrop(60, 0.5, 100)

	yl, err := FitYoungLaplace(context.Background(), xs, ys, -contact, contact, DefaultYoungLaplaceOptions())
	if err != nil {
		t.Fatalf("FitYoungLaplace: %v", err)
	}
	if yl.RSquared <= 0.75 {
		t.Errorf("RSquared = %.3f", yl.RSquared)
	}
	if yl.Residual >= 0.25 {
		t.Errorf("Residual = %.3f", yl.Residual)
	}
	if !near(yl.AngleDeg, trueAngle, 10) {
		t.Errorf("AngleDeg = %.2f, want about %.2f", yl.AngleDeg, trueAngle)
	}
	if yl.Bond <= 0 {
		t.Errorf("Bond = %v", yl.Bond)
	}
	if yl.BudgetExhausted {
		t.Error("default budget should not be exhausted")
	}
	if want := (12 + 2*8) * (8 + 2 + 20); yl.Evaluations != want {
		t.Errorf("Evaluations = %d, want %d", yl.Evaluations, want)
	}

	pts := yl.Sample(40)
	if len(pts) != 40 {
		t.Fatalf("Sample len = %d", len(pts))
	}
	if !near(pts[0].Y, 0, 1e-6) || !near(pts[0].X, -pts[39].X, 1e-6) {
		t.Errorf("sample ends %v, %v", pts[0], pts[39])
	}
}

func TestFitYoungLaplaceSphericalCap(t *testing.T) {
	for _, angle := range []float64{40, 60, 90, 120, 140} {
		t.Run(fmt.Sprintf("%.0f deg", angle), func(t *testing.T) {
			xs, ys := capPoints(angle, 60, 1)
			c, err := FitCircle(xs, ys)
			if err != nil {
				t.Fatalf("FitCircle: %v", err)
			}
			yl, err := FitYoungLaplace(context.Background(), xs, ys, -60, 60, DefaultYoungLaplaceOptions())
			if err != nil {
				t.Fatalf("FitYoungLaplace: %v", err)
			}
			if !near(yl.AngleDeg, c.AngleDeg, 1) {
				t.Errorf("AngleDeg = %.2f, circle reads %.2f", yl.AngleDeg, c.AngleDeg)
			}
			if yl.Residual > 0.005 {
				t.Errorf("Residual = %.4f", yl.Residual)
			}
			if !near(yl.ApexRadius, c.R, 0.05*c.R) {
				t.Errorf("ApexRadius = %.2f, circle radius %.2f", yl.ApexRadius, c.R)
			}
		})
	}
}

func TestFitYoungLaplaceBudget(t *testing.T) {
	xs, ys, contact, _ := forwardDrop(60, 0.5, 100)

	opts := DefaultYoungLaplaceOptions()
	opts.MaxEvaluations = 10
	yl, err := FitYoungLaplace(context.Background(), xs, ys, -contact, contact, opts)
	if err != nil {
		t.Fatalf("FitYoungLaplace: %v", err)
	}
	if !yl.BudgetExhausted || yl.Evaluations != 10 {
		t.Errorf("BudgetExhausted = %v, Evaluations = %d", yl.BudgetExhausted, yl.Evaluations)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := FitYoungLaplace(ctx, xs, ys, -contact, contact, DefaultYoungLaplaceOptions()); !errors.Is(err, ErrFitFailed) {
		t.Errorf("canceled: err = %v, want ErrFitFailed", err)
	}
}
