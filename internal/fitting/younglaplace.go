package fitting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"gonum.org/v1/gonum/floats"
)

const (
	profileStep   = 0.01
	profileMaxArc = 8.0

	// apexEpsilon is the radius below which sinφ/x takes its apex limit.
	apexEpsilon = 1e-9
)

// YoungLaplaceOptions bounds the search.
type YoungLaplaceOptions struct {
	MaxEvaluations int
	Budget         time.Duration

	// Bond numbers are searched on a geometric grid of CoarseSteps over
	// [MinBond, MaxBond], then RefinePass grids of RefineSteps around the
	// running best.
	CoarseSteps int
	RefineSteps int
	RefinePass  int
	MinBond     float64
	MaxBond     float64

	// For each Bond number the apex radius is scanned at ScaleSteps points
	// over [MinScale, MaxScale] times the circle radius of the points, then
	// narrowed by GoldenIters golden-section steps.
	ScaleSteps  int
	GoldenIters int
	MinScale    float64
	MaxScale    float64
}

// DefaultYoungLaplaceOptions returns the default search and budget.
func DefaultYoungLaplaceOptions() YoungLaplaceOptions {
	return YoungLaplaceOptions{
		MaxEvaluations: 1200,
		Budget:         1500 * time.Millisecond,
		CoarseSteps:    12,
		RefineSteps:    8,
		RefinePass:     2,
		MinBond:        0.001,
		MaxBond:        3,
		ScaleSteps:     8,
		GoldenIters:    20,
		MinScale:       0.5,
		MaxScale:       2,
	}
}

// YoungLaplace is the best axisymmetric profile found.
type YoungLaplace struct {
	ApexRadius float64 `json:"apex_radius"`
	Bond       float64 `json:"bond"`
	AxisX      float64 `json:"axis_x"`
	ApexY      float64 `json:"apex_y"`

	// Residual is the RMS horizontal deviation in units of ApexRadius.
	Residual float64 `json:"residual"`
	RSquared float64 `json:"r_squared"`
	AngleDeg float64 `json:"angle_deg"`
	Points   int     `json:"points"`

	Evaluations     int  `json:"evaluations"`
	BudgetExhausted bool `json:"budget_exhausted"`

	profile profile
}

// profile is a dimensionless meridian from the apex. z increases
// monotonically while φ < π.
type profile struct {
	x, z, phi []float64
}

// IntegrateProfile integrates the dimensionless sessile-drop equations
//
//	dx/ds = cosφ, dz/ds = sinφ, dφ/ds = 2 + Bo·z − sinφ/x
//
// from the apex with RK4 until φ reaches π or the arc length limit. Lengths
// are in units of the apex radius and z is depth below the apex.
func IntegrateProfile(bond float64) (xs, zs, phis []float64) {
	p := integrate(bond)
	return p.x, p.z, p.phi
}

func integrate(bond float64) profile {
	deriv := func(x, z, phi float64) (float64, float64, float64) {
		term := math.Cos(phi)
		if x > apexEpsilon {
			term = math.Sin(phi) / x
		}
		return math.Cos(phi), math.Sin(phi), 2 + bond*z - term
	}

	steps := int(profileMaxArc / profileStep)
	p := profile{
		x:   make([]float64, 0, steps+1),
		z:   make([]float64, 0, steps+1),
		phi: make([]float64, 0, steps+1),
	}
	x, z, phi := 0.0, 0.0, 0.0
	p.x, p.z, p.phi = append(p.x, x), append(p.z, z), append(p.phi, phi)

	h := profileStep
	for i := 0; i < steps; i++ {
		k1x, k1z, k1p := deriv(x, z, phi)
		k2x, k2z, k2p := deriv(x+h/2*k1x, z+h/2*k1z, phi+h/2*k1p)
		k3x, k3z, k3p := deriv(x+h/2*k2x, z+h/2*k2z, phi+h/2*k2p)
		k4x, k4z, k4p := deriv(x+h*k3x, z+h*k3z, phi+h*k3p)
		x += h / 6 * (k1x + 2*k2x + 2*k3x + k4x)
		z += h / 6 * (k1z + 2*k2z + 2*k3z + k4z)
		phi += h / 6 * (k1p + 2*k2p + 2*k3p + k4p)
		if !finite(x, z, phi) || x < 0 {
			break
		}
		p.x, p.z, p.phi = append(p.x, x), append(p.z, z), append(p.phi, phi)
		if phi >= math.Pi {
			break
		}
	}
	return p
}

// radiusAt interpolates the profile radius at depth z. Depths past either
// end clamp to the end points.
func (p profile) radiusAt(z float64) float64 {
	n := len(p.z)
	i := sort.SearchFloat64s(p.z, z)
	switch {
	case i == 0:
		return p.x[0]
	case i >= n:
		return p.x[n-1]
	}
	dz := p.z[i] - p.z[i-1]
	if dz <= 0 {
		return p.x[i]
	}
	f := (z - p.z[i-1]) / dz
	return p.x[i-1] + f*(p.x[i]-p.x[i-1])
}

// angleAt returns the tangent angle in degrees at depth z from the local
// finite-difference slope.
func (p profile) angleAt(z float64) float64 {
	n := len(p.z)
	if n < 2 {
		return 90
	}
	i := sort.SearchFloat64s(p.z, z)
	i = max(1, min(i, n-1))
	deg := math.Atan2(p.z[i]-p.z[i-1], p.x[i]-p.x[i-1]) * 180 / math.Pi
	return clampFloat(deg, 0, 180)
}

// ylData is the experimental outline relative to the drop axis and apex.
type ylData struct {
	radial []float64 // |x - axis| in pixels
	depth  []float64 // y - apexY in pixels
	height float64
}

type candidate struct {
	b, bond, rms float64
}

// FitYoungLaplace fits an axisymmetric sessile profile to the outline points
// by searching over Bond number and apex radius.
//
// # Search
//
// The apex radius starts from the circle fit of the points. Bond numbers
// follow a coarse geometric grid of CoarseSteps, then RefinePass grids of
// RefineSteps centered on the running best, each one coarse step wide. For
// every Bond number the profile is integrated once and the apex radius that
// minimizes the RMS deviation is found by a ScaleSteps scan and a
// golden-section search.
//
// The search stops early when MaxEvaluations, the Budget deadline or ctx is
// reached, and the best candidate so far is returned with BudgetExhausted
// set. It fails only when no candidate was evaluated.
func FitYoungLaplace(ctx context.Context, xs, ys []float64, leftX, rightX float64, opts YoungLaplaceOptions) (YoungLaplace, error) {
	if err := checkInput(xs, ys, 6); err != nil {
		return YoungLaplace{}, err
	}

	axis := (leftX + rightX) / 2
	apexY := floats.Min(ys)
	data := ylData{
		radial: make([]float64, len(xs)),
		depth:  make([]float64, len(xs)),
		height: -apexY,
	}
	for i := range xs {
		data.radial[i] = math.Abs(xs[i] - axis)
		data.depth[i] = ys[i] - apexY
	}
	if data.height <= 0 {
		return YoungLaplace{}, fmt.Errorf("%w: no points above the baseline", ErrFitFailed)
	}

	b0 := (rightX - leftX) / 2
	if c, err := FitCircle(xs, ys); err == nil {
		b0 = c.R
	}
	if b0 <= 0 || !finite(b0) {
		return YoungLaplace{}, fmt.Errorf("%w: no starting apex radius", ErrFitFailed)
	}

	s := newSearch(ctx, data, opts)

	bLo, bHi := opts.MinScale*b0, opts.MaxScale*b0
	lLo, lHi := math.Log(opts.MinBond), math.Log(opts.MaxBond)
	steps := opts.CoarseSteps
	s.bonds(lLo, lHi, steps, bLo, bHi)

	for pass := 0; pass < opts.RefinePass && !s.exhausted; pass++ {
		dl := (lHi - lLo) / float64(steps-1)
		lb := math.Log(s.best.bond)
		lLo, lHi = lb-dl, lb+dl
		steps = opts.RefineSteps
		s.bonds(lLo, lHi, steps, bLo, bHi)
	}

	if s.evaluations == 0 || math.IsInf(s.best.rms, 1) {
		return YoungLaplace{}, fmt.Errorf("%w: search budget exhausted before any evaluation", ErrFitFailed)
	}

	yl := YoungLaplace{
		ApexRadius:      s.best.b,
		Bond:            s.best.bond,
		AxisX:           axis,
		ApexY:           apexY,
		Residual:        s.best.rms / s.best.b,
		Points:          len(xs),
		Evaluations:     s.evaluations,
		BudgetExhausted: s.exhausted,
		profile:         s.profile(s.best.bond),
	}
	yl.RSquared = yl.profile.rSquared(data, yl.ApexRadius)
	yl.AngleDeg = yl.profile.angleAt(data.height / yl.ApexRadius)
	if !finite(yl.Residual, yl.RSquared, yl.AngleDeg) {
		return YoungLaplace{}, fmt.Errorf("%w: %w", ErrFitFailed, ErrNonFinite)
	}
	return yl, nil
}

// search carries the running best and the budget across Bond numbers.
type search struct {
	ctx      context.Context
	data     ylData
	opts     YoungLaplaceOptions
	deadline time.Time
	cache    map[float64]profile

	best        candidate
	evaluations int
	exhausted   bool
}

func newSearch(ctx context.Context, data ylData, opts YoungLaplaceOptions) *search {
	s := &search{
		ctx:   ctx,
		data:  data,
		opts:  opts,
		cache: make(map[float64]profile),
		best:  candidate{rms: math.Inf(1)},
	}
	if opts.Budget > 0 {
		s.deadline = time.Now().Add(opts.Budget)
	}
	return s
}

func (s *search) profile(bond float64) profile {
	p, ok := s.cache[bond]
	if !ok {
		p = integrate(bond)
		s.cache[bond] = p
	}
	return p
}

func (s *search) spent() bool {
	if s.opts.MaxEvaluations > 0 && s.evaluations >= s.opts.MaxEvaluations {
		return true
	}
	if !s.deadline.IsZero() && time.Now().After(s.deadline) {
		return true
	}
	return s.ctx.Err() != nil
}

// goldenRatio is 1/φ, the golden-section shrink factor.
const goldenRatio = 0.6180339887498949

// bonds visits steps Bond numbers, log-linear over [lLo, lHi], and fits the
// apex radius within [bLo, bHi] for each.
func (s *search) bonds(lLo, lHi float64, steps int, bLo, bHi float64) {
	for j := 0; j < steps && !s.exhausted; j++ {
		bond := math.Exp(lLo + (lHi-lLo)*float64(j)/float64(max(steps-1, 1)))
		s.scale(bond, bLo, bHi)
	}
}

// scale minimizes the RMS deviation over apex radius for one Bond number.
// The scan brackets the minimum between the neighbors of its best node and
// golden-section search narrows the bracket.
func (s *search) scale(bond, bLo, bHi float64) {
	p := s.profile(bond)
	n := max(s.opts.ScaleSteps, 3)
	at := func(i int) float64 { return bLo + (bHi-bLo)*float64(i)/float64(n-1) }

	bestI, bestR := -1, math.Inf(1)
	for i := 0; i < n; i++ {
		r, ok := s.eval(p, bond, at(i))
		if !ok {
			return
		}
		if r < bestR {
			bestI, bestR = i, r
		}
	}
	if bestI < 0 {
		return
	}

	a, c := at(max(bestI-1, 0)), at(min(bestI+1, n-1))
	x1, x2 := c-goldenRatio*(c-a), a+goldenRatio*(c-a)
	f1, ok := s.eval(p, bond, x1)
	if !ok {
		return
	}
	f2, ok := s.eval(p, bond, x2)
	if !ok {
		return
	}
	for k := 0; k < s.opts.GoldenIters; k++ {
		if f1 < f2 {
			c, x2, f2 = x2, x1, f1
			x1 = c - goldenRatio*(c-a)
			if f1, ok = s.eval(p, bond, x1); !ok {
				return
			}
		} else {
			a, x1, f1 = x1, x2, f2
			x2 = a + goldenRatio*(c-a)
			if f2, ok = s.eval(p, bond, x2); !ok {
				return
			}
		}
	}
}

// eval scores one candidate and keeps it when it beats the running best. It
// reports false once the budget is spent.
func (s *search) eval(p profile, bond, b float64) (float64, bool) {
	if s.spent() {
		s.exhausted = true
		return 0, false
	}
	s.evaluations++
	r := p.rms(s.data, b)
	if r < s.best.rms {
		s.best = candidate{b: b, bond: bond, rms: r}
	}
	return r, true
}

// rms returns the RMS horizontal deviation in pixels between the outline and
// the profile scaled by apex radius b.
func (p profile) rms(d ylData, b float64) float64 {
	if b <= 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range d.radial {
		dev := d.radial[i] - b*p.radiusAt(d.depth[i]/b)
		sum += dev * dev
	}
	return math.Sqrt(sum / float64(len(d.radial)))
}

// rSquared is 1 - SSres/SStot over horizontal deviations in units of b,
// clamped to [0, 1].
func (p profile) rSquared(d ylData, b float64) float64 {
	n := float64(len(d.radial))
	var mean float64
	for _, r := range d.radial {
		mean += r / b
	}
	mean /= n

	var ssRes, ssTot float64
	for i, r := range d.radial {
		dev := r/b - p.radiusAt(d.depth[i]/b)
		ssRes += dev * dev
		t := r/b - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		return 0
	}
	return clampFloat(1-ssRes/ssTot, 0, 1)
}

// Sample returns n points of the mirrored profile in the baseline frame from
// the left contact over the apex to the right contact.
func (yl YoungLaplace) Sample(n int) []imaging.Point {
	p := yl.profile
	if n < 4 || len(p.z) < 2 || yl.ApexRadius <= 0 {
		return nil
	}
	zc := -yl.ApexY / yl.ApexRadius
	half := n / 2
	pts := make([]imaging.Point, 0, 2*half)
	for i := half - 1; i >= 0; i-- {
		z := zc * float64(i) / float64(half-1)
		pts = append(pts, imaging.Point{X: yl.AxisX - yl.ApexRadius*p.radiusAt(z), Y: yl.ApexY + yl.ApexRadius*z})
	}
	for i := 0; i < half; i++ {
		z := zc * float64(i) / float64(half-1)
		pts = append(pts, imaging.Point{X: yl.AxisX + yl.ApexRadius*p.radiusAt(z), Y: yl.ApexY + yl.ApexRadius*z})
	}
	return pts
}
