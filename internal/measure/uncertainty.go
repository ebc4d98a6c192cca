package measure

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/ironsheep/contact-angle-mcp/internal/fitting"
	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// madScale turns a median absolute deviation into a normal-consistent sigma.
const madScale = 1.4826

// UncertaintyParams bounds the three error sources.
type UncertaintyParams struct {
	Samples int
	Workers int
	Seed    int64

	// MinKept successful resamples are needed for a bootstrap estimate.
	MinKept int

	// Ellipse refits run on resamples of at least EllipseMinPoints.
	EllipseMinPoints int

	// Edge patch: points within EdgeRadius of a contact.
	EdgeRadius  float64
	EdgeMinDeg  float64
	EdgeMaxDeg  float64
	CombinedMin float64
	CombinedMax float64
}

// DefaultUncertaintyParams returns the standard settings.
func DefaultUncertaintyParams() UncertaintyParams {
	return UncertaintyParams{
		Samples:          100,
		Workers:          4,
		Seed:             7,
		MinKept:          12,
		EllipseMinPoints: 12,
		EdgeRadius:       8,
		EdgeMinDeg:       0.12,
		EdgeMaxDeg:       1.5,
		CombinedMin:      0.25,
		CombinedMax:      20,
	}
}

// Uncertainty is the angle uncertainty in degrees.
type Uncertainty struct {
	Combined           float64 `json:"combined"`
	Bootstrap          float64 `json:"bootstrap"`
	MethodDisagreement float64 `json:"method_disagreement"`
	Edge               float64 `json:"edge"`

	// BootstrapKept is the number of resamples that passed the gates.
	BootstrapKept int `json:"bootstrap_kept"`
}

// combine adds the sources in quadrature and clamps to the display range.
func combine(u Uncertainty, params UncertaintyParams) Uncertainty {
	q := math.Sqrt(u.Bootstrap*u.Bootstrap + u.MethodDisagreement*u.MethodDisagreement + u.Edge*u.Edge)
	u.Combined = clampFloat(q, params.CombinedMin, params.CombinedMax)
	return u
}

// BootstrapInput is the frozen point set shared read-only by resamples.
type BootstrapInput struct {
	Xs, Ys        []float64
	LeftX, RightX float64
}

// Bootstrap resamples the fit points with replacement, refits circle and
// ellipse on each sample and returns half the central 95% interval of the
// per-sample mean angle.
//
// Sample i draws from its own generator seeded with Seed+i, so the result
// depends only on the seed, not on scheduling. Returns 0 when fewer than
// MinKept samples passed the gates.
func Bootstrap(ctx context.Context, in BootstrapInput, gate GateParams, params UncertaintyParams) (float64, int, error) {
	if params.Samples <= 0 || len(in.Xs) == 0 {
		return 0, 0, nil
	}

	angles := make([]float64, params.Samples)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, params.Workers))
	for i := 0; i < params.Samples; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			angles[i] = resampleAngle(in, rand.New(rand.NewSource(params.Seed+int64(i))), gate, params)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}

	kept := angles[:0]
	for _, a := range angles {
		if !math.IsNaN(a) {
			kept = append(kept, a)
		}
	}
	if len(kept) < params.MinKept {
		return 0, len(kept), nil
	}
	sort.Float64s(kept)
	hi := stat.Quantile(0.975, stat.Empirical, kept, nil)
	lo := stat.Quantile(0.025, stat.Empirical, kept, nil)
	return (hi - lo) / 2, len(kept), nil
}

// resampleAngle returns the mean gated angle of one resample, or NaN.
func resampleAngle(in BootstrapInput, rng *rand.Rand, gate GateParams, params UncertaintyParams) float64 {
	n := len(in.Xs)
	xs := make([]float64, n)
	ys := make([]float64, n)
	for j := range xs {
		k := rng.Intn(n)
		xs[j], ys[j] = in.Xs[k], in.Ys[k]
	}

	var sum float64
	var count int
	if c, err := fitting.FitCircle(xs, ys); err == nil &&
		c.RSquared >= gate.CircleMinRSquared && angleInRange(c.AngleDeg, gate) {
		sum += c.AngleDeg
		count++
	}
	if n >= params.EllipseMinPoints {
		if e, err := fitting.FitEllipse(xs, ys, in.LeftX, in.RightX); err == nil &&
			e.RSquared >= gate.EllipseMinRSquared && e.AxisRatio() <= gate.EllipseMaxRatio &&
			angleInRange(e.AngleDeg, gate) {
			sum += e.AngleDeg
			count++
		}
	}
	if count == 0 {
		return math.NaN()
	}
	return sum / float64(count)
}

// MethodDisagreement is the MAD-based spread of valid angles. With a zero MAD
// and at least two angles it falls back to the sample standard deviation.
func MethodDisagreement(angles []float64) float64 {
	if len(angles) < 2 {
		return 0
	}
	med := median(angles)
	dev := make([]float64, len(angles))
	for i, a := range angles {
		dev[i] = math.Abs(a - med)
	}
	if mad := median(dev) * madScale; mad > 1e-9 {
		return mad
	}
	return stat.StdDev(angles, nil)
}

// EdgeSpread converts the scatter of contour points around each contact into
// an angle. Points within EdgeRadius of a contact on the baseline are fitted
// with a line along their longer extent; the pooled RMS residual in pixels,
// over dropRadius, gives the angle, clamped to [EdgeMinDeg, EdgeMaxDeg].
func EdgeSpread(points []imaging.Point, leftX, rightX, dropRadius float64, params UncertaintyParams) float64 {
	var sumSq float64
	var n int
	for _, cx := range []float64{leftX, rightX} {
		var xs, ys []float64
		for _, p := range points {
			if math.Hypot(p.X-cx, p.Y) <= params.EdgeRadius {
				xs, ys = append(xs, p.X), append(ys, p.Y)
			}
		}
		if len(xs) < 3 {
			continue
		}
		s, k := lineResiduals(xs, ys)
		sumSq += s
		n += k
	}
	if n == 0 || dropRadius <= 0 {
		return params.EdgeMinDeg
	}
	spread := math.Sqrt(sumSq / float64(n))
	deg := math.Atan(spread/dropRadius) * 180 / math.Pi
	return clampFloat(deg, params.EdgeMinDeg, params.EdgeMaxDeg)
}

// lineResiduals fits the dependent coordinate against the one with the larger
// spread and returns the summed squared residual and the point count.
func lineResiduals(xs, ys []float64) (float64, int) {
	ind, dep := xs, ys
	if stat.Variance(ys, nil) > stat.Variance(xs, nil) {
		ind, dep = ys, xs
	}
	alpha, beta := stat.LinearRegression(ind, dep, nil, false)
	var s float64
	for i := range ind {
		r := dep[i] - (alpha + beta*ind[i])
		s += r * r
	}
	return s, len(ind)
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
