package measure

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	. "github.com/smartystreets/goconvey/convey"
)

// noisyCap samples a spherical cap in the baseline frame and jitters each
// point radially by up to amplitude pixels.
func noisyCap(angleDeg, baseRadius, amplitude float64, seed int64) BootstrapInput {
	rng := rand.New(rand.NewSource(seed))
	theta := angleDeg * math.Pi / 180
	r := baseRadius / math.Sin(theta)
	cy := r * math.Cos(theta)
	n := int(2 * theta * r)

	in := BootstrapInput{LeftX: -baseRadius, RightX: baseRadius}
	for i := 0; i <= n; i++ {
		psi := -theta + 2*theta*float64(i)/float64(n)
		rr := r + amplitude*(2*rng.Float64()-1)
		y := cy - rr*math.Cos(psi)
		if y >= -0.5 {
			continue
		}
		in.Xs = append(in.Xs, rr*math.Sin(psi))
		in.Ys = append(in.Ys, y)
	}
	return in
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	gate := DefaultGateParams()

	Convey("Given a noisy 90 degree cap", t, func() {
		in := noisyCap(90, 60, 0.6, 3)
		params := DefaultUncertaintyParams()
		params.Samples = 40

		Convey("Then the estimate is deterministic across worker counts", func() {
			params.Workers = 1
			a, keptA, err := Bootstrap(ctx, in, gate, params)
			So(err, ShouldBeNil)
			params.Workers = 8
			b, keptB, err := Bootstrap(ctx, in, gate, params)
			So(err, ShouldBeNil)
			So(a, ShouldEqual, b)
			So(keptA, ShouldEqual, keptB)
		})

		Convey("Then most resamples are kept and the spread is small", func() {
			width, kept, err := Bootstrap(ctx, in, gate, params)
			So(err, ShouldBeNil)
			So(kept, ShouldBeGreaterThanOrEqualTo, params.MinKept)
			So(width, ShouldBeGreaterThanOrEqualTo, 0)
			So(width, ShouldBeLessThan, 3)
		})

		Convey("When the context is canceled", func() {
			canceled, cancel := context.WithCancel(ctx)
			cancel()
			_, _, err := Bootstrap(canceled, in, gate, params)

			Convey("Then the context error is returned", func() {
				So(err, ShouldEqual, context.Canceled)
			})
		})

		Convey("When too few resamples may pass", func() {
			params.MinKept = params.Samples + 1
			width, _, err := Bootstrap(ctx, in, gate, params)

			Convey("Then the estimate is zero", func() {
				So(err, ShouldBeNil)
				So(width, ShouldEqual, 0)
			})
		})
	})

	Convey("Given no samples requested", t, func() {
		params := DefaultUncertaintyParams()
		params.Samples = 0
		width, kept, err := Bootstrap(ctx, noisyCap(90, 60, 0, 1), gate, params)
		So(err, ShouldBeNil)
		So(width, ShouldEqual, 0)
		So(kept, ShouldEqual, 0)
	})
}

func TestMethodDisagreement(t *testing.T) {
	Convey("Given method angles", t, func() {
		Convey("Then a single angle has no disagreement", func() {
			So(MethodDisagreement([]float64{80}), ShouldEqual, 0)
		})

		Convey("Then the scaled MAD is used", func() {
			// median 83, deviations {3, 1, 1, 7}, MAD 2
			So(MethodDisagreement([]float64{80, 82, 84, 90}), ShouldAlmostEqual, 2*madScale, 1e-9)
		})

		Convey("Then a zero MAD falls back to the standard deviation", func() {
			angles := []float64{80, 80, 80, 86}
			So(MethodDisagreement(angles), ShouldAlmostEqual, 3, 1e-9)
		})
	})
}

func TestEdgeSpread(t *testing.T) {
	params := DefaultUncertaintyParams()

	Convey("Given straight flanks at both contacts", t, func() {
		var pts []imaging.Point
		for y := -7.0; y <= 0; y++ {
			pts = append(pts, imaging.Point{X: -50, Y: y}, imaging.Point{X: 50, Y: y})
		}

		Convey("Then the spread sits at the floor", func() {
			So(EdgeSpread(pts, -50, 50, 50, params), ShouldEqual, params.EdgeMinDeg)
		})
	})

	Convey("Given ragged flanks", t, func() {
		var pts []imaging.Point
		for i, y := 0, -7.0; y <= 0; i, y = i+1, y+1 {
			off := 3.0
			if i%2 == 0 {
				off = -3
			}
			pts = append(pts, imaging.Point{X: -50 + off, Y: y}, imaging.Point{X: 50 + off, Y: y})
		}

		Convey("Then the spread is capped", func() {
			So(EdgeSpread(pts, -50, 50, 20, params), ShouldEqual, params.EdgeMaxDeg)
		})
	})

	Convey("Given no points near the contacts", t, func() {
		So(EdgeSpread(nil, -50, 50, 50, params), ShouldEqual, params.EdgeMinDeg)
	})
}

func TestCombineUncertainty(t *testing.T) {
	params := DefaultUncertaintyParams()

	Convey("Given component uncertainties", t, func() {
		Convey("Then they add in quadrature", func() {
			u := combine(Uncertainty{Bootstrap: 3, MethodDisagreement: 4}, params)
			So(u.Combined, ShouldAlmostEqual, 5, 1e-9)
		})

		Convey("Then the result never exceeds the quadrature sum except at the floor", func() {
			for _, u := range []Uncertainty{
				{Bootstrap: 0.05, Edge: 0.12},
				{Bootstrap: 1, MethodDisagreement: 0.5, Edge: 0.3},
				{Bootstrap: 30, MethodDisagreement: 10},
			} {
				got := combine(u, params).Combined
				q := math.Sqrt(u.Bootstrap*u.Bootstrap + u.MethodDisagreement*u.MethodDisagreement + u.Edge*u.Edge)
				So(got, ShouldBeLessThanOrEqualTo, math.Max(q, params.CombinedMin)+1e-12)
				So(got, ShouldBeBetweenOrEqual, params.CombinedMin, params.CombinedMax)
			}
		})
	})
}

func TestComputePhysical(t *testing.T) {
	params := DefaultPhysicalParams()

	Convey("Given a calibrated hemisphere of 100 px radius at 10 µm per pixel", t, func() {
		cal := &Calibration{MetersPerPixel: 1e-5, RelativeUncertainty: 0.02, Source: "scale_bar"}
		p := ComputePhysical(cal, 100, 200, 100, params)

		Convey("Then the dimensions are in millimeters", func() {
			So(p.IsCalibrated, ShouldBeTrue)
			So(p.CalibrationSource, ShouldEqual, "scale_bar")
			So(p.PixelSizeMicrons, ShouldAlmostEqual, 10, 1e-9)
			So(p.DropRadiusMM, ShouldAlmostEqual, 1, 1e-9)
			So(p.BaseDiameterMM, ShouldAlmostEqual, 2, 1e-9)
			So(p.HeightMM, ShouldAlmostEqual, 1, 1e-9)
		})

		Convey("Then the volume is that of a hemisphere", func() {
			So(p.VolumeMicroliters, ShouldAlmostEqual, 2*math.Pi/3, 1e-6)
		})

		Convey("Then the Bond number carries twice the relative scale error", func() {
			So(p.BondNumber, ShouldAlmostEqual, 997*StandardGravity*1e-6/0.0728, 1e-9)
			So(p.BondNumberUncertainty, ShouldNotBeNil)
			So(*p.BondNumberUncertainty, ShouldAlmostEqual, 0.04*p.BondNumber, 1e-12)
		})
	})

	Convey("Given no calibration", t, func() {
		p := ComputePhysical(nil, 100, 200, 100, params)

		Convey("Then the fallback scale is used without an uncertainty", func() {
			So(p.IsCalibrated, ShouldBeFalse)
			So(p.PixelSizeMicrons, ShouldAlmostEqual, params.DefaultMetersPerPixel*1e6, 1e-9)
			So(p.BondNumberUncertainty, ShouldBeNil)
		})
	})
}
