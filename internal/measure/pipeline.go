package measure

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ironsheep/contact-angle-mcp/internal/detection"
	"github.com/ironsheep/contact-angle-mcp/internal/fitting"
	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"github.com/ironsheep/contact-angle-mcp/pkg/logger"
	"github.com/ironsheep/contact-angle-mcp/pkg/metrics"
	"gonum.org/v1/gonum/floats"
)

// Stage labels used for timing metrics and debug logs.
const (
	stageNormalize   = "normalize"
	stageEdges       = "edges"
	stageComponents  = "components"
	stageBaseline    = "baseline"
	stageIsolation   = "isolation"
	stageContacts    = "contacts"
	stageFits        = "fits"
	stageEnsemble    = "ensemble"
	stageUncertainty = "uncertainty"
)

// Input is one image to measure.
type Input struct {
	Grid        *imaging.IntensityGrid
	Calibration *Calibration
}

// BaselineSummary describes the substrate line.
type BaselineSummary struct {
	TiltDeg   float64 `json:"tilt_deg"`
	RMS       float64 `json:"rms"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	Inliers   int     `json:"inliers"`
	Fallback  bool    `json:"fallback"`
}

// ContourSummary describes the geometry extraction stages.
type ContourSummary struct {
	Inverted            bool `json:"inverted"`
	EdgePoints          int  `json:"edge_points"`
	EdgeFallback        bool `json:"edge_fallback"`
	SuppressedPoints    int  `json:"suppressed_points"`
	ComponentPoints     int  `json:"component_points"`
	ComponentCandidates int  `json:"component_candidates"`
	ComponentFallback   bool `json:"component_fallback"`

	IsolatedPoints    int  `json:"isolated_points,omitempty"`
	IsolationFallback bool `json:"isolation_fallback,omitempty"`
	ContactFallback   bool `json:"contact_fallback,omitempty"`

	// Contacts are in the baseline frame.
	LeftX        float64 `json:"left_x,omitempty"`
	RightX       float64 `json:"right_x,omitempty"`
	BaseWidthPx  float64 `json:"base_width_px,omitempty"`
	DropHeightPx float64 `json:"drop_height_px,omitempty"`
}

// Result is a completed measurement.
type Result struct {
	RunID string `json:"run_id"`

	AngleDeg      float64 `json:"angle_deg"`
	AngleLeftDeg  float64 `json:"angle_left_deg"`
	AngleRightDeg float64 `json:"angle_right_deg"`
	HysteresisDeg float64 `json:"hysteresis_deg"`

	Uncertainty  Uncertainty                     `json:"uncertainty"`
	PerMethod    map[fitting.Method]MethodResult `json:"per_method"`
	ValidMethods int                             `json:"valid_methods"`
	Ensemble     Ensemble                        `json:"ensemble"`

	Baseline BaselineSummary `json:"baseline"`
	Contour  ContourSummary  `json:"contour"`
	Physical Physical        `json:"physical"`
	Overlay  Overlay         `json:"overlay_geometry"`

	ElapsedMS float64 `json:"elapsed_ms"`
}

// Trace is the front half of the pipeline: edges, component and baseline.
type Trace struct {
	Grid     *imaging.IntensityGrid
	Edges    imaging.EdgeResult
	Kept     []imaging.Point
	Selected detection.Selection
	Line     detection.Baseline
	Frame    detection.Frame

	// Aligned is the selected component in the baseline frame.
	Aligned []imaging.Point

	Contour  ContourSummary
	Baseline BaselineSummary
}

// run carries per-measurement logging and metrics.
type run struct {
	ctx     context.Context
	id      string
	log     logger.Logger
	metrics *metrics.Manager
}

func newRun(ctx context.Context, opts Options) *run {
	return &run{ctx: ctx, id: uuid.NewString(), log: opts.logger(), metrics: opts.metrics()}
}

func (r *run) stage(name string, started time.Time, fields ...logger.Field) {
	elapsed := time.Since(started)
	r.metrics.RecordStageDuration(name, elapsed.Seconds())
	fields = append([]logger.Field{
		logger.String("run_id", r.id),
		logger.String("stage", name),
		logger.Float64("elapsed_ms", float64(elapsed.Microseconds())/1000),
	}, fields...)
	r.log.Debug(r.ctx, "stage complete", fields...)
}

func (r *run) abort(f *Failure) error {
	r.metrics.RecordAbort(string(f.Stage))
	fields := []logger.Field{
		logger.String("run_id", r.id),
		logger.String("stage", string(f.Stage)),
		logger.String("reason", f.Reason),
	}
	if f.Err != nil {
		fields = append(fields, logger.Error(f.Err))
	}
	r.log.Warn(r.ctx, "measurement aborted", fields...)
	return f
}

// TraceContour runs normalization, edge detection, border suppression,
// component selection, baseline estimation and the frame transform.
//
// Returns a *Failure for an unusable grid or too few contour points, or the
// context error when ctx is done.
func TraceContour(ctx context.Context, grid *imaging.IntensityGrid, opts Options) (*Trace, error) {
	return traceContour(newRun(ctx, opts), grid, opts)
}

func traceContour(r *run, grid *imaging.IntensityGrid, opts Options) (*Trace, error) {
	if grid == nil {
		return nil, r.abort(fail(StageDecode, imaging.ErrInvalidGrid))
	}
	if err := grid.Validate(); err != nil {
		return nil, r.abort(fail(StageDecode, err))
	}

	t := &Trace{}
	started := time.Now()
	var inverted bool
	t.Grid, inverted = imaging.Normalize(grid)
	t.Contour.Inverted = inverted
	r.stage(stageNormalize, started, logger.Bool("inverted", inverted))

	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	started = time.Now()
	t.Edges = imaging.DetectSubPixelEdges(t.Grid, opts.Edge)
	t.Kept = imaging.SuppressBorder(t.Edges.Points, t.Grid.Width, t.Grid.Height, opts.BorderMargin)
	t.Contour.EdgePoints = len(t.Edges.Points)
	t.Contour.EdgeFallback = t.Edges.Fallback
	t.Contour.SuppressedPoints = len(t.Edges.Points) - len(t.Kept)
	r.stage(stageEdges, started,
		logger.Int("points", len(t.Edges.Points)),
		logger.Int("kept", len(t.Kept)),
		logger.Bool("fallback", t.Edges.Fallback))

	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	started = time.Now()
	sel, err := detection.SelectComponent(t.Kept, t.Grid.Width, t.Grid.Height, opts.Component)
	if err != nil {
		return nil, r.abort(fail(StageContour, err))
	}
	t.Selected = sel
	t.Contour.ComponentPoints = len(sel.Component.Points)
	t.Contour.ComponentCandidates = sel.Candidates
	t.Contour.ComponentFallback = sel.Fallback
	r.stage(stageComponents, started,
		logger.Int("points", len(sel.Component.Points)),
		logger.Int("candidates", sel.Candidates),
		logger.Float64("score", sel.Component.Score))
	if n := len(sel.Component.Points); n < opts.MinContourPoints {
		return nil, r.abort(fail(StageContour, fmt.Errorf("%d component points, need %d", n, opts.MinContourPoints)))
	}

	started = time.Now()
	rng := rand.New(rand.NewSource(opts.Uncertainty.Seed))
	t.Line = detection.EstimateBaseline(sel.Component.Points, opts.Baseline, rng)
	t.Frame = detection.NewFrame(t.Line, t.Grid.Width)
	t.Aligned = t.Frame.Align(sel.Component.Points)
	t.Baseline = BaselineSummary{
		TiltDeg:   t.Line.AngleDeg,
		RMS:       t.Line.RMS,
		Slope:     t.Line.Slope,
		Intercept: t.Line.Intercept,
		Inliers:   t.Line.Inliers,
		Fallback:  t.Line.Fallback,
	}
	r.stage(stageBaseline, started,
		logger.Float64("tilt_deg", t.Line.AngleDeg),
		logger.Int("inliers", t.Line.Inliers),
		logger.Bool("fallback", t.Line.Fallback))

	return t, nil
}

// Measure runs the full pipeline on one intensity grid.
//
// Stage aborts are returned as *Failure. Individual fit-engine failures never
// abort; they show up as invalid methods. The context is checked between
// stages and bounds the Young-Laplace search and the bootstrap.
func Measure(ctx context.Context, in Input, opts Options) (*Result, error) {
	begin := time.Now()
	r := newRun(ctx, opts)

	t, err := traceContour(r, in.Grid, opts)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	iso, err := detection.IsolateDroplet(t.Aligned, opts.Isolation)
	if err != nil {
		return nil, r.abort(fail(StageIsolation, err))
	}
	t.Contour.IsolatedPoints = len(iso.Points)
	t.Contour.IsolationFallback = iso.Fallback
	r.stage(stageIsolation, started,
		logger.Int("points", len(iso.Points)),
		logger.Int("candidates", iso.Candidates),
		logger.Bool("fallback", iso.Fallback))

	started = time.Now()
	contacts, err := detection.LocateContacts(iso.Points, t.Aligned, opts.Contacts)
	if err != nil {
		return nil, r.abort(fail(StageContacts, err))
	}
	t.Contour.ContactFallback = contacts.Fallback
	t.Contour.LeftX, t.Contour.RightX = contacts.LeftX, contacts.RightX
	t.Contour.BaseWidthPx = contacts.Span()
	r.stage(stageContacts, started,
		logger.Float64("left_x", contacts.LeftX),
		logger.Float64("right_x", contacts.RightX),
		logger.Bool("fallback", contacts.Fallback))

	xs, ys := splitXY(iso.Points)
	if len(xs) < opts.MinFitPoints {
		return nil, r.abort(fail(StageFitPoints, fmt.Errorf("%d points above the baseline, need %d", len(xs), opts.MinFitPoints)))
	}
	t.Contour.DropHeightPx = -floats.Min(ys)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started = time.Now()
	fits := runFits(ctx, xs, ys, contacts, opts)
	results := Gate(fits, contacts, opts.Gate)
	valid := 0
	for _, m := range results {
		r.metrics.RecordMethodOutcome(string(m.Method), m.Valid)
		if m.Valid {
			valid++
		}
	}
	r.logFits(fits, results)
	r.stage(stageFits, started, logger.Int("valid", valid))

	started = time.Now()
	ens := Combine(results, opts.Ensemble)
	r.stage(stageEnsemble, started,
		logger.Float64("angle_deg", ens.AngleDeg),
		logger.String("fallback", ens.Fallback))

	dropRadius := contacts.Span() / 2
	if circle, ok := resultFor(results, fitting.MethodCircle); ok && circle.Valid {
		dropRadius = fits.Circle.R
	}

	started = time.Now()
	unc, err := estimateUncertainty(ctx, xs, ys, iso.Points, contacts, dropRadius, results, opts)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordBootstrapKept(unc.BootstrapKept)
	r.stage(stageUncertainty, started,
		logger.Float64("combined", unc.Combined),
		logger.Int("bootstrap_kept", unc.BootstrapKept))

	res := &Result{
		RunID:         r.id,
		AngleDeg:      ens.AngleDeg,
		AngleLeftDeg:  ens.AngleLeftDeg,
		AngleRightDeg: ens.AngleRightDeg,
		HysteresisDeg: ens.HysteresisDeg(),
		Uncertainty:   unc,
		PerMethod:     make(map[fitting.Method]MethodResult, len(results)),
		ValidMethods:  valid,
		Ensemble:      ens,
		Baseline:      t.Baseline,
		Contour:       t.Contour,
		Physical:      ComputePhysical(in.Calibration, dropRadius, contacts.Span(), t.Contour.DropHeightPx, opts.Physical),
		Overlay: BuildOverlay(t.Frame, t.Line, t.Grid.Width,
			t.Frame.Unalign(iso.Points), contacts, fits, results, ens),
	}
	for _, m := range results {
		res.PerMethod[m.Method] = m
	}
	res.ElapsedMS = float64(time.Since(begin).Microseconds()) / 1000

	r.metrics.RecordMeasurement()
	r.log.Info(ctx, "measurement complete",
		logger.String("run_id", r.id),
		logger.Float64("angle_deg", res.AngleDeg),
		logger.Float64("uncertainty_deg", unc.Combined),
		logger.Int("valid_methods", valid),
		logger.Float64("elapsed_ms", res.ElapsedMS))
	return res, nil
}

// MeasureFile loads an image through cache and measures it. Decoding
// problems are reported as a decode_failure.
func MeasureFile(ctx context.Context, cache *imaging.ImageCache, path string, mode imaging.IntensityMode, cal *Calibration, opts Options) (*Result, error) {
	grid, err := imaging.LoadIntensity(cache, path, mode)
	if err != nil {
		return nil, newRun(ctx, opts).abort(fail(StageDecode, err))
	}
	return Measure(ctx, Input{Grid: grid, Calibration: cal}, opts)
}

// runFits runs the four engines concurrently. Engine errors are kept in
// Fits for the gate and logFits.
func runFits(ctx context.Context, xs, ys []float64, c detection.Contacts, opts Options) Fits {
	var f Fits
	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		f.Circle, f.CircleErr = fitting.FitCircle(xs, ys)
	}()
	go func() {
		defer wg.Done()
		f.Ellipse, f.EllipseErr = fitting.FitEllipse(xs, ys, c.LeftX, c.RightX)
	}()
	go func() {
		defer wg.Done()
		f.Polynomial, f.PolynomialErr = fitting.FitPolynomial(xs, ys, c.LeftX, c.RightX, opts.Polynomial)
	}()
	go func() {
		defer wg.Done()
		f.YoungLaplace, f.YoungLaplaceErr = fitting.FitYoungLaplace(ctx, xs, ys, c.LeftX, c.RightX, opts.YoungLaplace)
	}()
	wg.Wait()
	return f
}

func (r *run) logFits(f Fits, results []MethodResult) {
	for method, err := range map[fitting.Method]error{
		fitting.MethodCircle:       f.CircleErr,
		fitting.MethodEllipse:      f.EllipseErr,
		fitting.MethodPolynomial:   f.PolynomialErr,
		fitting.MethodYoungLaplace: f.YoungLaplaceErr,
	} {
		if err != nil {
			r.log.Debug(r.ctx, "fit engine failed",
				logger.String("run_id", r.id),
				logger.String("method", method.String()),
				logger.Error(err))
		}
	}
	for _, m := range results {
		fields := []logger.Field{
			logger.String("run_id", r.id),
			logger.String("method", m.Method.String()),
			logger.Float64("angle_deg", m.AngleDeg),
			logger.Float64("r_squared", m.RSquared),
			logger.Bool("valid", m.Valid),
		}
		if m.InvalidReason != ReasonNone {
			fields = append(fields, logger.String("reason", string(m.InvalidReason)))
		}
		r.log.Debug(r.ctx, "fit gated", fields...)
	}
	if f.YoungLaplace.BudgetExhausted {
		r.log.Debug(r.ctx, "young-laplace search budget exhausted",
			logger.String("run_id", r.id),
			logger.Int("evaluations", f.YoungLaplace.Evaluations))
	}
}

func estimateUncertainty(ctx context.Context, xs, ys []float64, arc []imaging.Point, c detection.Contacts,
	dropRadius float64, results []MethodResult, opts Options,
) (Uncertainty, error) {
	var u Uncertainty
	var err error
	u.Bootstrap, u.BootstrapKept, err = Bootstrap(ctx,
		BootstrapInput{Xs: xs, Ys: ys, LeftX: c.LeftX, RightX: c.RightX}, opts.Gate, opts.Uncertainty)
	if err != nil {
		return u, err
	}
	u.MethodDisagreement = MethodDisagreement(validAngles(results))
	u.Edge = EdgeSpread(arc, c.LeftX, c.RightX, dropRadius, opts.Uncertainty)
	return combine(u, opts.Uncertainty), nil
}

func resultFor(results []MethodResult, m fitting.Method) (MethodResult, bool) {
	for _, r := range results {
		if r.Method == m {
			return r, true
		}
	}
	return MethodResult{}, false
}

func splitXY(pts []imaging.Point) (xs, ys []float64) {
	xs = make([]float64, len(pts))
	ys = make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
	}
	return xs, ys
}
