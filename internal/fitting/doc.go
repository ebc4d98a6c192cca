// Package fitting implements the droplet shape models used to read a contact
// angle off an isolated silhouette.
//
// Every engine works in the baseline frame: the substrate is y = 0 and the
// droplet lies at y < 0. Engines are stateless functions that return a typed
// result or an error; numerical trouble (singular systems, negative
// radicands, non-finite output) is reported as an error wrapping ErrFitFailed
// rather than as a panic.
//
// # Engines
//
//   - FitCircle: normalized algebraic (Kåsa) circle.
//   - FitEllipse: direct least-squares ellipse (Fitzgibbon, numerically stable
//     Halir-Flusser split).
//   - FitPolynomial: local weighted polynomial tangent on each flank.
//   - FitYoungLaplace: axisymmetric Young-Laplace profile by a Bond number
//     grid with a golden-section apex radius fit at each node.
//
// # Angle Convention
//
// Contact angles are measured through the liquid, in degrees within [0, 180].
// A tangent that leans inward over the drop gives an angle below 90; one that
// bulges outward gives an angle above 90.
package fitting
