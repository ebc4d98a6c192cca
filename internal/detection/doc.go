// Package detection turns an unordered edge set into droplet geometry: the
// chosen contour, the substrate baseline, the baseline-aligned frame, the
// isolated droplet arc and its two contact points.
//
// # Pipeline
//
//  1. SelectComponent: flood-fill clustering over a uniform grid, scored by
//     geometric plausibility rather than size alone.
//  2. EstimateBaseline: two-point RANSAC in the bottom band of the contour,
//     refined by ordinary least squares.
//  3. NewFrame / Frame.Align: rigid transform so the baseline is the x-axis and
//     the droplet lies at y < 0.
//  4. IsolateDroplet: re-cluster above-baseline points and keep the arc with
//     support on both flanks.
//  5. LocateContacts: side-aware weighted estimate of the two triple-line x
//     positions, with a simpler fallback estimator.
//
// # Coordinate System
//
// Image coordinates follow the imaging package: origin top-left, Y down.
// Aligned coordinates put the baseline at y = 0 and the droplet at y < 0.
//
// # Scoring Constants
//
// The weights in ComponentParams and IsolationParams were tuned empirically.
// The shape of each score is fixed (reward height and centering, penalize
// border contact, excess width and one-sided flanks); the literal values are
// parameters.
package detection
