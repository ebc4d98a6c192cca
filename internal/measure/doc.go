// Package measure turns an intensity grid into a contact-angle measurement.
//
// Measure runs the pipeline stage by stage: normalization, sub-pixel edges,
// border suppression, component selection, baseline, frame transform,
// droplet isolation, contact points, the four fit engines, the validity gate,
// the ensemble and the uncertainty estimate.
//
// A stage that cannot continue aborts the run with a *Failure naming the
// stage. Fit engines never abort: their errors become invalid methods with
// reason fit_failed, and the gate's rejections are ordinary results.
//
// The package performs no I/O apart from MeasureFile, which decodes an image
// before measuring it.
package measure
