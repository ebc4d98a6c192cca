// Package config defines the process configuration and its layered loading.
//
// Conventions:
//   - New() builds a Config with defaults.
//   - Load(ctx) layers defaults <- optional YAML file <- CONTACT_ANGLE_* env vars.
//   - Validation errors wrap ErrInvalidConfig.
//
// The measurement core never reads this package directly; cmd translates a
// Config into measure.Options.
package config

import (
	"context"
	"fmt"
	"runtime"
)

// Intensity modes understood by the image loader.
const (
	IntensityModeLuma = "luma"
	IntensityModeLab  = "lab"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// EdgeLowThreshold and EdgeHighThreshold are the hysteresis bounds on
	// Sobel gradient magnitude (intensity units).
	EdgeLowThreshold  float64 `koanf:"edge_low_threshold"`
	EdgeHighThreshold float64 `koanf:"edge_high_threshold"`

	// EdgeSigma is the Gaussian pre-blur sigma in pixels.
	EdgeSigma float64 `koanf:"edge_sigma"`

	// BorderMargin drops edge points this close to the image boundary.
	BorderMargin float64 `koanf:"border_margin"`

	// BootstrapSamples is the number of resamples for the uncertainty estimate.
	BootstrapSamples int `koanf:"bootstrap_samples"`

	// BootstrapWorkers bounds the resampling fan-out.
	BootstrapWorkers int `koanf:"bootstrap_workers"`

	// RandomSeed makes RANSAC and bootstrap reproducible.
	RandomSeed int64 `koanf:"random_seed"`

	// YoungLaplaceBudgetMS and YoungLaplaceMaxEvaluations bound the shape search.
	YoungLaplaceBudgetMS       int `koanf:"young_laplace_budget_ms"`
	YoungLaplaceMaxEvaluations int `koanf:"young_laplace_max_evaluations"`

	// IntensityMode selects the color to intensity conversion: luma or lab.
	IntensityMode string `koanf:"intensity_mode"`

	// DefaultMetersPerPixel is the uncalibrated fallback scale.
	DefaultMetersPerPixel float64 `koanf:"default_meters_per_pixel"`

	// SurfaceTension (N/m) and DensityDelta (kg/m^3) feed the Bond number.
	SurfaceTension float64 `koanf:"surface_tension"`
	DensityDelta   float64 `koanf:"density_delta"`

	// OCREnabled turns on scale-bar reading for calibration.
	OCREnabled      bool    `koanf:"ocr_enabled"`
	OCRLanguage     string  `koanf:"ocr_language"`
	OCRBandFraction float64 `koanf:"ocr_band_fraction"`

	// MetricsTextfile, when set, receives a Prometheus text dump after each
	// one-shot measurement.
	MetricsTextfile string `koanf:"metrics_textfile"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                   "info",
		EdgeLowThreshold:           20,
		EdgeHighThreshold:          45,
		EdgeSigma:                  1.2,
		BorderMargin:               6,
		BootstrapSamples:           100,
		BootstrapWorkers:           runtime.NumCPU(),
		RandomSeed:                 7,
		YoungLaplaceBudgetMS:       1500,
		YoungLaplaceMaxEvaluations: 1200,
		IntensityMode:              IntensityModeLuma,
		DefaultMetersPerPixel:      1e-5,
		SurfaceTension:             0.0728,
		DensityDelta:               997,
		OCREnabled:                 false,
		OCRLanguage:                "eng",
		OCRBandFraction:            0.15,
	}
}

// Validate checks field ranges.
func (c *Config) Validate(_ context.Context) error {
	switch {
	case c.EdgeLowThreshold <= 0 || c.EdgeHighThreshold <= 0:
		return fmt.Errorf("%w: edge thresholds must be positive", ErrInvalidConfig)
	case c.EdgeLowThreshold >= c.EdgeHighThreshold:
		return fmt.Errorf("%w: edge_low_threshold must be below edge_high_threshold", ErrInvalidConfig)
	case c.EdgeSigma <= 0 || c.EdgeSigma > 5:
		return fmt.Errorf("%w: edge_sigma must be in (0, 5]", ErrInvalidConfig)
	case c.BorderMargin < 0:
		return fmt.Errorf("%w: border_margin must not be negative", ErrInvalidConfig)
	case c.BootstrapSamples < 0:
		return fmt.Errorf("%w: bootstrap_samples must not be negative", ErrInvalidConfig)
	case c.YoungLaplaceBudgetMS <= 0 || c.YoungLaplaceMaxEvaluations <= 0:
		return fmt.Errorf("%w: young-laplace budget must be positive", ErrInvalidConfig)
	case c.IntensityMode != IntensityModeLuma && c.IntensityMode != IntensityModeLab:
		return fmt.Errorf("%w: unknown intensity_mode %q", ErrInvalidConfig, c.IntensityMode)
	case c.DefaultMetersPerPixel <= 0:
		return fmt.Errorf("%w: default_meters_per_pixel must be positive", ErrInvalidConfig)
	case c.SurfaceTension <= 0 || c.DensityDelta <= 0:
		return fmt.Errorf("%w: surface_tension and density_delta must be positive", ErrInvalidConfig)
	case c.OCRBandFraction <= 0 || c.OCRBandFraction > 0.5:
		return fmt.Errorf("%w: ocr_band_fraction must be in (0, 0.5]", ErrInvalidConfig)
	}
	return nil
}
