package main

import (
	"time"

	"github.com/ironsheep/contact-angle-mcp/internal/config"
	"github.com/ironsheep/contact-angle-mcp/internal/measure"
	"github.com/ironsheep/contact-angle-mcp/internal/ocr"
)

// optionsFromConfig translates process configuration into pipeline settings.
func optionsFromConfig(cfg *config.Config) measure.Options {
	opts := measure.DefaultOptions()

	opts.Edge.Low = cfg.EdgeLowThreshold
	opts.Edge.High = cfg.EdgeHighThreshold
	opts.Edge.Sigma = cfg.EdgeSigma
	opts.BorderMargin = cfg.BorderMargin

	opts.Uncertainty.Samples = cfg.BootstrapSamples
	opts.Uncertainty.Workers = cfg.BootstrapWorkers
	opts.Uncertainty.Seed = cfg.RandomSeed

	opts.YoungLaplace.Budget = time.Duration(cfg.YoungLaplaceBudgetMS) * time.Millisecond
	opts.YoungLaplace.MaxEvaluations = cfg.YoungLaplaceMaxEvaluations

	opts.Physical.DefaultMetersPerPixel = cfg.DefaultMetersPerPixel
	opts.Physical.SurfaceTension = cfg.SurfaceTension
	opts.Physical.DensityDelta = cfg.DensityDelta
	return opts
}

func ocrOptions(cfg *config.Config) ocr.Options {
	opts := ocr.DefaultOptions()
	opts.BandFraction = cfg.OCRBandFraction
	return opts
}
