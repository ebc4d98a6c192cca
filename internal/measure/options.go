package measure

import (
	"github.com/ironsheep/contact-angle-mcp/internal/detection"
	"github.com/ironsheep/contact-angle-mcp/internal/fitting"
	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"github.com/ironsheep/contact-angle-mcp/pkg/logger"
	"github.com/ironsheep/contact-angle-mcp/pkg/metrics"
)

// Options configures every pipeline stage. The zero value is not usable;
// start from DefaultOptions.
type Options struct {
	Edge         imaging.EdgeOptions
	BorderMargin float64

	Component detection.ComponentParams
	Baseline  detection.BaselineParams
	Isolation detection.IsolationParams
	Contacts  detection.ContactParams

	Polynomial   fitting.PolynomialParams
	YoungLaplace fitting.YoungLaplaceOptions

	Gate        GateParams
	Ensemble    EnsembleParams
	Uncertainty UncertaintyParams
	Physical    PhysicalParams

	// MinContourPoints is the smallest selected component worth a baseline.
	MinContourPoints int

	// MinFitPoints is the smallest above-baseline set the engines accept.
	MinFitPoints int

	// Logger and Metrics default to the process-wide instances when nil.
	Logger  logger.Logger
	Metrics *metrics.Manager
}

// DefaultOptions returns the standard pipeline settings.
func DefaultOptions() Options {
	return Options{
		Edge:             imaging.DefaultEdgeOptions(),
		BorderMargin:     6,
		Component:        detection.DefaultComponentParams(),
		Baseline:         detection.DefaultBaselineParams(),
		Isolation:        detection.DefaultIsolationParams(),
		Contacts:         detection.DefaultContactParams(),
		Polynomial:       fitting.DefaultPolynomialParams(),
		YoungLaplace:     fitting.DefaultYoungLaplaceOptions(),
		Gate:             DefaultGateParams(),
		Ensemble:         DefaultEnsembleParams(),
		Uncertainty:      DefaultUncertaintyParams(),
		Physical:         DefaultPhysicalParams(),
		MinContourPoints: 20,
		MinFitPoints:     10,
	}
}

func (o Options) logger() logger.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logger.Named("measure")
}

func (o Options) metrics() *metrics.Manager {
	if o.Metrics != nil {
		return o.Metrics
	}
	return metrics.Default()
}
