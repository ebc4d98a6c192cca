package server

import (
	"io"

	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"github.com/ironsheep/contact-angle-mcp/internal/measure"
	"github.com/ironsheep/contact-angle-mcp/internal/ocr"
	"github.com/ironsheep/contact-angle-mcp/pkg/logger"
)

// Option configures a Server.
type Option func(*Server)

// WithMeasureOptions sets the pipeline settings used by every tool.
func WithMeasureOptions(opts measure.Options) Option {
	return func(s *Server) {
		s.measure = opts
	}
}

// WithIntensityMode sets how color images are reduced to intensity.
func WithIntensityMode(mode imaging.IntensityMode) Option {
	return func(s *Server) {
		s.mode = mode
	}
}

// WithScaleBar enables droplet_scale_bar and scale-bar calibration.
func WithScaleBar(rec ocr.Recognizer, opts ocr.Options) Option {
	return func(s *Server) {
		s.recognizer = rec
		s.ocr = opts
	}
}

// WithLogger replaces the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithVersion sets the version reported by initialize.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.in, s.out = in, out
	}
}
