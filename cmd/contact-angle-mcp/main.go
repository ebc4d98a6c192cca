package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/contact-angle-mcp/internal/config"
	"github.com/ironsheep/contact-angle-mcp/internal/imaging"
	"github.com/ironsheep/contact-angle-mcp/internal/measure"
	"github.com/ironsheep/contact-angle-mcp/internal/ocr"
	"github.com/ironsheep/contact-angle-mcp/internal/server"
	"github.com/ironsheep/contact-angle-mcp/internal/synth"
	"github.com/ironsheep/contact-angle-mcp/pkg/logger"
	"github.com/ironsheep/contact-angle-mcp/pkg/metrics"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command line and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	// Handle --version and -v flags
	if len(args) > 0 {
		switch args[0] {
		case "--version", "-v", "version":
			fmt.Fprintf(stdout, "contact-angle-mcp %s\n", Version)
			fmt.Fprintf(stdout, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(stdout, "  Git commit: %s\n", GitCommit)
			if ocr.Available() {
				fmt.Fprintf(stdout, "  Tesseract:  %s\n", ocr.Version())
			}
			return 0
		case "--help", "-h", "help":
			printHelp(stdout)
			return 0
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Logs go to stderr; stdout is for MCP protocol and results.
	if err := logger.InitWithWriter(stderr); err != nil {
		fmt.Fprintf(stderr, "logger init: %v\n", err)
		return 1
	}
	log := logger.Named("main")

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, "invalid configuration", logger.Error(err))
		return 1
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "unknown log level, using info", logger.String("log_level", cfg.LogLevel))
	}

	switch {
	case len(args) > 0 && args[0] == "measure":
		if len(args) < 2 {
			fmt.Fprintln(stderr, "usage: contact-angle-mcp measure <image>")
			return 2
		}
		return measureOnce(ctx, cfg, args[1], stdout)
	case len(args) > 0 && args[0] == "selftest":
		return selfTest(ctx, cfg, stdout)
	case len(args) > 0:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printHelp(stderr)
		return 2
	}

	log.Debug(ctx, "starting MCP server",
		logger.String("version", Version),
		logger.String("build_time", BuildTime),
		logger.String("commit", GitCommit))
	srv := server.New(serverOptions(cfg)...)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "server error", logger.Error(err))
		return 1
	}
	return 0
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "contact-angle-mcp - contact-angle measurement for sessile drop images")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  contact-angle-mcp                  Serve MCP over stdin/stdout")
	fmt.Fprintln(w, "  contact-angle-mcp measure <image>  Measure one image and print JSON")
	fmt.Fprintln(w, "  contact-angle-mcp selftest         Measure synthetic drops of known angle")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  --version, -v    Print version information")
	fmt.Fprintln(w, "  --help, -h       Print this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment variables:")
	fmt.Fprintln(w, "  CONTACT_ANGLE_CONFIG=path.yaml     Load settings from a YAML file")
	fmt.Fprintln(w, "  CONTACT_ANGLE_LOG_LEVEL=debug      Enable debug logging")
	fmt.Fprintln(w, "  CONTACT_ANGLE_OCR_ENABLED=true     Read scale bars for calibration")
	fmt.Fprintln(w, "  CONTACT_ANGLE_METRICS_TEXTFILE=f   Write Prometheus metrics after 'measure'")
}

// serverOptions wires the configuration into the MCP server.
func serverOptions(cfg *config.Config) []server.Option {
	opts := []server.Option{
		server.WithMeasureOptions(optionsFromConfig(cfg)),
		server.WithIntensityMode(imaging.IntensityMode(cfg.IntensityMode)),
		server.WithVersion(Version),
	}
	if cfg.OCREnabled {
		opts = append(opts, server.WithScaleBar(ocr.NewTesseract(cfg.OCRLanguage, ""), ocrOptions(cfg)))
	}
	return opts
}

// measureOnce prints the result JSON for one image. Aborts print the failure
// JSON and return 1.
func measureOnce(ctx context.Context, cfg *config.Config, path string, out io.Writer) int {
	log := logger.Named("measure")
	opts := optionsFromConfig(cfg)
	cache := imaging.NewImageCache()
	mode := imaging.IntensityMode(cfg.IntensityMode)

	var cal *measure.Calibration
	if cfg.OCREnabled {
		if img, err := cache.Load(path); err == nil {
			sb, err := ocr.ReadScaleBar(ctx, img, ocr.NewTesseract(cfg.OCRLanguage, ""), ocrOptions(cfg))
			if err != nil {
				log.Warn(ctx, "scale-bar calibration failed", logger.Error(err))
			} else {
				cal = sb.Calibration()
			}
		}
	}

	res, err := measure.MeasureFile(ctx, cache, path, mode, cal, opts)
	writeMetrics(ctx, cfg)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err != nil {
		var f *measure.Failure
		if errors.As(err, &f) {
			_ = enc.Encode(f)
		}
		log.Error(ctx, "measurement failed", logger.String("path", path), logger.Error(err))
		return 1
	}
	if err := enc.Encode(res); err != nil {
		log.Error(ctx, "failed to encode result", logger.Error(err))
		return 1
	}
	return 0
}

// selfTestCases are synthetic drops of known angle.
var selfTestCases = []struct {
	angle, baseRadius, tolerance float64
}{
	{60, 80, 3},
	{90, 60, 3},
	{120, 50, 4},
}

// selfTest measures synthetic drops and reports whether each angle is
// recovered within tolerance.
func selfTest(ctx context.Context, cfg *config.Config, out io.Writer) int {
	opts := optionsFromConfig(cfg)
	failed := 0
	for _, tc := range selfTestCases {
		scene := synth.CleanDrop(tc.angle, tc.baseRadius)
		res, err := measure.Measure(ctx, measure.Input{Grid: scene.Render()}, opts)
		switch {
		case err != nil:
			fmt.Fprintf(out, "FAIL %5.1f°: %v\n", tc.angle, err)
			failed++
		case math.Abs(res.AngleDeg-tc.angle) > tc.tolerance:
			fmt.Fprintf(out, "FAIL %5.1f°: measured %.2f ± %.2f\n", tc.angle, res.AngleDeg, res.Uncertainty.Combined)
			failed++
		default:
			fmt.Fprintf(out, "ok   %5.1f°: measured %.2f ± %.2f (%d methods)\n",
				tc.angle, res.AngleDeg, res.Uncertainty.Combined, res.ValidMethods)
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

func writeMetrics(ctx context.Context, cfg *config.Config) {
	if cfg.MetricsTextfile == "" {
		return
	}
	if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
		logger.Named("metrics").Warn(ctx, "failed to write metrics textfile",
			logger.String("path", cfg.MetricsTextfile), logger.Error(err))
	}
}
