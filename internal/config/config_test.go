package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestConfigDefaults(t *testing.T) {
	Convey("Given a default config", t, func() {
		cfg := New()

		Convey("Then it validates", func() {
			So(cfg.Validate(context.Background()), ShouldBeNil)
		})

		Convey("Then the defaults are the documented ones", func() {
			So(cfg.EdgeLowThreshold, ShouldEqual, 20)
			So(cfg.EdgeHighThreshold, ShouldEqual, 45)
			So(cfg.BootstrapSamples, ShouldEqual, 100)
			So(cfg.RandomSeed, ShouldEqual, 7)
			So(cfg.IntensityMode, ShouldEqual, IntensityModeLuma)
			So(cfg.DefaultMetersPerPixel, ShouldEqual, 1e-5)
			So(cfg.BootstrapWorkers, ShouldBeGreaterThan, 0)
		})
	})
}

func TestConfigValidate(t *testing.T) {
	Convey("Given configs with bad fields", t, func() {
		cases := []func(*Config){
			func(c *Config) { c.EdgeLowThreshold = 50 },
			func(c *Config) { c.EdgeSigma = 0 },
			func(c *Config) { c.BorderMargin = -1 },
			func(c *Config) { c.IntensityMode = "hsv" },
			func(c *Config) { c.DefaultMetersPerPixel = 0 },
			func(c *Config) { c.YoungLaplaceMaxEvaluations = 0 },
			func(c *Config) { c.OCRBandFraction = 0.9 },
		}

		Convey("Then each fails with ErrInvalidConfig", func() {
			for _, mutate := range cases {
				cfg := New()
				mutate(cfg)
				err := cfg.Validate(context.Background())
				So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
			}
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given a YAML file and an env override", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "angle.yaml")
		yamlBody := "edge_sigma: 1.8\nbootstrap_samples: 40\nintensity_mode: lab\n"
		So(os.WriteFile(path, []byte(yamlBody), 0o600), ShouldBeNil)

		t.Setenv(EnvConfigPath, path)
		t.Setenv("CONTACT_ANGLE_BOOTSTRAP_SAMPLES", "64")

		cfg, err := Load(context.Background())

		Convey("Then file values override defaults and env overrides the file", func() {
			So(err, ShouldBeNil)
			So(cfg.EdgeSigma, ShouldEqual, 1.8)
			So(cfg.IntensityMode, ShouldEqual, IntensityModeLab)
			So(cfg.BootstrapSamples, ShouldEqual, 64)
			So(cfg.EdgeHighThreshold, ShouldEqual, 45)
		})
	})

	Convey("Given a missing config file", t, func() {
		t.Setenv(EnvConfigPath, filepath.Join(t.TempDir(), "missing.yaml"))

		_, err := Load(context.Background())

		Convey("Then loading fails with ErrLoadConfig", func() {
			So(errors.Is(err, ErrLoadConfig), ShouldBeTrue)
		})
	})

	Convey("Given an env value that fails validation", t, func() {
		t.Setenv(EnvConfigPath, "")
		t.Setenv("CONTACT_ANGLE_INTENSITY_MODE", "cmyk")

		_, err := Load(context.Background())

		Convey("Then loading fails with ErrInvalidConfig", func() {
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
