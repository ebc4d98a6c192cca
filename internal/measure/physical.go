package measure

import "math"

// StandardGravity in m/s².
const StandardGravity = 9.80665

// Calibration is the optional pixel scale supplied with an image.
type Calibration struct {
	MetersPerPixel      float64 `json:"meters_per_pixel"`
	RelativeUncertainty float64 `json:"relative_uncertainty"`

	// Source is a provenance label and does not affect computation.
	Source string `json:"source,omitempty"`
}

// PhysicalParams holds the liquid properties and fallback scale.
type PhysicalParams struct {
	// DefaultMetersPerPixel is used when no calibration is supplied.
	DefaultMetersPerPixel float64

	// SurfaceTension in N/m and DensityDelta in kg/m³.
	SurfaceTension float64
	DensityDelta   float64
}

// DefaultPhysicalParams describes water against air at 10 µm per pixel.
func DefaultPhysicalParams() PhysicalParams {
	return PhysicalParams{
		DefaultMetersPerPixel: 1e-5,
		SurfaceTension:        0.0728,
		DensityDelta:          997,
	}
}

// Physical are the drop dimensions in physical units. Without calibration
// they rest on the fallback scale and are approximate.
type Physical struct {
	IsCalibrated      bool    `json:"is_calibrated"`
	CalibrationSource string  `json:"calibration_source,omitempty"`
	PixelSizeMicrons  float64 `json:"pixel_size_microns"`
	DropRadiusMM      float64 `json:"drop_radius_mm"`
	BaseDiameterMM    float64 `json:"base_diameter_mm"`
	HeightMM          float64 `json:"height_mm"`

	// VolumeMicroliters assumes a spherical cap.
	VolumeMicroliters float64 `json:"volume_microliters"`

	BondNumber            float64  `json:"bond_number"`
	BondNumberUncertainty *float64 `json:"bond_number_uncertainty,omitempty"`
}

// ComputePhysical scales pixel dimensions and derives the Bond number
// Δρ·g·R²/γ. Radius, base span and height are in pixels.
func ComputePhysical(cal *Calibration, radiusPx, spanPx, heightPx float64, params PhysicalParams) Physical {
	mpp := params.DefaultMetersPerPixel
	p := Physical{}
	if cal != nil && cal.MetersPerPixel > 0 {
		mpp = cal.MetersPerPixel
		p.IsCalibrated = true
		p.CalibrationSource = cal.Source
	}

	radius := radiusPx * mpp
	base := spanPx * mpp / 2
	height := heightPx * mpp

	p.PixelSizeMicrons = mpp * 1e6
	p.DropRadiusMM = radius * 1e3
	p.BaseDiameterMM = 2 * base * 1e3
	p.HeightMM = height * 1e3
	p.VolumeMicroliters = math.Pi * height * (3*base*base + height*height) / 6 * 1e9

	if params.SurfaceTension > 0 {
		p.BondNumber = params.DensityDelta * StandardGravity * radius * radius / params.SurfaceTension
	}
	if p.IsCalibrated {
		u := 2 * cal.RelativeUncertainty * p.BondNumber
		p.BondNumberUncertainty = &u
	}
	return p
}
