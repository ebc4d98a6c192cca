package ocr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Label is a length read from a scale-bar caption.
type Label struct {
	Text   string  `json:"text"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
	Meters float64 `json:"meters"`
}

var labelPattern = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(nm|[uµμ]m|mm|cm|m)\b`)

var unitMeters = map[string]float64{
	"nm": 1e-9,
	"um": 1e-6,
	"mm": 1e-3,
	"cm": 1e-2,
	"m":  1,
}

// ParseLabel finds the first length with a unit in text. Micro may be
// written µ, μ or u, and a decimal comma is accepted.
//
// Returns ErrNoLabel when text holds no positive length.
func ParseLabel(text string) (Label, error) {
	for _, m := range labelPattern.FindAllStringSubmatch(text, -1) {
		value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err != nil || value <= 0 {
			continue
		}
		unit := normalizeUnit(m[2])
		return Label{
			Text:   strings.TrimSpace(m[0]),
			Value:  value,
			Unit:   unit,
			Meters: value * unitMeters[unit],
		}, nil
	}
	return Label{}, fmt.Errorf("%w in %q", ErrNoLabel, strings.TrimSpace(text))
}

func normalizeUnit(u string) string {
	u = strings.ToLower(u)
	switch {
	case strings.HasPrefix(u, "µ"), strings.HasPrefix(u, "μ"), u == "um":
		return "um"
	}
	return u
}
