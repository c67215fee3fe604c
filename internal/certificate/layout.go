package certificate

import (
	"certsend/internal/pkg/errors"
)

// Layout is the placement calibration for one template asset. Coordinates are
// PDF points with the origin at the bottom-left corner of the page.
type Layout struct {
	MaxFontSize  int     `yaml:"max_font_size"`
	MinFontSize  int     `yaml:"min_font_size"`
	MaxTextWidth float64 `yaml:"max_text_width"`
	CenterX      float64 `yaml:"center_x"`
	BaselineY    float64 `yaml:"baseline_y"`
	FontFamily   string  `yaml:"font_family"`
	FontStyle    string  `yaml:"font_style"`
}

// DefaultLayout matches the calibrated COP_template.pdf (842x595 landscape).
func DefaultLayout() Layout {
	return Layout{
		MaxFontSize:  46,
		MinFontSize:  20,
		MaxTextWidth: 600,
		CenterX:      420,
		BaselineY:    305,
		FontFamily:   "Helvetica",
		FontStyle:    "B",
	}
}

// Validate checks that the font size range and width cap are usable.
func (l Layout) Validate() error {
	if l.MinFontSize < 1 {
		return errors.ValidationField("min_font_size", "min font size must be at least 1")
	}
	if l.MaxFontSize < l.MinFontSize {
		return errors.Validationf("max font size %d is below min font size %d", l.MaxFontSize, l.MinFontSize).
			WithField("field", "max_font_size")
	}
	if l.MaxTextWidth <= 0 {
		return errors.ValidationField("max_text_width", "max text width must be positive")
	}
	if l.FontFamily == "" {
		return errors.ValidationField("font_family", "font family is required")
	}
	return nil
}
