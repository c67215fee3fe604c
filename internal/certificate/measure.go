package certificate

import (
	"github.com/jung-kurt/gofpdf"

	"certsend/internal/pkg/errors"
)

// Measurer reports the rendered width of text, in points, at a font size.
type Measurer interface {
	StringWidth(text string, size float64) float64
}

// FontMeasurer measures text with the metrics of a PDF core font.
// Not safe for concurrent use.
type FontMeasurer struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

// NewFontMeasurer loads the metrics for a core font family and style
// ("" regular, "B" bold, "I" italic, "BI").
func NewFontMeasurer(family, style string) (*FontMeasurer, error) {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.SetFont(family, style, 12)
	if pdf.Err() {
		return nil, errors.WrapWithCode(pdf.Error(), errors.CodeValidation, "certificate.font",
			"unsupported font "+family+" "+style)
	}
	return &FontMeasurer{
		pdf: pdf,
		tr:  pdf.UnicodeTranslatorFromDescriptor(""),
	}, nil
}

// StringWidth implements Measurer.
func (m *FontMeasurer) StringWidth(text string, size float64) float64 {
	m.pdf.SetFontSize(size)
	return m.pdf.GetStringWidth(m.tr(text))
}

// FitFontSize picks the largest integer size in [MinFontSize, MaxFontSize]
// at which text is no wider than MaxTextWidth, stepping down one point at a
// time from the maximum. When nothing fits, MinFontSize is returned and the
// overflow is accepted. The width at the returned size is returned too.
func FitFontSize(m Measurer, text string, l Layout) (int, float64) {
	size := l.MaxFontSize
	for {
		width := m.StringWidth(text, float64(size))
		if width <= l.MaxTextWidth || size <= l.MinFontSize {
			return size, width
		}
		size--
	}
}
