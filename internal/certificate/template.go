package certificate

import (
	"os"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"certsend/internal/pkg/errors"
)

// Template is the certificate background: the first page of a PDF file.
type Template struct {
	Path   string
	Width  float64
	Height float64
}

// LoadTemplate reads the media box of the template's first page.
func LoadTemplate(path string) (*Template, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("template", path)
		}
		return nil, errors.WrapWithCode(err, errors.CodeInvalidAsset, "certificate.template", "template unreadable")
	}

	dims, err := api.PageDimsFile(path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInvalidAsset, "certificate.template", "template is not a readable PDF").
			WithField("path", path)
	}
	if len(dims) == 0 {
		return nil, errors.New(errors.CodeInvalidAsset, "template has no pages").WithField("path", path)
	}

	return &Template{
		Path:   path,
		Width:  dims[0].Width,
		Height: dims[0].Height,
	}, nil
}
