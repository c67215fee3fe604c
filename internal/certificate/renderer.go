package certificate

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"certsend/internal/pkg/errors"
	"certsend/internal/pkg/logger"
)

// Extension of rendered certificates.
const Extension = ".pdf"

// Overlay stamp: unscaled, unrotated, opaque, centered on the page.
const overlayStamp = "scalefactor:1 abs, rotation:0, opacity:1, position:c"

func init() {
	// pdfcpu would otherwise create a config dir under the user's home.
	api.DisableConfigDir()
}

// Options configures a Renderer.
type Options struct {
	TemplatePath string
	OutputDir    string
	Layout       Layout
	// Measurer defaults to the core font metrics of Layout.FontFamily/FontStyle.
	Measurer Measurer
	Log      *logger.Logger
}

// Result describes one rendered certificate.
type Result struct {
	Path      string
	FontSize  int
	TextWidth float64
}

// Renderer stamps participant names onto the certificate template.
type Renderer struct {
	templatePath string
	outputDir    string
	layout       Layout
	measurer     Measurer
	workDir      string
	log          *logger.Logger
}

// New validates the layout and prepares a scratch directory for overlays.
func New(opts Options) (*Renderer, error) {
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.TemplatePath) == "" {
		return nil, errors.ValidationField("template_path", "template path is required")
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, errors.ValidationField("output_dir", "output directory is required")
	}

	m := opts.Measurer
	if m == nil {
		fm, err := NewFontMeasurer(opts.Layout.FontFamily, opts.Layout.FontStyle)
		if err != nil {
			return nil, err
		}
		m = fm
	}

	log := opts.Log
	if log == nil {
		log = logger.NewDefault()
	}

	workDir, err := os.MkdirTemp("", "certsend-*")
	if err != nil {
		return nil, errors.Wrap(err, "certificate.new", "failed to create work directory")
	}

	return &Renderer{
		templatePath: opts.TemplatePath,
		outputDir:    opts.OutputDir,
		layout:       opts.Layout,
		measurer:     m,
		workDir:      workDir,
		log:          log.WithComponent("renderer"),
	}, nil
}

// Close removes the scratch directory.
func (r *Renderer) Close() error {
	return os.RemoveAll(r.workDir)
}

// OutputPath returns where the certificate for name is written. Path
// separators are replaced so the file always lands inside the output dir.
func (r *Renderer) OutputPath(name string) string {
	return filepath.Join(r.outputDir, FileName(name))
}

// FileName is the certificate file name for a participant name.
func FileName(name string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	return safe + Extension
}

// Render writes a single-page certificate for name and returns its path.
func (r *Renderer) Render(ctx context.Context, name string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "certificate.render", "render canceled")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.ValidationField("name", "name is required")
	}

	// 1. Fit the font size
	size, width := FitFontSize(r.measurer, name, r.layout)
	if width > r.layout.MaxTextWidth {
		r.log.Warn("name overflows at minimum font size",
			"name", name,
			"font_size", size,
			"width", width,
			"max_width", r.layout.MaxTextWidth,
		)
	}

	// 2. Template geometry, read fresh every time
	tpl, err := LoadTemplate(r.templatePath)
	if err != nil {
		return nil, err
	}

	// 3. Transparent overlay sized to the template page
	overlay, err := r.drawOverlay(name, size, tpl)
	if err != nil {
		return nil, err
	}
	defer os.Remove(overlay)

	// 4. Output directory
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "certificate.output", "failed to create output directory").
			WithField("dir", r.outputDir)
	}

	// 5. Merge the overlay on top of the template's first page
	out := r.OutputPath(name)
	if err := r.merge(tpl, overlay, out); err != nil {
		return nil, err
	}

	r.log.Debug("certificate rendered",
		"name", name,
		"path", out,
		"font_size", size,
		"width", width,
	)

	return &Result{Path: out, FontSize: size, TextWidth: width}, nil
}

func (r *Renderer) drawOverlay(name string, size int, tpl *Template) (string, error) {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: tpl.Width, Ht: tpl.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	pdf.SetFont(r.layout.FontFamily, r.layout.FontStyle, float64(size))

	text := pdf.UnicodeTranslatorFromDescriptor("")(name)
	width := pdf.GetStringWidth(text)

	// gofpdf measures y from the top edge.
	pdf.Text(r.layout.CenterX-width/2, tpl.Height-r.layout.BaselineY, text)

	f, err := os.CreateTemp(r.workDir, "overlay-*.pdf")
	if err != nil {
		return "", errors.Wrap(err, "certificate.overlay", "failed to create overlay file")
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "certificate.overlay", "failed to create overlay file")
	}

	if err := pdf.OutputFileAndClose(path); err != nil {
		_ = os.Remove(path)
		return "", errors.Wrap(err, "certificate.overlay", "failed to write overlay")
	}
	return path, nil
}

func (r *Renderer) merge(tpl *Template, overlay, out string) error {
	page, err := os.CreateTemp(r.workDir, "page-*.pdf")
	if err != nil {
		return errors.Wrap(err, "certificate.merge", "failed to create page file")
	}
	pagePath := page.Name()
	_ = page.Close()
	defer os.Remove(pagePath)

	if err := api.TrimFile(tpl.Path, pagePath, []string{"1"}, nil); err != nil {
		return errors.WrapWithCode(err, errors.CodeInvalidAsset, "certificate.merge", "failed to extract template page")
	}

	wm, err := api.PDFWatermark(overlay, overlayStamp, true, false, types.POINTS)
	if err != nil {
		return errors.Wrap(err, "certificate.merge", "failed to load overlay")
	}

	if err := api.AddWatermarksFile(pagePath, out, nil, wm, nil); err != nil {
		return errors.Wrap(err, "certificate.merge", "failed to stamp overlay").WithField("path", out)
	}
	return nil
}
