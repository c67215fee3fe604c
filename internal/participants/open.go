package participants

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"certsend/internal/pkg/errors"
)

// Options selects and configures a participant source.
type Options struct {
	// Path is a .csv or .xlsx file. Ignored when SpreadsheetID is set.
	Path string
	// Sheet is the worksheet name for .xlsx files.
	Sheet string
	// SpreadsheetID selects a Google Sheet instead of a local file.
	SpreadsheetID string
	// Range is the A1 range read from the Google Sheet.
	Range   string
	Columns Columns
}

// UsesSheets reports whether the options select a Google Sheet.
func (o Options) UsesSheets() bool {
	return strings.TrimSpace(o.SpreadsheetID) != ""
}

// Open returns the source selected by opts. httpClient must be authenticated
// for the Sheets API when a spreadsheet ID is configured; it is unused
// otherwise.
func Open(ctx context.Context, opts Options, httpClient *http.Client) (Source, error) {
	if opts.Columns == (Columns{}) {
		opts.Columns = DefaultColumns()
	}

	if opts.UsesSheets() {
		if httpClient == nil {
			return nil, errors.Unauthorized("Google Sheets source needs an authenticated client")
		}
		return NewSheetsSource(ctx, httpClient, opts.SpreadsheetID, opts.Range, opts.Columns)
	}

	switch strings.ToLower(filepath.Ext(opts.Path)) {
	case ".csv", ".txt":
		return &CSVSource{Path: opts.Path, Columns: opts.Columns}, nil
	case ".xlsx", ".xlsm":
		return &XLSXSource{Path: opts.Path, Sheet: opts.Sheet, Columns: opts.Columns}, nil
	default:
		return nil, errors.ValidationField("participants_path",
			"unsupported participant list format: "+opts.Path)
	}
}
