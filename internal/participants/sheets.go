package participants

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"certsend/internal/pkg/errors"
)

// SheetsSource reads a range of a Google Sheet. The first row of the range is
// the header.
type SheetsSource struct {
	srv           *sheets.Service
	spreadsheetID string
	readRange     string
	columns       Columns
}

// NewSheetsSource builds a source over an authenticated HTTP client.
func NewSheetsSource(ctx context.Context, httpClient *http.Client, spreadsheetID, readRange string, cols Columns, opts ...option.ClientOption) (*SheetsSource, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "participants.sheets", "failed to create Sheets service")
	}
	if readRange == "" {
		readRange = "A:Z"
	}
	return &SheetsSource{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		readRange:     readRange,
		columns:       cols,
	}, nil
}

// Load implements Source.
func (s *SheetsSource) Load(ctx context.Context) ([]Participant, error) {
	resp, err := s.srv.Spreadsheets.Values.Get(s.spreadsheetID, s.readRange).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "participants.sheets", "failed to read spreadsheet").
			WithField("spreadsheet_id", s.spreadsheetID)
	}

	rows := make([][]string, len(resp.Values))
	for i, r := range resp.Values {
		rows[i] = make([]string, len(r))
		for j, v := range r {
			rows[i][j] = fmt.Sprint(v)
		}
	}

	return fromRows(rows, s.columns, "sheet "+s.spreadsheetID)
}
