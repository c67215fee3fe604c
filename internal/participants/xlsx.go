package participants

import (
	"context"
	"os"

	"github.com/xuri/excelize/v2"

	"certsend/internal/pkg/errors"
)

// XLSXSource reads one worksheet of an Excel workbook. An empty Sheet means
// the first sheet.
type XLSXSource struct {
	Path    string
	Sheet   string
	Columns Columns
}

// Load implements Source.
func (s *XLSXSource) Load(ctx context.Context) ([]Participant, error) {
	if _, err := os.Stat(s.Path); os.IsNotExist(err) {
		return nil, errors.NotFound("participant list", s.Path)
	}

	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInvalidAsset, "participants.xlsx", "cannot open workbook").
			WithField("path", s.Path)
	}
	defer f.Close()

	sheet := s.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInvalidAsset, "participants.xlsx", "cannot read worksheet").
			WithField("sheet", sheet)
	}

	return fromRows(rows, s.Columns, s.Path+"#"+sheet)
}
