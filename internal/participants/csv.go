package participants

import (
	"context"
	"encoding/csv"
	"os"

	"certsend/internal/pkg/errors"
)

// CSVSource reads a comma-separated attendee export.
type CSVSource struct {
	Path    string
	Columns Columns
}

// Load implements Source.
func (s *CSVSource) Load(ctx context.Context) ([]Participant, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("participant list", s.Path)
		}
		return nil, errors.WrapWithCode(err, errors.CodeInvalidAsset, "participants.csv", "cannot open participant list")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInvalidAsset, "participants.csv", "malformed CSV").
			WithField("path", s.Path)
	}

	return fromRows(rows, s.Columns, s.Path)
}
