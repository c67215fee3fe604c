// Package participants loads the workshop attendee list from a spreadsheet.
package participants

import (
	"context"
	"strings"

	"certsend/internal/pkg/errors"
)

// Participant is one row of the attendee list.
type Participant struct {
	// Row is the 1-based data row (the header row is not counted).
	Row   int
	Name  string
	Email string
}

// Validate reports a missing name or email.
func (p Participant) Validate() error {
	if p.Name == "" {
		return errors.ValidationField("name", "participant name is empty").WithField("row", p.Row)
	}
	if p.Email == "" {
		return errors.ValidationField("email", "participant email is empty").WithField("row", p.Row)
	}
	return nil
}

// Columns names the header cells holding each field.
type Columns struct {
	Name  string
	Email string
}

// DefaultColumns matches the attendance export headers.
func DefaultColumns() Columns {
	return Columns{Name: "NAME", Email: "EMAIL"}
}

// Source loads participants in source order.
type Source interface {
	Load(ctx context.Context) ([]Participant, error)
}

// fromRows maps raw rows (first row is the header) to participants.
func fromRows(rows [][]string, cols Columns, source string) ([]Participant, error) {
	if len(rows) == 0 {
		return nil, errors.Validationf("%s has no header row", source).WithField("source", source)
	}

	header := rows[0]
	nameIdx, err := columnIndex(header, cols.Name, source)
	if err != nil {
		return nil, err
	}
	emailIdx, err := columnIndex(header, cols.Email, source)
	if err != nil {
		return nil, err
	}

	out := make([]Participant, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		out = append(out, Participant{
			Row:   i + 1,
			Name:  cell(row, nameIdx),
			Email: cell(row, emailIdx),
		})
	}
	return out, nil
}

func columnIndex(header []string, name, source string) (int, error) {
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == name {
			return i, nil
		}
	}
	return -1, errors.Validationf("%s: required column %q not found (headers: %s)",
		source, name, strings.Join(header, ", ")).
		WithField("column", name).
		WithField("source", source)
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
