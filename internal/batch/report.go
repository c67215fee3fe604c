package batch

import (
	"time"

	"certsend/internal/participants"
)

// Status is the outcome of one row.
type Status string

const (
	StatusSent     Status = "sent"
	StatusRendered Status = "rendered"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// RowResult records what happened to one participant.
type RowResult struct {
	Row         int
	Name        string
	Email       string
	Status      Status
	Certificate string
	FontSize    int
	MessageID   string
	ArchiveKey  string
	Duration    time.Duration
	Err         error
}

// Report summarizes a run. Sent counts delivered emails, so a row whose
// archive copy failed after delivery counts as both sent and failed.
type Report struct {
	RunID     string
	Preview   bool
	StartedAt time.Time
	Duration  time.Duration
	Results   []RowResult
	Sent      int
	Failed    int
	Skipped   int
	// Halted is set when the run stopped before the last row.
	Halted bool
}

func (r *Report) add(res RowResult) {
	r.Results = append(r.Results, res)
	if res.MessageID != "" {
		r.Sent++
	}
	switch res.Status {
	case StatusFailed:
		r.Failed++
	case StatusSkipped:
		r.Skipped++
	}
}

func (r *Report) skip(rest []participants.Participant) {
	for _, p := range rest {
		r.add(RowResult{Row: p.Row, Name: p.Name, Email: p.Email, Status: StatusSkipped})
	}
}

// Errors returns the per-row errors in row order.
func (r *Report) Errors() []error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errs
}
