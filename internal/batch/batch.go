// Package batch drives a certificate run: for every participant it renders
// the certificate, emails it and optionally archives a copy.
package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"certsend/internal/certificate"
	"certsend/internal/mail"
	"certsend/internal/participants"
	"certsend/internal/pkg/errors"
	"certsend/internal/pkg/logger"
)

// DefaultPreviewName is rendered in preview mode when no name is configured.
const DefaultPreviewName = "BUDDA NAGA SAMBA S V DURGA SAI"

// Renderer produces one certificate file per name.
type Renderer interface {
	Render(ctx context.Context, name string) (*certificate.Result, error)
}

// Mailer delivers a message and returns the provider's message ID.
type Mailer interface {
	Send(ctx context.Context, msg mail.Message) (string, error)
}

// Archiver keeps a copy of a rendered certificate.
type Archiver interface {
	Store(ctx context.Context, runID, filePath string) (string, error)
}

// Deps are the collaborators a Batch drives.
type Deps struct {
	Renderer Renderer
	Mailer   Mailer
	// Archive is optional.
	Archive Archiver
	Log     *logger.Logger
}

// Config holds the per-run mail settings.
type Config struct {
	From    string
	Subject string
	// Body defaults to mail.DefaultBody.
	Body            *mail.BodyTemplate
	ContinueOnError bool
	PreviewName     string
}

// Batch renders and sends one certificate per participant, in list order.
type Batch struct {
	renderer Renderer
	mailer   Mailer
	archive  Archiver
	cfg      Config
	log      *logger.Logger
}

// New returns a Batch. Only the renderer is required; Run also needs a mailer.
func New(d Deps, cfg Config) (*Batch, error) {
	if d.Renderer == nil {
		return nil, errors.Internal("batch needs a renderer")
	}

	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	if cfg.Subject == "" {
		cfg.Subject = mail.DefaultSubject
	}
	if cfg.PreviewName == "" {
		cfg.PreviewName = DefaultPreviewName
	}
	if cfg.Body == nil {
		body, err := mail.ParseBody(mail.DefaultBody)
		if err != nil {
			return nil, err
		}
		cfg.Body = body
	}

	return &Batch{
		renderer: d.Renderer,
		mailer:   d.Mailer,
		archive:  d.Archive,
		cfg:      cfg,
		log:      log.WithComponent("batch"),
	}, nil
}

func newReport(preview bool) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Preview:   preview,
		StartedAt: time.Now(),
	}
}

// Preview renders a single certificate for the configured preview name. It
// never sends mail or archives anything.
func (b *Batch) Preview(ctx context.Context) (*Report, error) {
	report := newReport(true)
	log := b.log.WithRunID(report.RunID)
	start := time.Now()

	res := RowResult{Row: 1, Name: b.cfg.PreviewName}
	cert, err := b.renderer.Render(ctx, b.cfg.PreviewName)
	res.Duration = time.Since(start)
	if err != nil {
		res.Status = StatusFailed
		res.Err = errors.Wrap(err, "batch.preview", "preview render failed")
		report.add(res)
		report.Duration = time.Since(report.StartedAt)
		return report, res.Err
	}

	res.Status = StatusRendered
	res.Certificate = cert.Path
	res.FontSize = cert.FontSize
	report.add(res)
	report.Duration = time.Since(report.StartedAt)

	log.Info("preview certificate generated",
		"path", cert.Path,
		"name", b.cfg.PreviewName,
		"font_size", cert.FontSize,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return report, nil
}

// Run processes participants in order. By default the first failing row
// stops the run and its error is returned; with ContinueOnError every row is
// attempted and a summary error is returned if any failed. Cancellation is
// honored between rows; rows not reached are reported as skipped.
func (b *Batch) Run(ctx context.Context, list []participants.Participant) (*Report, error) {
	if b.mailer == nil {
		return nil, errors.Internal("batch run needs a mailer")
	}
	if strings.TrimSpace(b.cfg.From) == "" {
		return nil, errors.ValidationField("mail_from", "sender address is required")
	}

	report := newReport(false)
	ctx = logger.ContextWithRunID(ctx, report.RunID)
	log := b.log.WithRunID(report.RunID)

	log.Info("batch started",
		"rows", len(list),
		"continue_on_error", b.cfg.ContinueOnError,
		"archive", b.archive != nil,
	)

	finish := func(err error) (*Report, error) {
		report.Duration = time.Since(report.StartedAt)
		log.Info("batch finished",
			"sent", report.Sent,
			"failed", report.Failed,
			"skipped", report.Skipped,
			"halted", report.Halted,
			"duration_ms", report.Duration.Milliseconds(),
		)
		return report, err
	}

	for i, p := range list {
		if err := ctx.Err(); err != nil {
			report.Halted = true
			report.skip(list[i:])
			log.Warn("batch interrupted", "remaining", len(list)-i)
			return finish(errors.Wrap(err, "batch.run", "batch interrupted"))
		}

		res := b.processRow(ctx, log, report.RunID, p)
		report.add(res)
		if res.Err == nil {
			continue
		}

		// A send cut short by a signal is an interruption, not a row failure.
		if ctxErr := ctx.Err(); ctxErr != nil {
			report.Halted = true
			report.skip(list[i+1:])
			log.Warn("batch interrupted", "remaining", len(list)-i-1)
			return finish(errors.Wrap(ctxErr, "batch.run", "batch interrupted"))
		}

		if !b.cfg.ContinueOnError {
			report.Halted = i < len(list)-1
			report.skip(list[i+1:])
			return finish(res.Err)
		}
	}

	if report.Failed > 0 {
		return finish(errors.WrapWithCode(errors.Join(report.Errors()...), errors.CodeUnavailable, "batch.run",
			fmt.Sprintf("%d of %d rows failed", report.Failed, len(list))))
	}
	return finish(nil)
}

// processRow runs one participant through the pipeline.
func (b *Batch) processRow(ctx context.Context, log *logger.Logger, runID string, p participants.Participant) RowResult {
	start := time.Now()
	log = log.WithRow(p.Row)
	res := RowResult{Row: p.Row, Name: p.Name, Email: p.Email}

	fail := func(err error, op, msg string) RowResult {
		res.Status = StatusFailed
		res.Duration = time.Since(start)
		res.Err = errors.Wrap(err, op, msg).WithFields(map[string]any{
			"row":   p.Row,
			"name":  p.Name,
			"email": p.Email,
		})
		log.Error(msg,
			"name", p.Name,
			"email", p.Email,
			"error", err.Error(),
			"duration_ms", res.Duration.Milliseconds(),
		)
		return res
	}

	// 1. Validate
	if err := p.Validate(); err != nil {
		return fail(err, "batch.validate", "invalid participant row")
	}

	// 2. Render
	cert, err := b.renderer.Render(ctx, p.Name)
	if err != nil {
		return fail(err, "batch.render", "certificate render failed")
	}
	res.Certificate = cert.Path
	res.FontSize = cert.FontSize

	// 3. Personalize body
	body, err := b.cfg.Body.Render(mail.BodyData{Name: p.Name, Email: p.Email})
	if err != nil {
		return fail(err, "batch.body", "email body render failed")
	}

	// 4. Send
	id, err := b.mailer.Send(ctx, mail.Message{
		From:           b.cfg.From,
		To:             p.Email,
		Subject:        b.cfg.Subject,
		Body:           body,
		AttachmentPath: cert.Path,
	})
	if err != nil {
		return fail(err, "batch.send", "email send failed")
	}
	res.MessageID = id

	// 5. Archive
	if b.archive != nil {
		key, err := b.archive.Store(ctx, runID, cert.Path)
		if err != nil {
			return fail(err, "batch.archive", "certificate sent but archive copy failed")
		}
		res.ArchiveKey = key
	}

	res.Status = StatusSent
	res.Duration = time.Since(start)
	log.Info("certificate sent",
		"name", p.Name,
		"email", p.Email,
		"font_size", cert.FontSize,
		"message_id", id,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res
}
