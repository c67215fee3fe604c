package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certsend/internal/certificate"
	"certsend/internal/mail"
	"certsend/internal/participants"
	"certsend/internal/pkg/errors"
	"certsend/internal/pkg/logger"
)

type fakeRenderer struct {
	mu    sync.Mutex
	names []string
	fail  map[string]error
}

func (f *fakeRenderer) Render(ctx context.Context, name string) (*certificate.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	return &certificate.Result{Path: filepath.Join("outputs", certificate.FileName(name)), FontSize: 46}, nil
}

type fakeMailer struct {
	mu     sync.Mutex
	sent   []mail.Message
	fail   map[string]error
	onSend func(mail.Message)
}

func (f *fakeMailer) Send(ctx context.Context, msg mail.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSend != nil {
		f.onSend(msg)
	}
	if err := f.fail[msg.To]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

type fakeArchive struct {
	keys []string
	err  error
}

func (f *fakeArchive) Store(ctx context.Context, runID, filePath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	key := runID + "/" + filepath.Base(filePath)
	f.keys = append(f.keys, key)
	return key, nil
}

func people(n int) []participants.Participant {
	out := make([]participants.Participant, n)
	for i := range out {
		out[i] = participants.Participant{
			Row:   i + 1,
			Name:  fmt.Sprintf("Person %d", i+1),
			Email: fmt.Sprintf("p%d@example.com", i+1),
		}
	}
	return out
}

func newBatch(t *testing.T, r Renderer, m Mailer, a Archiver, cfg Config) *Batch {
	t.Helper()
	if cfg.From == "" {
		cfg.From = "events@example.com"
	}
	b, err := New(Deps{Renderer: r, Mailer: m, Archive: a, Log: logger.Discard()}, cfg)
	require.NoError(t, err)
	return b
}

func TestRunSendsEveryRowInOrder(t *testing.T) {
	r := &fakeRenderer{}
	m := &fakeMailer{}
	a := &fakeArchive{}
	b := newBatch(t, r, m, a, Config{})

	report, err := b.Run(context.Background(), people(3))
	require.NoError(t, err)

	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.False(t, report.Preview)
	assert.Equal(t, 3, report.Sent)
	assert.Zero(t, report.Failed)
	assert.False(t, report.Halted)

	assert.Equal(t, []string{"Person 1", "Person 2", "Person 3"}, r.names)
	require.Len(t, m.sent, 3)
	for i, msg := range m.sent {
		assert.Equal(t, fmt.Sprintf("p%d@example.com", i+1), msg.To)
		assert.Equal(t, "events@example.com", msg.From)
		assert.Equal(t, mail.DefaultSubject, msg.Subject)
		assert.Contains(t, msg.Body, fmt.Sprintf("Dear Person %d,", i+1))
		assert.Equal(t, filepath.Join("outputs", fmt.Sprintf("Person %d.pdf", i+1)), msg.AttachmentPath)
	}

	require.Len(t, a.keys, 3)
	assert.Equal(t, report.RunID+"/Person 1.pdf", a.keys[0])
	assert.Equal(t, a.keys[0], report.Results[0].ArchiveKey)
	assert.Equal(t, "msg-1", report.Results[0].MessageID)
	assert.Equal(t, StatusSent, report.Results[0].Status)
}

func TestRunHaltsOnFirstError(t *testing.T) {
	r := &fakeRenderer{}
	m := &fakeMailer{fail: map[string]error{
		"p2@example.com": errors.WrapWithCode(fmt.Errorf("400"), errors.CodeUnavailable, "mail.send", "rejected"),
	}}
	b := newBatch(t, r, m, nil, Config{})

	report, err := b.Run(context.Background(), people(4))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnavailable))
	assert.Equal(t, errors.ExitRow, errors.GetExitCode(err))
	assert.Equal(t, 2, errors.GetFields(err)["row"])

	assert.True(t, report.Halted)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Skipped)
	assert.Len(t, r.names, 2, "rows after the failure are not rendered")
}

func TestRunContinueOnError(t *testing.T) {
	list := people(4)
	list[1].Email = ""

	r := &fakeRenderer{fail: map[string]error{"Person 3": errors.NotFound("template", "COP_template.pdf")}}
	m := &fakeMailer{}
	b := newBatch(t, r, m, nil, Config{ContinueOnError: true})

	report, err := b.Run(context.Background(), list)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 4 rows failed")
	assert.Equal(t, errors.ExitRow, errors.GetExitCode(err))

	assert.False(t, report.Halted)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 2, report.Failed)
	assert.Len(t, report.Errors(), 2)
	assert.True(t, errors.IsValidation(report.Results[1].Err))
	assert.True(t, errors.IsNotFound(report.Results[2].Err))

	assert.Equal(t, []string{"Person 1", "Person 3", "Person 4"}, r.names, "invalid rows are not rendered")
}

func TestRunAssetErrorKeepsExitCode(t *testing.T) {
	r := &fakeRenderer{fail: map[string]error{"Person 1": errors.NotFound("template", "COP_template.pdf")}}
	b := newBatch(t, r, &fakeMailer{}, nil, Config{})

	_, err := b.Run(context.Background(), people(2))
	assert.Equal(t, errors.ExitAsset, errors.GetExitCode(err))
}

func TestRunArchiveFailureAfterSend(t *testing.T) {
	m := &fakeMailer{}
	a := &fakeArchive{err: errors.Unavailable("gdrive")}
	b := newBatch(t, &fakeRenderer{}, m, a, Config{ContinueOnError: true})

	report, err := b.Run(context.Background(), people(1))
	require.Error(t, err)
	assert.Len(t, m.sent, 1)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, "msg-1", report.Results[0].MessageID)
}

func TestRunCanceledBetweenRows(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := &fakeMailer{onSend: func(msg mail.Message) {
		if msg.To == "p2@example.com" {
			cancel()
		}
	}}
	b := newBatch(t, &fakeRenderer{}, m, nil, Config{})

	report, err := b.Run(ctx, people(5))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeCanceled))
	assert.Equal(t, errors.ExitCanceled, errors.GetExitCode(err))

	assert.True(t, report.Halted)
	assert.Equal(t, 2, report.Sent, "the row in flight completes")
	assert.Equal(t, 3, report.Skipped)
}

func TestRunRequiresSender(t *testing.T) {
	b, err := New(Deps{Renderer: &fakeRenderer{}, Mailer: &fakeMailer{}, Log: logger.Discard()}, Config{})
	require.NoError(t, err)

	_, err = b.Run(context.Background(), people(1))
	assert.True(t, errors.IsValidation(err))
}

func TestRunCustomBody(t *testing.T) {
	body, err := mail.ParseBody("Hello {{.Name}}")
	require.NoError(t, err)
	m := &fakeMailer{}
	b := newBatch(t, &fakeRenderer{}, m, nil, Config{Subject: "Thanks", Body: body})

	_, err = b.Run(context.Background(), people(1))
	require.NoError(t, err)
	assert.Equal(t, "Hello Person 1", m.sent[0].Body)
	assert.Equal(t, "Thanks", m.sent[0].Subject)
}

func TestPreviewRendersOnceWithoutSending(t *testing.T) {
	r := &fakeRenderer{}
	m := &fakeMailer{}
	a := &fakeArchive{}
	b := newBatch(t, r, m, a, Config{})

	report, err := b.Preview(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Preview)
	assert.Equal(t, []string{DefaultPreviewName}, r.names)
	assert.Empty(t, m.sent)
	assert.Empty(t, a.keys)
	assert.Zero(t, report.Sent)
	require.Len(t, report.Results, 1)
	assert.Equal(t, StatusRendered, report.Results[0].Status)
	assert.Equal(t, filepath.Join("outputs", DefaultPreviewName+".pdf"), report.Results[0].Certificate)
}

func TestPreviewWritesOneCertificate(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "template.pdf")
	pdf := gofpdf.New("L", "pt", "A4", "")
	pdf.AddPage()
	require.NoError(t, pdf.OutputFileAndClose(tmpl))

	out := filepath.Join(dir, "outputs")
	r, err := certificate.New(certificate.Options{
		TemplatePath: tmpl,
		OutputDir:    out,
		Layout:       certificate.DefaultLayout(),
		Log:          logger.Discard(),
	})
	require.NoError(t, err)
	defer r.Close()

	m := &fakeMailer{}
	b := newBatch(t, r, m, nil, Config{})

	report, err := b.Preview(context.Background())
	require.NoError(t, err)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DefaultPreviewName+".pdf", entries[0].Name())
	assert.Equal(t, filepath.Join(out, DefaultPreviewName+".pdf"), report.Results[0].Certificate)
	assert.Empty(t, m.sent)
	assert.Zero(t, report.Sent)
}

func TestPreviewWorksWithoutMailer(t *testing.T) {
	b, err := New(Deps{Renderer: &fakeRenderer{}, Log: logger.Discard()}, Config{PreviewName: "Ada"})
	require.NoError(t, err)

	report, err := b.Preview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Ada", report.Results[0].Name)
}

func TestPreviewRenderFailure(t *testing.T) {
	r := &fakeRenderer{fail: map[string]error{"Ada": errors.New(errors.CodeInvalidAsset, "corrupt template")}}
	b := newBatch(t, r, nil, nil, Config{PreviewName: "Ada"})

	report, err := b.Preview(context.Background())
	assert.Equal(t, errors.ExitAsset, errors.GetExitCode(err))
	assert.Equal(t, 1, report.Failed)
}

func TestNewRequiresRenderer(t *testing.T) {
	_, err := New(Deps{}, Config{})
	assert.Error(t, err)
}
