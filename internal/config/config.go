// Package config loads certsend settings from an optional .env file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/sheets/v4"
	"gopkg.in/yaml.v3"

	"certsend/internal/batch"
	"certsend/internal/certificate"
	"certsend/internal/mail"
	"certsend/internal/participants"
	"certsend/internal/pkg/errors"
	"certsend/internal/storage"
)

type Config struct {
	Certificate  CertificateConfig
	Participants participants.Options
	Mail         MailConfig
	Google       GoogleConfig
	Run          RunConfig
	Archive      storage.Config
}

type CertificateConfig struct {
	TemplatePath string
	OutputDir    string
	// ProfilePath is an optional YAML calibration profile for Layout.
	ProfilePath string
	Layout      certificate.Layout
}

type MailConfig struct {
	From    string
	Subject string
	// BodyTemplatePath is a text/template file; empty means the stock body.
	BodyTemplatePath string
}

type GoogleConfig struct {
	ClientSecretsPath string
	ClientID          string
	ClientSecret      string
	TokenPath         string
	// Interactive lets the sender run the consent flow itself when the saved
	// token is missing or dead.
	Interactive bool
}

type RunConfig struct {
	Preview         bool
	PreviewName     string
	ContinueOnError bool
}

// LoadDotEnv loads .env from the working directory if present. Variables
// already set in the environment are not overridden.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Load builds the configuration from the environment and args. name is
// used in flag usage output.
func Load(name string, args []string) (*Config, error) {
	var cfg Config
	var errs []error

	fs := flag.NewFlagSet(name, flag.ContinueOnError)

	fs.StringVar(&cfg.Certificate.TemplatePath, "template", getEnv("CERT_TEMPLATE_PATH", "COP_template.pdf"), "certificate template PDF")
	fs.StringVar(&cfg.Certificate.OutputDir, "out", getEnv("CERT_OUTPUT_DIR", "outputs"), "directory for rendered certificates")
	fs.StringVar(&cfg.Certificate.ProfilePath, "profile", getEnv("CERT_PROFILE", ""), "YAML layout calibration profile")

	cfg.Participants = participants.Options{
		Sheet:         getEnv("PARTICIPANTS_SHEET", ""),
		SpreadsheetID: getEnv("PARTICIPANTS_SPREADSHEET_ID", ""),
		Range:         getEnv("PARTICIPANTS_RANGE", "A:Z"),
		Columns: participants.Columns{
			Name:  getEnv("PARTICIPANTS_NAME_COLUMN", "NAME"),
			Email: getEnv("PARTICIPANTS_EMAIL_COLUMN", "EMAIL"),
		},
	}
	fs.StringVar(&cfg.Participants.Path, "participants", getEnv("PARTICIPANTS_PATH", "attended_list_final.csv"), "participant list (.csv or .xlsx)")

	fs.StringVar(&cfg.Mail.From, "from", getEnv("MAIL_FROM", ""), "sender address")
	cfg.Mail.Subject = getEnv("MAIL_SUBJECT", mail.DefaultSubject)
	cfg.Mail.BodyTemplatePath = getEnv("MAIL_BODY_TEMPLATE", "")

	cfg.Google = GoogleConfig{
		ClientSecretsPath: getEnv("GOOGLE_CLIENT_SECRETS", "credentials.json"),
		ClientID:          getEnv("GOOGLE_CLIENT_ID", ""),
		ClientSecret:      getEnv("GOOGLE_CLIENT_SECRET", ""),
		Interactive:       boolEnv("AUTH_INTERACTIVE", false),
	}
	fs.StringVar(&cfg.Google.TokenPath, "token", getEnv("GOOGLE_TOKEN_PATH", "token.json"), "saved OAuth token")

	fs.BoolVar(&cfg.Run.Preview, "preview", boolEnv("PREVIEW_MODE", false), "render one certificate and send nothing")
	fs.StringVar(&cfg.Run.PreviewName, "preview-name", getEnv("PREVIEW_NAME", batch.DefaultPreviewName), "name used in preview mode")
	fs.BoolVar(&cfg.Run.ContinueOnError, "continue-on-error", boolEnv("CONTINUE_ON_ERROR", false), "keep going after a failed row")

	cfg.Archive = storage.Config{
		Provider:       getEnv("ARCHIVE_PROVIDER", storage.ProviderNone),
		LocalRoot:      getEnv("ARCHIVE_LOCAL_ROOT", "archive"),
		GDriveFolderID: getEnv("ARCHIVE_GDRIVE_FOLDER_ID", ""),
	}

	if err := fs.Parse(args); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "config.flags", "invalid command line")
	}

	layout, err := loadLayout(cfg.Certificate.ProfilePath)
	if err != nil {
		return nil, err
	}
	errs = append(errs, layoutFromEnv(&layout)...)
	cfg.Certificate.Layout = layout

	if len(errs) > 0 {
		return nil, errors.WrapWithCode(errors.Join(errs...), errors.CodeValidation, "config.env", "invalid environment")
	}
	return &cfg, nil
}

// loadLayout starts from the default layout and applies the profile on top.
// Keys absent from the profile keep their defaults.
func loadLayout(path string) (certificate.Layout, error) {
	layout := certificate.DefaultLayout()
	if strings.TrimSpace(path) == "" {
		return layout, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return layout, errors.NotFound("layout profile", path)
		}
		return layout, errors.WrapWithCode(err, errors.CodeInvalidAsset, "config.profile", "cannot read layout profile")
	}
	if err := yaml.Unmarshal(b, &layout); err != nil {
		return layout, errors.WrapWithCode(err, errors.CodeInvalidAsset, "config.profile", "invalid layout profile").
			WithField("path", path)
	}
	return layout, nil
}

// layoutFromEnv applies CERT_* overrides that are set.
func layoutFromEnv(l *certificate.Layout) []error {
	var errs []error
	intVar := func(key string, dst *int) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, errors.ValidationField(key, key+" must be an integer, got "+strconv.Quote(v)))
			return
		}
		*dst = n
	}
	floatVar := func(key string, dst *float64) {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, errors.ValidationField(key, key+" must be a number, got "+strconv.Quote(v)))
			return
		}
		*dst = f
	}

	intVar("CERT_MAX_FONT_SIZE", &l.MaxFontSize)
	intVar("CERT_MIN_FONT_SIZE", &l.MinFontSize)
	floatVar("CERT_MAX_TEXT_WIDTH", &l.MaxTextWidth)
	floatVar("CERT_CENTER_X", &l.CenterX)
	floatVar("CERT_BASELINE_Y", &l.BaselineY)
	return errs
}

// Validate checks the settings a full run needs. Preview mode only needs the
// certificate settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Certificate.TemplatePath) == "" {
		return errors.ValidationField("template", "template path is required")
	}
	if strings.TrimSpace(c.Certificate.OutputDir) == "" {
		return errors.ValidationField("out", "output directory is required")
	}
	if err := c.Certificate.Layout.Validate(); err != nil {
		return err
	}
	if c.Run.Preview {
		return nil
	}

	if strings.TrimSpace(c.Mail.From) == "" {
		return errors.ValidationField("from", "MAIL_FROM is required unless running in preview mode")
	}
	if !c.Participants.UsesSheets() && strings.TrimSpace(c.Participants.Path) == "" {
		return errors.ValidationField("participants", "participant list path or spreadsheet ID is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Archive.Provider)) {
	case storage.ProviderNone, storage.ProviderLocalFS, storage.ProviderGDrive:
	default:
		return errors.ValidationField("archive_provider", "unknown archive provider: "+c.Archive.Provider)
	}
	return nil
}

// Scopes lists the OAuth scopes the configured run needs. The sender and
// gmail-auth both use it so a bootstrapped token always covers the run.
func (c *Config) Scopes() []string {
	scopes := []string{gmail.GmailSendScope}
	if strings.EqualFold(strings.TrimSpace(c.Archive.Provider), storage.ProviderGDrive) {
		scopes = append(scopes, drive.DriveFileScope)
	}
	if c.Participants.UsesSheets() {
		scopes = append(scopes, sheets.SpreadsheetsReadonlyScope)
	}
	return scopes
}

func getEnv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

// boolEnv reads an env var as bool. If empty or invalid, returns def.
func boolEnv(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
