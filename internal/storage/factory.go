package storage

import (
	"context"
	"net/http"
	"strings"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"certsend/internal/adapters/storage/gdrive"
	"certsend/internal/adapters/storage/localfs"
	"certsend/internal/pkg/errors"
)

// Provider names accepted by NewProvider.
const (
	ProviderNone    = ""
	ProviderLocalFS = "localfs"
	ProviderGDrive  = "gdrive"
)

// Config selects the archive backend.
type Config struct {
	Provider       string
	LocalRoot      string
	GDriveFolderID string
}

// Enabled reports whether an archive backend is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Provider) != ProviderNone
}

// NewProvider builds the configured backend. httpClient must be authorized
// for the drive.file scope when the provider is gdrive; opts are passed to
// the Drive service.
func NewProvider(ctx context.Context, cfg Config, httpClient *http.Client, opts ...option.ClientOption) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderLocalFS:
		if cfg.LocalRoot == "" {
			return nil, errors.ValidationField("archive_local_root", "ARCHIVE_LOCAL_ROOT is required for localfs")
		}
		return localfs.New(cfg.LocalRoot), nil

	case ProviderGDrive:
		return newGDriveProvider(ctx, cfg, httpClient, opts...)

	default:
		return nil, errors.ValidationField("archive_provider", "unknown archive provider: "+cfg.Provider)
	}
}

func newGDriveProvider(ctx context.Context, cfg Config, httpClient *http.Client, opts ...option.ClientOption) (Provider, error) {
	if httpClient == nil {
		return nil, errors.Unauthorized("gdrive archive needs an authenticated client")
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "storage.gdrive", "cannot create Drive service")
	}

	return gdrive.NewClient(srv, cfg.GDriveFolderID), nil
}
