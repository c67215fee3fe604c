package storage

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"certsend/internal/pkg/errors"
	"certsend/internal/ports"
)

// Archive copies rendered certificates into a provider under
// "<runID>/<file name>".
type Archive struct {
	provider Provider
}

// NewArchive wraps p.
func NewArchive(p Provider) *Archive {
	return &Archive{provider: p}
}

// Provider returns the backend name.
func (a *Archive) Provider() string {
	return a.provider.Provider()
}

// ObjectKey is the key a file is archived under for a run.
func ObjectKey(runID, filePath string) string {
	return path.Join(runID, filepath.Base(filePath))
}

// Store uploads the file at filePath and returns the provider's object key.
func (a *Archive) Store(ctx context.Context, runID, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", errors.Wrap(err, "archive.store", "cannot open certificate")
	}
	defer f.Close()

	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}

	out, err := a.provider.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   ObjectKey(runID, filePath),
		ContentType: "application/pdf",
		Reader:      f,
		Size:        size,
	})
	if err != nil {
		return "", errors.Wrap(err, "archive.store", "archive upload failed").
			WithField("provider", a.provider.Provider())
	}
	return out.ObjectKey, nil
}
