package localfs

import (
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"certsend/internal/pkg/errors"
	"certsend/internal/ports"
)

// LocalFS implements ports.StorageProvider using the local filesystem.
// It stores objects under a configured root directory.
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Provider() string { return "localfs" }

// path maps an object key below root, refusing keys that climb out of it.
func (l *LocalFS) path(objectKey string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(objectKey))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.ValidationField("object_key", "object key escapes the archive root: "+objectKey)
	}
	return filepath.Join(l.root, clean), nil
}

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.ValidationField("object_key", "object_key is required")
	}
	dst, err := l.path(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, "localfs.put", "cannot create archive directory")
	}

	outF, err := os.Create(dst)
	if err != nil {
		return ports.PutObjectOutput{}, errors.Wrap(err, "localfs.put", "cannot create archive file")
	}

	n, err := io.Copy(outF, in.Reader)
	if err != nil {
		_ = outF.Close()
		_ = os.Remove(dst)
		return ports.PutObjectOutput{}, errors.Wrap(err, "localfs.put", "cannot write archive file")
	}
	if err := outF.Close(); err != nil {
		_ = os.Remove(dst)
		return ports.PutObjectOutput{}, errors.Wrap(err, "localfs.put", "cannot flush archive file")
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	p, err := l.path(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", 0, errors.NotFound("object", objectKey)
		}
		return nil, "", 0, errors.Wrap(err, "localfs.get", "cannot open archive file")
	}

	st, statErr := f.Stat()
	if statErr == nil {
		size = st.Size()
	}

	// Prefer extension-based type. If empty, sniff first bytes.
	contentType = mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, 0)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

func (l *LocalFS) DeleteObject(ctx context.Context, objectKey string) error {
	p, err := l.path(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound("object", objectKey)
		}
		return errors.Wrap(err, "localfs.delete", "cannot remove archive file")
	}
	return nil
}
