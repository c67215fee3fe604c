package gdrive

import (
	"context"
	"io"
	"path"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"certsend/internal/pkg/errors"
	"certsend/internal/ports"
)

// Client implements ports.StorageProvider backed by Google Drive.
// Uploads are named after the last element of the object key and placed in
// the configured folder; the returned ObjectKey is the Drive file ID, which
// Get and Delete expect.
type Client struct {
	srv      *drive.Service
	folderID string
}

func NewClient(srv *drive.Service, folderID string) *Client {
	return &Client{srv: srv, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.ValidationField("object_key", "object_key is required")
	}

	file := &drive.File{
		Name:        path.Base(in.ObjectKey),
		Description: in.ObjectKey,
	}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).SupportsAllDrives(true)
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive.put", "gdrive upload failed")
	}

	return ports.PutObjectOutput{ObjectKey: created.Id, Size: in.Size}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 404 {
			return nil, "", 0, errors.NotFound("object", objectKey)
		}
		return nil, "", 0, errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive.get", "gdrive download failed")
	}

	contentType = resp.Header.Get("Content-Type")
	size = resp.ContentLength
	return resp.Body, contentType, size, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	err := c.srv.Files.Delete(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "gdrive.delete", "gdrive delete failed")
	}
	return nil
}
