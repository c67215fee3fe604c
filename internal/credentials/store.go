// Package credentials persists the Gmail OAuth token and turns it into an
// authenticated HTTP client, refreshing it in place when it expires.
package credentials

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"certsend/internal/pkg/errors"
)

// ErrNoToken is returned by Store.Load when no token file exists yet.
var ErrNoToken = stderrors.New("no saved token")

// Store reads and writes the token bundle as JSON on disk.
type Store struct {
	Path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads the saved token.
func (s *Store) Load() (*oauth2.Token, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, errors.WrapWithCode(err, errors.CodeInvalidAsset, "credentials.load", "cannot read token file").
			WithField("path", s.Path)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeInvalidAsset, "credentials.load", "token file is corrupt").
			WithField("path", s.Path)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New(errors.CodeInvalidAsset, "token file holds no token").WithField("path", s.Path)
	}
	return &tok, nil
}

// Save replaces the token file atomically, readable by the owner only.
func (s *Store) Save(tok *oauth2.Token) error {
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return errors.Wrap(err, "credentials.save", "cannot encode token")
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "credentials.save", "cannot create token directory")
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return errors.Wrap(err, "credentials.save", "cannot create temp token file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "credentials.save", "cannot write token")
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "credentials.save", "cannot set token file mode")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "credentials.save", "cannot write token")
	}

	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return errors.Wrap(err, "credentials.save", "cannot replace token file")
	}
	return nil
}
