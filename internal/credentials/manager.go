package credentials

import (
	"context"
	stderrors "errors"
	"net/http"

	"golang.org/x/oauth2"

	"certsend/internal/pkg/errors"
	"certsend/internal/pkg/logger"
)

// Manager hands out HTTP clients authorized with the saved token.
type Manager struct {
	conf  *oauth2.Config
	store *Store
	log   *logger.Logger

	// Interactive allows falling back to the consent flow when the saved
	// token is missing or can no longer be refreshed.
	Interactive bool
	Bootstrap   BootstrapOptions
}

// NewManager returns a manager for conf backed by store.
func NewManager(conf *oauth2.Config, store *Store, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		conf:  conf,
		store: store,
		log:   log.WithComponent("credentials"),
	}
}

// HTTPClient returns a client that authorizes every request and refreshes the
// access token as needed. A token is obtained up front so that a dead
// credential is reported before any work starts.
func (m *Manager) HTTPClient(ctx context.Context) (*http.Client, error) {
	tok, err := m.store.Load()
	switch {
	case stderrors.Is(err, ErrNoToken):
		if !m.Interactive {
			return nil, errors.Unauthorized("no saved token; run gmail-auth first").
				WithField("token_path", m.store.Path)
		}
		m.log.Info("no saved token, starting consent flow")
		if tok, err = m.bootstrap(ctx); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	client, err := m.client(ctx, tok)
	if err == nil {
		return client, nil
	}
	if !m.Interactive {
		return nil, err
	}

	m.log.Warn("saved token rejected, starting consent flow", "error", err.Error())
	if tok, err = m.bootstrap(ctx); err != nil {
		return nil, err
	}
	return m.client(ctx, tok)
}

func (m *Manager) client(ctx context.Context, tok *oauth2.Token) (*http.Client, error) {
	ts := &persistingTokenSource{
		base:  m.conf.TokenSource(ctx, tok),
		store: m.store,
		last:  tok.AccessToken,
		log:   m.log,
	}

	fresh, err := ts.Token()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnauthorized, "credentials.refresh",
			"saved token could not be refreshed; run gmail-auth again").
			WithField("token_path", m.store.Path)
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(fresh, ts)), nil
}

func (m *Manager) bootstrap(ctx context.Context) (*oauth2.Token, error) {
	opts := m.Bootstrap
	if opts.Log == nil {
		opts.Log = m.log
	}
	return Bootstrap(ctx, m.conf, m.store, opts)
}
