package credentials

import (
	"sync"

	"golang.org/x/oauth2"

	"certsend/internal/pkg/logger"
)

// persistingTokenSource writes every newly minted token back to the store so
// the next run starts from the refreshed credential.
type persistingTokenSource struct {
	mu    sync.Mutex
	base  oauth2.TokenSource
	store *Store
	last  string
	log   *logger.Logger
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		if err := s.store.Save(tok); err != nil {
			// The token is still good for this run.
			s.log.Warn("failed to persist refreshed token", "error", err.Error())
		} else {
			s.log.Info("token refreshed", "expiry", tok.Expiry)
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
