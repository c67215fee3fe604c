package credentials

import (
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"certsend/internal/pkg/errors"
)

// OAuthConfig builds the installed-app OAuth config. The client secrets file
// downloaded from the Google Cloud console wins; clientID/clientSecret are the
// fallback when that file does not exist.
func OAuthConfig(secretsPath, clientID, clientSecret string, scopes []string) (*oauth2.Config, error) {
	if secretsPath != "" {
		b, err := os.ReadFile(secretsPath)
		switch {
		case err == nil:
			conf, err := google.ConfigFromJSON(b, scopes...)
			if err != nil {
				return nil, errors.WrapWithCode(err, errors.CodeInvalidAsset, "credentials.config", "invalid client secrets file").
					WithField("path", secretsPath)
			}
			return conf, nil
		case !os.IsNotExist(err):
			return nil, errors.WrapWithCode(err, errors.CodeInvalidAsset, "credentials.config", "cannot read client secrets file").
				WithField("path", secretsPath)
		}
	}

	if strings.TrimSpace(clientID) == "" || strings.TrimSpace(clientSecret) == "" {
		return nil, errors.NotFound("client secrets", secretsPath).
			WithField("hint", "download credentials.json or set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}, nil
}
