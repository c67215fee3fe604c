package credentials

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"certsend/internal/pkg/errors"
)

// fakeGoogle serves a token endpoint and an API endpoint that echoes the
// bearer token it was called with.
type fakeGoogle struct {
	srv      *httptest.Server
	refresh  atomic.Int32
	exchange atomic.Int32
}

func newFakeGoogle(t *testing.T) *fakeGoogle {
	t.Helper()
	f := &fakeGoogle{}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		resp := map[string]any{"token_type": "Bearer", "expires_in": 3600}
		switch r.Form.Get("grant_type") {
		case "authorization_code":
			f.exchange.Add(1)
			resp["access_token"] = "access-from-" + r.Form.Get("code")
			resp["refresh_token"] = "refresh-1"
		case "refresh_token":
			f.refresh.Add(1)
			resp["access_token"] = "refreshed-access"
		default:
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGoogle) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Scopes:       []string{"https://www.googleapis.com/auth/gmail.send"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.srv.URL + "/auth",
			TokenURL:  f.srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nested", "token.json"))

	_, err := store.Load()
	assert.ErrorIs(t, err, ErrNoToken)

	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour).Round(time.Second)}
	require.NoError(t, store.Save(tok))

	info, err := os.Stat(store.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", got.AccessToken)
	assert.Equal(t, "r", got.RefreshToken)
	assert.True(t, tok.Expiry.Equal(got.Expiry))

	entries, err := os.ReadDir(filepath.Dir(store.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestStoreLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewStore(path).Load()
	assert.True(t, errors.IsCode(err, errors.CodeInvalidAsset))

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err = NewStore(path).Load()
	assert.True(t, errors.IsCode(err, errors.CodeInvalidAsset))
}

func TestOAuthConfigFromSecretsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	secrets := `{"installed":{"client_id":"id-1","client_secret":"s-1",` +
		`"auth_uri":"https://accounts.google.com/o/oauth2/auth",` +
		`"token_uri":"https://oauth2.googleapis.com/token",` +
		`"redirect_uris":["http://localhost"]}}`
	require.NoError(t, os.WriteFile(path, []byte(secrets), 0o600))

	conf, err := OAuthConfig(path, "ignored", "ignored", []string{"scope-a"})
	require.NoError(t, err)
	assert.Equal(t, "id-1", conf.ClientID)
	assert.Equal(t, []string{"scope-a"}, conf.Scopes)
}

func TestOAuthConfigFallbacks(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "credentials.json")

	conf, err := OAuthConfig(missing, "id-2", "s-2", []string{"scope-b"})
	require.NoError(t, err)
	assert.Equal(t, "id-2", conf.ClientID)
	assert.Contains(t, conf.Endpoint.TokenURL, "googleapis.com")

	_, err = OAuthConfig(missing, "", "", nil)
	assert.True(t, errors.IsNotFound(err))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("[]"), 0o600))
	_, err = OAuthConfig(bad, "", "", nil)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidAsset))
}

func TestManagerUsesValidToken(t *testing.T) {
	g := newFakeGoogle(t)
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, store.Save(&oauth2.Token{
		AccessToken: "still-good", RefreshToken: "r", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour),
	}))

	client, err := NewManager(g.config(), store, nil).HTTPClient(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer still-good", get(t, client, g.srv.URL+"/api"))
	assert.Zero(t, g.refresh.Load())
}

func TestManagerRefreshesAndPersists(t *testing.T) {
	g := newFakeGoogle(t)
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, store.Save(&oauth2.Token{
		AccessToken: "stale", RefreshToken: "keep-me", TokenType: "Bearer", Expiry: time.Now().Add(-time.Hour),
	}))

	client, err := NewManager(g.config(), store, nil).HTTPClient(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), g.refresh.Load())
	assert.Equal(t, "Bearer refreshed-access", get(t, client, g.srv.URL+"/api"))

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", saved.AccessToken)
	assert.Equal(t, "keep-me", saved.RefreshToken)
}

func TestManagerWithoutToken(t *testing.T) {
	g := newFakeGoogle(t)
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))

	_, err := NewManager(g.config(), store, nil).HTTPClient(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsUnauthorized(err))
	assert.Contains(t, err.Error(), "gmail-auth")
}

func TestManagerExpiredWithoutRefreshToken(t *testing.T) {
	g := newFakeGoogle(t)
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, store.Save(&oauth2.Token{AccessToken: "stale", Expiry: time.Now().Add(-time.Hour)}))

	_, err := NewManager(g.config(), store, nil).HTTPClient(context.Background())
	assert.True(t, errors.IsUnauthorized(err))
}

func TestBootstrap(t *testing.T) {
	g := newFakeGoogle(t)
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))

	tok, err := Bootstrap(context.Background(), g.config(), store, BootstrapOptions{
		Out:     io.Discard,
		Timeout: 5 * time.Second,
		OnURL:   completeConsent(t, "abc"),
	})
	require.NoError(t, err)
	assert.Equal(t, "access-from-abc", tok.AccessToken)
	assert.Equal(t, int32(1), g.exchange.Load())

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", saved.RefreshToken)
}

func TestBootstrapRejectsBadState(t *testing.T) {
	g := newFakeGoogle(t)
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))

	_, err := Bootstrap(context.Background(), g.config(), store, BootstrapOptions{
		Out:     io.Discard,
		Timeout: 5 * time.Second,
		OnURL: func(authURL string) {
			u, _ := url.Parse(authURL)
			go func() {
				resp, err := http.Get(u.Query().Get("redirect_uri") + "?code=abc&state=forged")
				if err == nil {
					resp.Body.Close()
				}
			}()
		},
	})
	assert.True(t, errors.IsUnauthorized(err))
	assert.Zero(t, g.exchange.Load())

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestBootstrapTimeout(t *testing.T) {
	g := newFakeGoogle(t)
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))

	_, err := Bootstrap(context.Background(), g.config(), store, BootstrapOptions{
		Out:     io.Discard,
		Timeout: 50 * time.Millisecond,
	})
	assert.True(t, errors.IsCode(err, errors.CodeTimeout))
}

func TestManagerInteractiveFallback(t *testing.T) {
	g := newFakeGoogle(t)
	store := NewStore(filepath.Join(t.TempDir(), "token.json"))

	m := NewManager(g.config(), store, nil)
	m.Interactive = true
	m.Bootstrap = BootstrapOptions{Out: io.Discard, Timeout: 5 * time.Second, OnURL: completeConsent(t, "xyz")}

	client, err := m.HTTPClient(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer access-from-xyz", get(t, client, g.srv.URL+"/api"))
}

// completeConsent plays the browser: it follows the redirect back to the
// loopback callback with the given code and the state from the consent URL.
func completeConsent(t *testing.T, code string) func(string) {
	return func(authURL string) {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		q := u.Query()
		assert.Equal(t, "offline", q.Get("access_type"))
		assert.Equal(t, "consent", q.Get("prompt"))

		cb := q.Get("redirect_uri") + "?code=" + code + "&state=" + url.QueryEscape(q.Get("state"))
		go func() {
			resp, err := http.Get(cb)
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
}

func get(t *testing.T, c *http.Client, u string) string {
	t.Helper()
	resp, err := c.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
