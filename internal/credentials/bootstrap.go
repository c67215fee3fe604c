package credentials

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"certsend/internal/pkg/errors"
	"certsend/internal/pkg/logger"
	"certsend/internal/pkg/middleware"
)

const (
	defaultListenAddr    = "127.0.0.1:0"
	defaultConsentWindow = 3 * time.Minute
)

// BootstrapOptions tunes the interactive consent flow.
type BootstrapOptions struct {
	// ListenAddr is where the loopback callback listens. Defaults to a free
	// port on 127.0.0.1.
	ListenAddr string
	// Timeout bounds the wait for the browser redirect.
	Timeout time.Duration
	// Out receives the consent URL and instructions. Defaults to os.Stdout.
	Out io.Writer
	// OnURL, when set, is called with the consent URL once the callback is
	// listening, e.g. to open a browser.
	OnURL func(authURL string)
	Log   *logger.Logger
}

func (o *BootstrapOptions) defaults() {
	if o.ListenAddr == "" {
		o.ListenAddr = defaultListenAddr
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultConsentWindow
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Log == nil {
		o.Log = logger.Discard()
	}
}

type callbackResult struct {
	code string
	err  error
}

// Bootstrap runs the installed-app consent flow: it serves a loopback
// callback, asks the user to open the consent URL, exchanges the returned
// code and saves the token to store.
func Bootstrap(ctx context.Context, conf *oauth2.Config, store *Store, opts BootstrapOptions) (*oauth2.Token, error) {
	opts.defaults()

	ln, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return nil, errors.Wrap(err, "credentials.bootstrap", "cannot listen for OAuth callback")
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	redirectURL := fmt.Sprintf("http://127.0.0.1:%d/callback", port)

	c := *conf
	c.RedirectURL = redirectURL

	state, err := randomState()
	if err != nil {
		return nil, errors.Wrap(err, "credentials.bootstrap", "cannot generate state")
	}

	resultCh := make(chan callbackResult, 1)
	deliver := func(r callbackResult) {
		select {
		case resultCh <- r:
		default:
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(opts.Log), middleware.Logging(opts.Log))
	r.Get("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "invalid state", http.StatusBadRequest)
			deliver(callbackResult{err: errors.Unauthorized("OAuth callback carried an invalid state")})
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "auth error: "+e, http.StatusBadRequest)
			deliver(callbackResult{err: errors.Unauthorized("consent was not granted: " + e)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			deliver(callbackResult{err: errors.Unauthorized("OAuth callback carried no code")})
			return
		}

		fmt.Fprintln(w, "Authorization received. You can close this window and return to the terminal.")
		deliver(callbackResult{code: code})
	})

	srv := &http.Server{
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		_ = srv.Serve(ln)
	}()
	defer srv.Close()

	// offline + consent so Google hands out a refresh token every time
	authURL := c.AuthCodeURL(
		state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	fmt.Fprintln(opts.Out, "\nOpen this URL in your browser to authorize sending mail:")
	fmt.Fprintln(opts.Out, "\n"+authURL)
	fmt.Fprintln(opts.Out, "\nWaiting for authorization on", redirectURL)
	if opts.OnURL != nil {
		opts.OnURL(authURL)
	}

	var code string
	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		code = res.code
	case <-time.After(opts.Timeout):
		return nil, errors.New(errors.CodeTimeout, "timed out waiting for authorization").
			WithField("timeout", opts.Timeout.String())
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "credentials.bootstrap", "authorization interrupted")
	}

	tok, err := c.Exchange(ctx, code)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnauthorized, "credentials.bootstrap", "code exchange failed")
	}

	if strings.TrimSpace(tok.RefreshToken) == "" {
		opts.Log.Warn("no refresh token returned; revoke the app at https://myaccount.google.com/permissions and authorize again")
	}

	if err := store.Save(tok); err != nil {
		return nil, err
	}
	opts.Log.Info("token saved", "path", store.Path)
	return tok, nil
}

func randomState() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
