// Package oauth runs an OAuth2 authorization-code flow with PKCE from a
// terminal: the consent URL is shown to the user and the provider redirects
// back to a short-lived loopback server.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/emissionkeeper/internal/identity"
	"github.com/dmitrijs2005/emissionkeeper/internal/logging"
	"github.com/go-chi/chi/v5"
)

const callbackPath = "/callback"

// Config describes one provider.
type Config struct {
	Provider     string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
	// CallbackAddr is the loopback host:port to listen on; port 0 picks a
	// free one.
	CallbackAddr string
	// Timeout bounds the whole flow, consent included.
	Timeout time.Duration
}

// Opener presents the consent URL to the user.
type Opener interface {
	Open(authURL string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(authURL string) error

func (f OpenerFunc) Open(authURL string) error { return f(authURL) }

// PrintOpener asks the user to open the URL themselves.
func PrintOpener(w io.Writer) Opener {
	return OpenerFunc(func(authURL string) error {
		_, err := fmt.Fprintf(w, "Open this URL in your browser to continue:\n\n  %s\n\n", authURL)
		return err
	})
}

// Flow implements identity.Federator.
type Flow struct {
	cfg        Config
	opener     Opener
	httpClient *http.Client
	log        logging.Logger
}

type Option func(*Flow)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Flow) { f.httpClient = c }
}

func WithLogger(l logging.Logger) Option {
	return func(f *Flow) { f.log = l }
}

func NewFlow(cfg Config, opener Opener, opts ...Option) *Flow {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.CallbackAddr == "" {
		cfg.CallbackAddr = "127.0.0.1:0"
	}
	f := &Flow{
		cfg:        cfg,
		opener:     opener,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        logging.Nop(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

type callbackResult struct {
	code string
	err  error
}

// Authenticate blocks until the provider redirects back, the timeout
// elapses or ctx is cancelled. A denied consent or a timeout yields an
// error wrapping identity.ErrFederatedCancelled.
func (f *Flow) Authenticate(ctx context.Context) (identity.Profile, error) {
	if f.cfg.ClientID == "" {
		return identity.Profile{}, identity.ErrFederationDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	state, err := generateToken(16)
	if err != nil {
		return identity.Profile{}, err
	}
	verifier, err := generateToken(48)
	if err != nil {
		return identity.Profile{}, err
	}

	ln, err := net.Listen("tcp", f.cfg.CallbackAddr)
	if err != nil {
		return identity.Profile{}, fmt.Errorf("listen for callback: %w", err)
	}
	redirectURI := "http://" + ln.Addr().String() + callbackPath

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           f.callbackRouter(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.log.Warn(ctx, "oauth callback server", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL, err := f.authURL(redirectURI, state, ComputeS256Challenge(verifier))
	if err != nil {
		return identity.Profile{}, err
	}
	if err := f.opener.Open(authURL); err != nil {
		return identity.Profile{}, fmt.Errorf("open consent url: %w", err)
	}
	f.log.Debug(ctx, "waiting for oauth callback", "provider", f.cfg.Provider, "redirect_uri", redirectURI)

	var res callbackResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return identity.Profile{}, fmt.Errorf("%w: %v", identity.ErrFederatedCancelled, ctx.Err())
	}
	if res.err != nil {
		return identity.Profile{}, res.err
	}

	accessToken, err := f.exchange(ctx, res.code, verifier, redirectURI)
	if err != nil {
		return identity.Profile{}, err
	}
	return f.profile(ctx, accessToken)
}

func (f *Flow) callbackRouter(state string, results chan<- callbackResult) http.Handler {
	r := chi.NewRouter()
	r.Get(callbackPath, func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()

		var res callbackResult
		switch {
		case q.Get("error") == "access_denied":
			res.err = identity.ErrFederatedCancelled
		case q.Get("error") != "":
			res.err = fmt.Errorf("provider error: %s %s", q.Get("error"), q.Get("error_description"))
		case q.Get("state") != state:
			res.err = errors.New("oauth state mismatch")
		case q.Get("code") == "":
			res.err = errors.New("missing authorization code")
		default:
			res.code = q.Get("code")
		}

		select {
		case results <- res:
		default:
			http.Error(w, "sign-in already completed", http.StatusConflict)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, "Sign-in failed. You can close this window.\n")
			return
		}
		_, _ = io.WriteString(w, "Signed in. You can close this window and return to the terminal.\n")
	})
	return r
}

func (f *Flow) authURL(redirectURI, state, challenge string) (string, error) {
	u, err := url.Parse(f.cfg.AuthURL)
	if err != nil {
		return "", fmt.Errorf("invalid auth url: %w", err)
	}

	query := u.Query()
	query.Set("response_type", "code")
	query.Set("client_id", f.cfg.ClientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("scope", strings.Join(f.cfg.Scopes, " "))
	query.Set("state", state)
	query.Set("code_challenge", challenge)
	query.Set("code_challenge_method", "S256")
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (f *Flow) exchange(ctx context.Context, code, verifier, redirectURI string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", f.cfg.ClientID)
	if f.cfg.ClientSecret != "" {
		form.Set("client_secret", f.cfg.ClientSecret)
	}
	form.Set("code_verifier", verifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange failed: %s", resp.Status)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", errors.New("missing access token")
	}
	return payload.AccessToken, nil
}

func (f *Flow) profile(ctx context.Context, accessToken string) (identity.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.UserInfoURL, nil)
	if err != nil {
		return identity.Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return identity.Profile{}, fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return identity.Profile{}, fmt.Errorf("userinfo failed: %s", resp.Status)
	}

	var payload struct {
		Sub   string `json:"sub"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return identity.Profile{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if payload.Sub == "" {
		return identity.Profile{}, errors.New("userinfo without subject")
	}

	return identity.Profile{
		Provider: f.cfg.Provider,
		Subject:  payload.Sub,
		Email:    payload.Email,
		Name:     payload.Name,
	}, nil
}

// ComputeS256Challenge derives the PKCE S256 challenge of verifier.
func ComputeS256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
