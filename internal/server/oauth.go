package server

import (
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/linage/linapush/internal/shared"
)

// CallbackPath is where the identity provider redirects after the user signs in.
const CallbackPath = "/oauth/callback"

// LoginResult is the outcome of one authorization code flow.
type LoginResult struct {
	Token *oauth2.Token
	Err   error
}

// NewOAuthConfig builds the [oauth2.Config] for the backend identity provider.
// redirectURL must point at [CallbackPath] on the local listener.
func NewOAuthConfig(cfg shared.OAuthConfig, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
		RedirectURL: redirectURL,
		Scopes:      cfg.Scopes,
	}
}

// LoginHandler completes a PKCE authorization code flow that issues the backend bearer token.
//
// It accepts exactly one callback. Later requests get 409 so a replayed redirect cannot overwrite the result.
type LoginHandler struct {
	config   *oauth2.Config
	state    string
	verifier string

	mu      sync.Mutex
	handled bool
	result  chan LoginResult
}

// NewLoginHandler creates a [LoginHandler]. state must be unguessable.
func NewLoginHandler(config *oauth2.Config, state string) *LoginHandler {
	return &LoginHandler{
		config:   config,
		state:    state,
		verifier: oauth2.GenerateVerifier(),
		result:   make(chan LoginResult, 1),
	}
}

// AuthURL is the page the user opens to sign in.
func (h *LoginHandler) AuthURL() string {
	return h.config.AuthCodeURL(h.state, oauth2.S256ChallengeOption(h.verifier))
}

// Routes returns the HTTP routes this handler serves.
func (h *LoginHandler) Routes() []string {
	return []string{"GET " + CallbackPath}
}

// ServeHTTP validates the callback and exchanges the code for a token.
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.handled {
		h.mu.Unlock()
		http.Error(w, "callback already processed", http.StatusConflict)
		return
	}
	h.handled = true
	h.mu.Unlock()

	q := r.URL.Query()
	if q.Get("state") != h.state {
		h.finish(LoginResult{Err: fmt.Errorf("%w: state mismatch", shared.ErrAuthFailed)})
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		h.finish(LoginResult{Err: fmt.Errorf("%w: %s %s", shared.ErrAuthFailed, q.Get("error"), q.Get("error_description"))})
		http.Error(w, "authorization denied", http.StatusBadRequest)
		return
	}

	token, err := h.config.Exchange(r.Context(), code, oauth2.VerifierOption(h.verifier))
	if err != nil {
		h.finish(LoginResult{Err: fmt.Errorf("%w: token exchange: %v", shared.ErrAuthFailed, err)})
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}

	h.finish(LoginResult{Token: token})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "Signed in. You can close this window and return to the terminal.")
}

func (h *LoginHandler) finish(res LoginResult) {
	h.result <- res
	close(h.result)
}

// Result receives exactly one [LoginResult] and is then closed.
func (h *LoginHandler) Result() <-chan LoginResult {
	return h.result
}
