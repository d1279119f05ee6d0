package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// TokenBackend implements the Bearer challenge flow: first attempt
// an anonymous token request against the realm, and if that's
// refused, retry with HTTP Basic credentials exchanged for a token
// (the same two-step dance as oras-py's auth/token.py). Tokens are
// cached as oauth2.Token values, the same lifetime-tracking type the
// rest of the Go ecosystem uses for bearer credentials, so Valid()
// governs reuse instead of a hand-rolled expiry check.
type TokenBackend struct {
	store      *Store
	httpClient *http.Client

	mu     sync.Mutex
	tokens map[string]*oauth2.Token // keyed by realm+scope
}

// NewTokenBackend returns a TokenBackend that resolves credentials
// from store and exchanges them against the realm named in each
// Bearer challenge using httpClient (or http.DefaultClient if nil).
func NewTokenBackend(store *Store, httpClient *http.Client) *TokenBackend {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenBackend{store: store, httpClient: httpClient, tokens: map[string]*oauth2.Token{}}
}

// Authorize exchanges ac.Challenge's realm/service/scope for a
// bearer token, reusing a cached unexpired token when possible.
func (b *TokenBackend) Authorize(ac AuthorizeContext) (string, error) {
	key := ac.Challenge.Realm + "|" + ac.Challenge.Scope
	if ac.Refresh {
		b.mu.Lock()
		delete(b.tokens, key)
		b.mu.Unlock()
	} else {
		b.mu.Lock()
		if cached, ok := b.tokens[key]; ok && cached.Valid() {
			b.mu.Unlock()
			return "Bearer " + cached.AccessToken, nil
		}
		b.mu.Unlock()
	}

	token, expiresAt, err := b.fetchToken(ac)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.tokens[key] = &oauth2.Token{AccessToken: token, TokenType: "Bearer", Expiry: expiresAt}
	b.mu.Unlock()
	return "Bearer " + token, nil
}

func (b *TokenBackend) fetchToken(ac AuthorizeContext) (string, time.Time, error) {
	ctx := ac.Context
	if ctx == nil {
		ctx = context.Background()
	}

	cred := ac.Credential
	if cred.Empty() {
		var err error
		cred, err = b.store.Get(ac.Host)
		if err != nil {
			return "", time.Time{}, err
		}
	}

	if cred.Empty() {
		return b.requestToken(ctx, ac.Challenge, "")
	}
	return b.requestToken(ctx, ac.Challenge, basicHeader(cred))
}

// requestToken performs the GET against realm with service/scope
// query params, first with no Authorization header (the anonymous
// attempt), then - if basicAuth is non-empty and the anonymous
// attempt was refused - again with it set, matching token.py's
// fallback order.
func (b *TokenBackend) requestToken(ctx context.Context, ch Challenge, basicAuth string) (string, time.Time, error) {
	reqURL := ch.Realm
	q := url.Values{}
	if ch.Service != "" {
		q.Set("service", ch.Service)
	}
	if ch.Scope != "" {
		q.Set("scope", ch.Scope)
	}
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	doRequest := func(withAuth bool) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, orerrors.Wrap(err, orerrors.ProtocolError, "requestToken", "building request")
		}
		if withAuth && basicAuth != "" {
			req.Header.Set("Authorization", basicAuth)
		}
		return b.httpClient.Do(req)
	}

	resp, err := doRequest(false)
	if err != nil {
		return "", time.Time{}, orerrors.Wrap(err, orerrors.ProtocolError, "requestToken", "GET %s", reqURL)
	}
	if resp.StatusCode == http.StatusUnauthorized && basicAuth != "" {
		resp.Body.Close()
		resp, err = doRequest(true)
		if err != nil {
			return "", time.Time{}, orerrors.Wrap(err, orerrors.ProtocolError, "requestToken", "GET %s with basic auth", reqURL)
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", time.Time{}, orerrors.New(orerrors.AuthenticationFailed, "requestToken", "token endpoint %s returned %d: %s", reqURL, resp.StatusCode, string(body))
	}

	var payload struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", time.Time{}, orerrors.Wrap(err, orerrors.ProtocolError, "requestToken", "decoding token response")
	}

	token := payload.Token
	if token == "" {
		token = payload.AccessToken
	}
	if token == "" {
		return "", time.Time{}, orerrors.New(orerrors.AuthenticationFailed, "requestToken", "token endpoint %s returned no token", reqURL)
	}

	return token, expiryFor(token, payload.ExpiresIn), nil
}

// expiryFor prefers the JWT's own exp claim (peeked without signature
// verification, since we only need the lifetime, not to trust the
// claims for authorization) and falls back to expires_in, defaulting
// to 60 seconds if neither is present.
func expiryFor(token string, expiresIn int) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	if expiresIn > 0 {
		return time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
	return time.Now().Add(60 * time.Second)
}

func basicHeader(cred Credential) string {
	if cred.Username == "" {
		return ""
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(cred.Username+":"+cred.Password))
}
