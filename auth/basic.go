package auth

import (
	"encoding/base64"
	"os"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// EnvUsernameVar and EnvPasswordVar mirror oras-py's ORAS_USER/ORAS_PASS
// environment variable override, primed once at backend construction.
const (
	EnvUsernameVar = "ORAS_USER"
	EnvPasswordVar = "ORAS_PASS"
)

// BasicBackend answers Basic auth challenges directly from a Store
// lookup: no network round trip is needed beyond the original
// request that produced the challenge.
type BasicBackend struct {
	store *Store
}

// NewBasicBackend returns a BasicBackend backed by store, priming the
// store with ORAS_USER/ORAS_PASS for host if both are set in the
// environment.
func NewBasicBackend(store *Store, host string) *BasicBackend {
	if user, pass := os.Getenv(EnvUsernameVar), os.Getenv(EnvPasswordVar); user != "" && pass != "" {
		store.SetCredential(host, Credential{Username: user, Password: pass})
	}
	return &BasicBackend{store: store}
}

// Authorize returns a "Basic <base64(user:pass)>" header value for
// the challenged host.
func (b *BasicBackend) Authorize(ac AuthorizeContext) (string, error) {
	cred := ac.Credential
	if cred.Empty() {
		var err error
		cred, err = b.store.Get(ac.Host)
		if err != nil {
			return "", err
		}
	}
	if cred.Username == "" {
		return "", orerrors.New(orerrors.AuthenticationFailed, "Authorize", "no credential available for %s", ac.Host)
	}
	token := base64.StdEncoding.EncodeToString([]byte(cred.Username + ":" + cred.Password))
	return "Basic " + token, nil
}
