// Package auth discovers registry credentials and turns them into
// the Authorization headers a registry.Client request needs, via a
// set of pluggable backends (Basic, Token, ECR).
package auth

// Credential is a resolved username/password (or identity token)
// pair for a single registry host.
type Credential struct {
	Username string
	Password string

	// IdentityToken holds the identitytoken field of a config.json
	// auths entry. No backend sends it: BasicBackend and TokenBackend
	// use Username/Password only, so a credential carrying just an
	// IdentityToken gets an anonymous token request.
	IdentityToken string
}

// Empty reports whether c carries no usable credential at all.
func (c Credential) Empty() bool {
	return c.Username == "" && c.Password == "" && c.IdentityToken == ""
}

// Backend exchanges a Credential (or its own ambient state, for ECR)
// for an Authorization header value to send on the next request.
type Backend interface {
	// Authorize returns the header value (e.g. "Bearer xyz" or
	// "Basic xyz") to send for a request to host needing the given
	// scope (the distribution "repository:name:pull,push" string),
	// given the challenge the server issued on the unauthenticated attempt.
	Authorize(ctx AuthorizeContext) (string, error)
}
