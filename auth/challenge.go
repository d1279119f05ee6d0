package auth

import (
	"context"
	"strings"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// Challenge is a parsed WWW-Authenticate header: a scheme (Basic or
// Bearer) plus its parameters (realm, service, scope for Bearer).
type Challenge struct {
	Scheme string
	Realm  string
	Service string
	Scope   string
}

// AuthorizeContext carries everything a Backend needs to answer one
// challenge for one request.
type AuthorizeContext struct {
	Context    context.Context
	Host       string
	Challenge  Challenge
	Credential Credential

	// Refresh, when true, tells the backend to discard any cached
	// token for this realm/scope and re-exchange it from scratch
	// (step 5 of the request loop: a 403 on the first retry).
	Refresh bool
}

// ParseChallenge parses a single WWW-Authenticate header value, of
// the form `Bearer realm="...",service="...",scope="..."` or `Basic realm="..."`.
func ParseChallenge(header string) (Challenge, error) {
	header = strings.TrimSpace(header)
	sp := strings.IndexByte(header, ' ')
	if sp < 0 {
		return Challenge{Scheme: header}, nil
	}
	scheme := header[:sp]
	params := parseAuthParams(header[sp+1:])

	c := Challenge{Scheme: scheme}
	c.Realm = params["realm"]
	c.Service = params["service"]
	c.Scope = params["scope"]
	if scheme != "Basic" && scheme != "Bearer" {
		return Challenge{}, orerrors.New(orerrors.AuthenticationFailed, "ParseChallenge", "unsupported auth scheme %q", scheme)
	}
	return c, nil
}

// parseAuthParams splits a comma-separated list of key="value" pairs
// into a map, tolerating commas embedded inside quoted values.
func parseAuthParams(s string) map[string]string {
	out := map[string]string{}
	var key, val strings.Builder
	inValue, inQuotes := false, false

	flush := func() {
		if key.Len() > 0 {
			out[strings.TrimSpace(key.String())] = val.String()
		}
		key.Reset()
		val.Reset()
		inValue = false
	}

	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '"' :
			inQuotes = !inQuotes
		case ch == '=' && !inValue && !inQuotes:
			inValue = true
		case ch == ',' && !inQuotes:
			flush()
		default:
			if inValue {
				val.WriteByte(ch)
			} else {
				key.WriteByte(ch)
			}
		}
	}
	flush()
	return out
}
