package registry

import (
	"context"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/bibin-skaria/orascore/auth"
	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// doRequest sends req, and if the server answers 401 or 403 with a
// WWW-Authenticate challenge, resolves a Backend for that challenge,
// attaches the resulting Authorization header, and retries exactly
// once more. If that retry itself comes back 403, the backend is
// asked once more with refresh=true (discarding any cached token)
// and the result of that final attempt is returned as-is. This
// mirrors provider.py's do_request, including its EC2-compatibility
// fallback: if every auth-flow attempt is refused and req already
// carried an Authorization header, the original header is retried
// once more as-is before giving up.
func (c *Client) doRequest(ctx context.Context, req *http.Request, host string) (*http.Response, error) {
	req = req.WithContext(ctx)
	originalAuth := req.Header.Get("Authorization")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, orerrors.Wrap(err, orerrors.ProtocolError, "doRequest", "%s %s", req.Method, req.URL).WithURL(req.URL.String())
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}

	challengeHeader := resp.Header.Get("WWW-Authenticate")
	resp.Body.Close()
	if challengeHeader == "" {
		return nil, orerrors.New(orerrors.AuthenticationFailed, "doRequest", "%s %s returned %d with no WWW-Authenticate challenge", req.Method, req.URL, resp.StatusCode).WithURL(req.URL.String())
	}

	challenge, err := auth.ParseChallenge(challengeHeader)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"host": host, "scheme": challenge.Scheme}).Debug("retrying request after auth challenge")

	header, err := c.authorize(ctx, host, challenge, false)
	if err != nil {
		if originalAuth != "" {
			return c.retryWithHeader(req, originalAuth)
		}
		return nil, err
	}

	retryResp, retryErr := c.retryWithHeader(req, header)
	if retryErr == nil && retryResp.StatusCode != http.StatusUnauthorized && retryResp.StatusCode != http.StatusForbidden {
		return retryResp, nil
	}

	// Step 5: a 403 on the retry means the token the backend handed
	// back was itself rejected (e.g. insufficient scope); force a
	// refresh and send the request one final time, returning whatever
	// comes back without re-entering the loop.
	if retryErr == nil && retryResp.StatusCode == http.StatusForbidden {
		retryResp.Body.Close()
		refreshedHeader, refreshErr := c.authorize(ctx, host, challenge, true)
		if refreshErr == nil {
			return c.retryWithHeader(req, refreshedHeader)
		}
		retryErr = refreshErr
		retryResp = nil
	}

	if retryResp != nil {
		retryResp.Body.Close()
	}
	if originalAuth != "" {
		return c.retryWithHeader(req, originalAuth)
	}
	if retryErr != nil {
		return nil, retryErr
	}
	return nil, orerrors.New(orerrors.AuthenticationFailed, "doRequest", "%s %s still unauthorized after auth retry", req.Method, req.URL).WithURL(req.URL.String())
}

func (c *Client) retryWithHeader(req *http.Request, header string) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if clone.GetBody != nil {
		body, err := clone.GetBody()
		if err != nil {
			return nil, orerrors.Wrap(err, orerrors.ProtocolError, "retryWithHeader", "rewinding request body")
		}
		clone.Body = body
	}
	clone.Header.Set("Authorization", header)
	resp, err := c.HTTPClient.Do(clone)
	if err != nil {
		return nil, orerrors.Wrap(err, orerrors.ProtocolError, "retryWithHeader", "%s %s", clone.Method, clone.URL).WithURL(clone.URL.String())
	}
	return resp, nil
}

// authorize resolves (and caches) a Backend for host+challenge.Scheme,
// then asks it for an Authorization header value. refresh=true forces
// the backend to discard any cached token and re-exchange it, per
// step 5 of the request loop.
func (c *Client) authorize(ctx context.Context, host string, challenge auth.Challenge, refresh bool) (string, error) {
	key := host + "|" + challenge.Scheme
	backend, ok := c.authBackends[key]
	if !ok {
		backend = c.newBackend(challenge.Scheme, host)
		c.authBackends[key] = backend
	}
	return backend.Authorize(auth.AuthorizeContext{
		Context:   ctx,
		Host:      host,
		Challenge: challenge,
		Refresh:   refresh,
	})
}

func (c *Client) newBackend(scheme, host string) auth.Backend {
	if scheme == "Basic" {
		return auth.NewBasicBackend(c.Store, host)
	}
	tokenBackend := auth.NewTokenBackend(c.Store, c.HTTPClient)
	if auth.IsECRHost(host) {
		return auth.NewECRBackend(tokenBackend)
	}
	return tokenBackend
}

// drain reads and discards resp.Body so the underlying connection
// can be reused, without callers needing an explicit io.Copy.
func drain(resp *http.Response) {
	if resp == nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
