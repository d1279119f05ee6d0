package auth

import (
	"context"
	"encoding/base64"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"

	orerrors "github.com/bibin-skaria/orascore/internal/errors"
)

// ecrPattern recognizes an Amazon ECR registry host, matching
// oras-py's auth/ecr.py AWS_ECR_PATTERN.
var ecrPattern = regexp.MustCompile(`^(?P<account>\d{12})\.dkr\.ecr\.(?P<region>[^.]+)\.amazonaws\.com$`)

// IsECRHost reports whether host is an Amazon ECR registry endpoint.
func IsECRHost(host string) bool {
	return ecrPattern.MatchString(host)
}

// cachedToken holds an ECR-issued Basic auth value alongside the
// expiry GetAuthorizationToken reported for it.
type cachedToken struct {
	value     string
	expiresAt time.Time
}

// ECRBackend embeds TokenBackend (ECR still answers Bearer
// challenges) but short-circuits the token exchange by calling the
// ECR GetAuthorizationToken API directly with AWS SigV4 credentials,
// rather than presenting a Basic challenge response.
type ECRBackend struct {
	*TokenBackend

	mu     sync.Mutex
	cached map[string]cachedToken // keyed by host
}

// NewECRBackend returns an ECRBackend falling back to store/base for
// any non-ECR host it's asked to authorize (so callers can register
// it unconditionally alongside TokenBackend).
func NewECRBackend(base *TokenBackend) *ECRBackend {
	return &ECRBackend{TokenBackend: base, cached: map[string]cachedToken{}}
}

// Authorize answers the challenge for host with an ECR-issued
// authorization token when host matches the ECR hostname pattern,
// and otherwise delegates to the embedded TokenBackend.
func (e *ECRBackend) Authorize(ac AuthorizeContext) (string, error) {
	m := ecrPattern.FindStringSubmatch(ac.Host)
	if m == nil {
		return e.TokenBackend.Authorize(ac)
	}
	region := m[ecrPattern.SubexpIndex("region")]

	if ac.Refresh {
		e.mu.Lock()
		delete(e.cached, ac.Host)
		e.mu.Unlock()
	} else {
		e.mu.Lock()
		if cached, ok := e.cached[ac.Host]; ok && time.Now().Before(cached.expiresAt) {
			e.mu.Unlock()
			return "Basic " + cached.value, nil
		}
		e.mu.Unlock()
	}

	ctx := ac.Context
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return "", orerrors.Wrap(err, orerrors.AuthenticationFailed, "Authorize", "loading AWS config for region %s", region)
	}
	client := ecr.NewFromConfig(cfg)
	out, err := client.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", orerrors.Wrap(err, orerrors.AuthenticationFailed, "Authorize", "GetAuthorizationToken")
	}
	if len(out.AuthorizationData) == 0 || out.AuthorizationData[0].AuthorizationToken == nil {
		return "", orerrors.New(orerrors.AuthenticationFailed, "Authorize", "ECR returned no authorization data for %s", ac.Host)
	}

	data := out.AuthorizationData[0]
	token := *data.AuthorizationToken
	expiresAt := time.Now().Add(10 * time.Minute)
	if data.ExpiresAt != nil {
		expiresAt = *data.ExpiresAt
	}

	e.mu.Lock()
	e.cached[ac.Host] = cachedToken{value: token, expiresAt: expiresAt}
	e.mu.Unlock()

	return "Basic " + token, nil
}

// decodeECRToken splits the base64("AWS:<password>") ECR returns,
// for callers that need the raw username/password pair rather than
// the ready-to-send header (e.g. to hand to a docker login flow).
func decodeECRToken(token string) (Credential, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Credential{}, orerrors.Wrap(err, orerrors.AuthenticationFailed, "decodeECRToken", "invalid base64")
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return Credential{}, orerrors.New(orerrors.AuthenticationFailed, "decodeECRToken", "malformed token")
	}
	return Credential{Username: parts[0], Password: parts[1]}, nil
}
