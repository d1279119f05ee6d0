package errors

import (
	"context"
	"crypto/tls"
	"errors"
	"math"
	"time"
)

// RetryableFunc is a unit of work the outer retry decorator can re-run.
type RetryableFunc func() error

// maxAttempts and the backoff formula are pinned by spec: 5 attempts,
// sleeping 2 + 3^attempt seconds between them.
const maxAttempts = 5

// backoffFunc is a variable so tests can replace the real schedule with
// an instant one; production code never reassigns it.
var backoffFunc = func(attempt int) time.Duration {
	return time.Duration(2+math.Pow(3, float64(attempt))) * time.Second
}

// Retry wraps fn with the request-dispatcher's outer retry decorator:
// on network exceptions or (by convention, via the returned *Error's
// Retryable()) 5xx responses, retry up to maxAttempts with exponential
// backoff. SSL errors and AuthenticationFailed propagate immediately.
func Retry(ctx context.Context, operation string, fn RetryableFunc) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoffFunc(attempt - 1)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if isTLSError(err) {
			return err
		}
		var oe *Error
		if errors.As(err, &oe) && !oe.Retryable() {
			return err
		}
	}
	return lastErr
}

func isTLSError(err error) bool {
	var certErr tls.RecordHeaderError
	if errors.As(err, &certErr) {
		return true
	}
	var certInvalid *tls.CertificateVerificationError
	return errors.As(err, &certInvalid)
}
