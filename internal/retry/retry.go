// Package retry re-runs imports whose failure looks transient. Import calls
// never retry on their own; the CLI and inbox opt in through this package.
package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Outcome is the part of an import result retry needs to see
type Outcome interface {
	Valid() bool
	Problems() []string
}

// Policy controls the backoff between attempts
type Policy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          *zap.Logger
}

// transientPrefixes mark failures of the upload, the extraction service or
// the page fetch, which may succeed when repeated.
var transientPrefixes = []string{
	"Failed to upload file",
	"AI parsing failed",
	"Failed to scan website",
}

var errTransient = errors.New("transient import failure")

// Transient reports whether an invalid result failed for a reason worth
// retrying. Results with items, or with only content errors, are final.
func Transient(o Outcome) bool {
	if o.Valid() {
		return false
	}
	for _, p := range o.Problems() {
		for _, prefix := range transientPrefixes {
			if strings.HasPrefix(p, prefix) {
				return true
			}
		}
	}
	return false
}

// Do calls fn until it returns a non-transient outcome, the attempts are
// used up or ctx is done. The last outcome is always returned.
func Do[T Outcome](ctx context.Context, p Policy, fn func(ctx context.Context) T) T {
	if p.Attempts <= 1 {
		return fn(ctx)
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.Attempts-1)), ctx)

	var last T
	attempt := 0
	_ = backoff.RetryNotify(func() error {
		attempt++
		last = fn(ctx)
		if Transient(last) {
			return errTransient
		}
		return nil
	}, b, func(_ error, wait time.Duration) {
		p.Logger.Info("Retrying import",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Strings("errors", last.Problems()),
		)
	})
	return last
}
