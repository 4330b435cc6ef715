package aiextract

import (
	"context"

	"golang.org/x/time/rate"

	apperrors "github.com/chravel/chravel-import/internal/errors"
)

type rateLimited struct {
	next    Service
	limiter *rate.Limiter
}

// RateLimited spaces calls to next at rps with the given burst. Callers
// block until a token is free or their context ends.
func RateLimited(next Service, rps float64, burst int) Service {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *rateLimited) Invoke(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, apperrors.New(apperrors.ErrRateLimited.Code, apperrors.ErrRateLimited.Message, err)
	}
	return r.next.Invoke(ctx, req)
}
