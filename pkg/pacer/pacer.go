package pacer

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer enforces a fixed delay between successive external calls. The
// scraping API, the analyzer and media downloads are all rate limited on
// their side; the delay is a contractual throttle, not an optimization.
type Pacer interface {
	Wait(ctx context.Context) error
}

type fixedInterval struct {
	limiter *rate.Limiter
}

// NewFixedInterval returns a Pacer that lets one call through per interval,
// with no burst. A non-positive interval yields a no-op pacer.
func NewFixedInterval(interval time.Duration) Pacer {
	if interval <= 0 {
		return noop{}
	}
	return &fixedInterval{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (p *fixedInterval) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

type noop struct{}

func (noop) Wait(ctx context.Context) error {
	return ctx.Err()
}
