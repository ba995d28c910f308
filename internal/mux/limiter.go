package mux

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/xpadev-net/ott-media-sync/internal/clock"
)

// limiter spaces every outbound provider call by at least minInterval.
// Reservations are taken against the injected clock so that spacing is
// observable with a fake clock.
type limiter struct {
	lim   *rate.Limiter
	clock clock.Clock
}

func newLimiter(minInterval time.Duration, clk clock.Clock) *limiter {
	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}
	return &limiter{
		lim:   rate.NewLimiter(limit, 1),
		clock: clk,
	}
}

// Wait blocks until the caller may issue its request.
func (l *limiter) Wait(ctx context.Context) error {
	now := l.clock.Now()
	r := l.lim.ReserveN(now, 1)
	if !r.OK() {
		return fmt.Errorf("rate limiter: reservation refused")
	}
	delay := r.DelayFrom(now)
	if delay <= 0 {
		return nil
	}
	if err := l.clock.Sleep(ctx, delay); err != nil {
		r.CancelAt(l.clock.Now())
		return err
	}
	return nil
}
