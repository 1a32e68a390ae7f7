package sim

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostLimiter paces simulated requests per hostname at the session's
// inter-request delay.
type hostLimiter struct {
	mu sync.Mutex
	m  map[string]*rate.Limiter
	r  rate.Limit
}

func newHostLimiter(delay time.Duration) *hostLimiter {
	r := rate.Inf
	if delay > 0 {
		r = rate.Every(delay)
	}
	return &hostLimiter{m: make(map[string]*rate.Limiter), r: r}
}

func (hl *hostLimiter) limiterFor(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if lim, ok := hl.m[host]; ok {
		return lim
	}
	lim := rate.NewLimiter(hl.r, 1)
	hl.m[host] = lim
	return lim
}

func (hl *hostLimiter) WaitURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return hl.limiterFor("_").Wait(ctx)
	}
	return hl.limiterFor(u.Host).Wait(ctx)
}
