package fetch

import (
	"context"
	"sync"
	"time"
)

// Backoff is a caller's retry policy: a long pause after 429 and a short
// one after any other failure.
type Backoff struct {
	RateLimited time.Duration
	Failure     time.Duration
}

func (b Backoff) Delay(err error) time.Duration {
	if IsRateLimited(err) {
		return b.RateLimited
	}
	return b.Failure
}

// Gate is a pause shared by every worker of a phase. Rate limiting is
// enforced by the server for the whole client, so a 429 seen by one worker
// holds back all of them.
type Gate struct {
	mu    sync.Mutex
	until time.Time
}

// Pause holds the gate closed for at least d from now.
func (g *Gate) Pause(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t := time.Now().Add(d); t.After(g.until) {
		g.until = t
	}
}

// Wait blocks until the gate is open or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		g.mu.Lock()
		remaining := time.Until(g.until)
		g.mu.Unlock()

		if remaining <= 0 {
			return ctx.Err()
		}
		if err := Sleep(ctx, remaining); err != nil {
			return err
		}
	}
}
