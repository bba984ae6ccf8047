package hub

import (
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// Guard counts failed handshakes per remote host. Once a host reaches the
// limit it is refused until the window that started with its first failure
// expires. A Guard with a limit of 0 never refuses anyone.
type Guard struct {
	maxFailures int
	window      time.Duration
	failures    *cache.Cache
}

// NewGuard creates a Guard. maxFailures of 0 or less disables it, and a
// disabled Guard allocates no cache or janitor.
func NewGuard(maxFailures int, window time.Duration) *Guard {
	if maxFailures <= 0 {
		return &Guard{window: window}
	}

	return &Guard{
		maxFailures: maxFailures,
		window:      window,
		failures:    cache.New(window, window),
	}
}

// Check returns ErrLockedOut if host has used up its attempts.
func (g *Guard) Check(host string) error {
	if g.maxFailures == 0 {
		return nil
	}

	if n := g.count(host); n >= g.maxFailures {
		return fmt.Errorf("%w: %s (%d failures)", ErrLockedOut, host, n)
	}
	return nil
}

// Fail records one failure and returns the running count for host.
func (g *Guard) Fail(host string) int {
	if g.maxFailures == 0 {
		return 0
	}

	if err := g.failures.Add(host, 1, cache.DefaultExpiration); err == nil {
		return 1
	}

	n, err := g.failures.IncrementInt(host, 1)
	if err != nil {
		// the entry expired between Add and IncrementInt
		g.failures.Set(host, 1, cache.DefaultExpiration)
		return 1
	}
	return n
}

// Reset forgets the failures of host after a successful handshake.
func (g *Guard) Reset(host string) {
	if g.failures == nil {
		return
	}
	g.failures.Delete(host)
}

func (g *Guard) count(host string) int {
	v, found := g.failures.Get(host)
	if !found {
		return 0
	}

	n, _ := v.(int)
	return n
}
