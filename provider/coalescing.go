package provider

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const frameKey = "frame"

// Coalescing wraps a ScreenProvider so concurrent Capture calls share one
// underlying capture, and a result stays valid for maxAge.
type Coalescing struct {
	next   ScreenProvider
	maxAge time.Duration
	cache  *cache.Cache
	group  singleflight.Group
}

// NewCoalescing wraps next. A maxAge of 0 disables result reuse, leaving
// only the in-flight deduplication.
func NewCoalescing(next ScreenProvider, maxAge time.Duration) *Coalescing {
	return &Coalescing{
		next:   next,
		maxAge: maxAge,
		cache:  cache.New(maxAge, 0),
	}
}

// Capture implements ScreenProvider.
func (c *Coalescing) Capture(ctx context.Context) (string, error) {
	if blob, ok := c.cached(); ok {
		return blob, nil
	}

	v, err, _ := c.group.Do(frameKey, func() (any, error) {
		if blob, ok := c.cached(); ok {
			return blob, nil
		}

		blob, err := c.next.Capture(ctx)
		if err != nil {
			return "", err
		}

		if c.maxAge > 0 {
			c.cache.Set(frameKey, blob, c.maxAge)
		}
		return blob, nil
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

func (c *Coalescing) cached() (string, bool) {
	if c.maxAge <= 0 {
		return "", false
	}

	v, found := c.cache.Get(frameKey)
	if !found {
		return "", false
	}

	blob, ok := v.(string)
	return blob, ok
}

type coalescedProvider struct {
	*Coalescing
	InputProvider
}

// WithCoalescedCapture returns p with its Capture wrapped in a Coalescing;
// input calls go straight to p.
func WithCoalescedCapture(p Provider, maxAge time.Duration) Provider {
	return coalescedProvider{Coalescing: NewCoalescing(p, maxAge), InputProvider: p}
}
