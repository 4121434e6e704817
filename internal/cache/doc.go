// Package cache provides the bounded, time-expiring store shared by the
// embedding and response invokers.
//
// Entries expire a fixed TTL after their last Set. Reads refresh an entry's
// recency but never its expiry. When the cache grows past its capacity, Set
// runs Cleanup synchronously: expired entries go first, then the least
// recently accessed ones until the size is back within bounds. A janitor
// goroutine runs the same Cleanup every TTL/2.
//
//	c := cache.New[[]float64](ctx,
//	    cache.WithMaxSize(5000),
//	    cache.WithTTL(30*time.Minute),
//	)
//	defer c.Close()
//
//	c.Set("model:text", vec)
//	if v, ok := c.Get("model:text"); ok {
//	    // hit
//	}
//
// Close stops the janitor and drops every entry; owners defer it on every
// exit path.
package cache
