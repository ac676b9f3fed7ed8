package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/use-agent/pricehound/models"
)

// Tiered composes an optional fast tier over the mandatory durable
// tier. Reads try the fast tier first; writes with a positive TTL go
// to the fast tier (native expiry) and always to the durable tier.
// Every operation is fail-soft: a broken backend degrades to a miss or
// a no-op, never to an error crossing the pipeline.
type Tiered struct {
	durable *SQLiteBackend
	fast    Backend // nil when no fast tier is configured

	sweepInterval time.Duration
	done          chan struct{}
}

// NewTiered builds the tiered cache and starts the background sweep
// over the durable tier. fast may be nil.
func NewTiered(durable *SQLiteBackend, fast Backend, sweepInterval time.Duration) *Tiered {
	t := &Tiered{
		durable:       durable,
		fast:          fast,
		sweepInterval: sweepInterval,
		done:          make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Stop terminates the background sweep goroutine.
func (t *Tiered) Stop() {
	close(t.done)
}

// Get returns the cached value for key, or absent. Fast-tier hits
// return immediately; fast-tier values are never re-promoted after a
// durable hit because fast entries carry their own native expiry.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool) {
	if t.fast != nil {
		value, ok, err := t.fast.Get(ctx, key)
		if err != nil {
			slog.Warn("cache: fast tier get failed, falling through", "key", key, "error", err)
		} else if ok {
			return value, true
		}
	}

	value, ok, err := t.durable.Get(ctx, key)
	if err != nil {
		slog.Error("cache: durable get failed", "key", key, "error", err)
		return nil, false
	}
	return value, ok
}

// Set stores the value in both tiers. ttl == 0 means no expiry and is
// only stored durably; the fast tier rejects non-expiring entries by
// design. Tier failures are logged and degrade to the other tier.
func (t *Tiered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	ok := false

	if t.fast != nil && ttl > 0 {
		if err := t.fast.Set(ctx, key, value, ttl); err != nil {
			slog.Warn("cache: fast tier set failed", "key", key, "error", err)
		} else {
			ok = true
		}
	}

	if err := t.durable.Set(ctx, key, value, ttl); err != nil {
		slog.Error("cache: durable set failed", "key", key, "error", err)
	} else {
		ok = true
	}

	return ok
}

// Delete removes the key from both tiers unconditionally; deleting an
// absent key is not an error.
func (t *Tiered) Delete(ctx context.Context, key string) bool {
	ok := true

	if t.fast != nil {
		if err := t.fast.Delete(ctx, key); err != nil {
			slog.Warn("cache: fast tier delete failed", "key", key, "error", err)
			ok = false
		}
	}

	if err := t.durable.Delete(ctx, key); err != nil {
		slog.Error("cache: durable delete failed", "key", key, "error", err)
		ok = false
	}

	return ok
}

// Exists reports key presence in either tier.
func (t *Tiered) Exists(ctx context.Context, key string) bool {
	if t.fast != nil {
		ok, err := t.fast.Exists(ctx, key)
		if err != nil {
			slog.Warn("cache: fast tier exists failed", "key", key, "error", err)
		} else if ok {
			return true
		}
	}

	ok, err := t.durable.Exists(ctx, key)
	if err != nil {
		slog.Error("cache: durable exists failed", "key", key, "error", err)
		return false
	}
	return ok
}

// GetJSON unmarshals a cached JSON document into out.
func (t *Tiered) GetJSON(ctx context.Context, key string, out any) bool {
	value, ok := t.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(value, out); err != nil {
		slog.Warn("cache: corrupt json entry, dropping", "key", key, "error", err)
		t.Delete(ctx, key)
		return false
	}
	return true
}

// SetJSON marshals v and stores it as a JSON document.
func (t *Tiered) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) bool {
	value, err := json.Marshal(v)
	if err != nil {
		slog.Error("cache: marshal failed", "key", key, "error", err)
		return false
	}
	return t.Set(ctx, key, value, ttl)
}

// Stats reports per-tier entry counts for the stats endpoint.
func (t *Tiered) Stats(ctx context.Context) models.CacheStatsResponse {
	stats := models.CacheStatsResponse{FastTier: t.fast != nil}

	if n, err := t.durable.Count(ctx); err == nil {
		stats.DurableEntries = n
	}
	if t.fast != nil {
		if n, err := t.fast.Count(ctx); err == nil {
			stats.FastEntries = n
		}
	}

	return stats
}

// Flush empties both tiers. The durable tier must succeed; a fast-tier
// failure only logs, matching the fail-soft contract everywhere else.
func (t *Tiered) Flush(ctx context.Context) error {
	if t.fast != nil {
		if err := t.fast.Flush(ctx); err != nil {
			slog.Warn("cache: fast tier flush failed", "error", err)
		}
	}
	return t.durable.Flush(ctx)
}

// SweepExpired removes TTL-elapsed entries from the durable tier. The
// fast tier expires natively and is never swept.
func (t *Tiered) SweepExpired(ctx context.Context) {
	n, err := t.durable.SweepExpired(ctx)
	if err != nil {
		slog.Error("cache: sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("cache: swept expired entries", "count", n)
	}
}

// sweepLoop reaps expired durable entries on a fixed interval until
// Stop is called.
func (t *Tiered) sweepLoop() {
	ticker := time.NewTicker(t.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			t.SweepExpired(ctx)
			cancel()
		}
	}
}
