package ingest

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lanternlabs/lantern/internal/data"
)

// Dedup absorbs duplicate submissions of the same detection (HTTP producers
// retry on timeouts). Nil when disabled via config.
type Dedup struct {
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
}

func NewDedup(maxKeys int, ttl time.Duration) *Dedup {
	if maxKeys <= 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	c, _ := lru.New[string, time.Time](maxKeys)
	return &Dedup{cache: c, ttl: ttl}
}

func (d *Dedup) IsDuplicate(key string) bool {
	if d == nil {
		return false
	}
	if addedAt, ok := d.cache.Get(key); ok {
		if time.Since(addedAt) < d.ttl {
			return true
		}
		// Expired entry: refresh below.
	}
	d.cache.Add(key, time.Now())
	return false
}

// DedupKey identifies one detection exactly: same camera, class, box and
// millisecond timestamp means the same physical event resubmitted.
func DedupKey(d data.Detection) string {
	return fmt.Sprintf("%s|%s|%d|%.1f,%.1f,%.1f,%.1f",
		d.CameraID, d.ObjectClass, d.Timestamp.UnixMilli(),
		d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
}
