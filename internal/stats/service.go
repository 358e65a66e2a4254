package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lanternlabs/lantern/internal/data"
)

// Repo is the aggregate read side of the detection log.
type Repo interface {
	CountByCamera(ctx context.Context, since time.Time) ([]data.CameraCount, error)
	HourlyCounts(ctx context.Context, start, end time.Time) ([]data.HourlyCount, error)
	TopLocations(ctx context.Context, start, end time.Time, n int) ([]data.LocationCount, error)
}

// Service answers dashboard queries, caching results in Redis. Cache failures
// fail open: the query falls through to Postgres and the miss is logged.
type Service struct {
	repo  Repo
	cache *redis.Client
	loc   *time.Location
	ttl   atomic.Int64 // nanoseconds; hot-reloadable
}

func NewService(repo Repo, cache *redis.Client, loc *time.Location, ttl time.Duration) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	s := &Service{repo: repo, cache: cache, loc: loc}
	s.ttl.Store(int64(ttl))
	return s
}

// SetCacheTTL adjusts the cache lifetime. Called by the config watcher.
func (s *Service) SetCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl.Store(int64(ttl))
	}
}

// DetectionCounts returns per-camera counts over the trailing window.
func (s *Service) DetectionCounts(ctx context.Context, hours int) ([]data.CameraCount, error) {
	if hours <= 0 {
		hours = 24
	}
	key := fmt.Sprintf("stats:cameras:%dh", hours)

	var cached []data.CameraCount
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	out, err := s.repo.CountByCamera(ctx, time.Now().UTC().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, out)
	return out, nil
}

// HourlyCounts aggregates one local calendar day by hour and location.
func (s *Service) HourlyCounts(ctx context.Context, day time.Time) ([]data.HourlyCount, error) {
	start, end := s.dayBounds(day)
	key := "stats:hourly:" + start.Format("2006-01-02")

	var cached []data.HourlyCount
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	out, err := s.repo.HourlyCounts(ctx, start, end)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, out)
	return out, nil
}

// TopLocations returns the n busiest locations for one local calendar day.
func (s *Service) TopLocations(ctx context.Context, day time.Time, n int) ([]data.LocationCount, error) {
	if n <= 0 {
		n = 5
	}
	start, end := s.dayBounds(day)
	key := fmt.Sprintf("stats:locations:%s:%d", start.Format("2006-01-02"), n)

	var cached []data.LocationCount
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	out, err := s.repo.TopLocations(ctx, start, end, n)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, out)
	return out, nil
}

func (s *Service) dayBounds(day time.Time) (time.Time, time.Time) {
	d := day.In(s.loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)
	return start, start.AddDate(0, 0, 1)
}

func (s *Service) cacheGet(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[WARN] Stats: cache read failed for %s: %v", key, err)
		}
		return false
	}
	return json.Unmarshal(raw, dest) == nil
}

func (s *Service) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	ttl := time.Duration(s.ttl.Load())
	if err := s.cache.Set(ctx, key, raw, ttl).Err(); err != nil {
		log.Printf("[WARN] Stats: cache write failed for %s: %v", key, err)
	}
}
