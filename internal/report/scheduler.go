package report

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lanternlabs/lantern/internal/metrics"
)

// Store is the windowed read side of the detection log.
type Store interface {
	QueryWindow(ctx context.Context, objectClass string, start, end time.Time) (int64, error)
}

// Config fixes the daily wake time and the report window, both in the
// configured timezone. The wake time is taken as given: 00:00 means a
// midnight wake, not a request for a default.
type Config struct {
	WakeHour     int
	WakeMinute   int
	WindowStart  Clock // on the previous calendar day
	WindowEnd    Clock // on the wake day
	ObjectClass  string
	Timezone     string
	QueryTimeout time.Duration
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// Report is the nightly aggregate handed to the dispatcher. Derived, never
// stored.
type Report struct {
	ID          uuid.UUID `json:"id"`
	ObjectClass string    `json:"object_class"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Count       int64     `json:"count"`
	Message     string    `json:"message"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Scheduler is the nightly aggregation loop: sleep until the next wake
// instant, run exactly one windowed query, attempt at most one dispatch, and
// go back to sleep. No state survives restarts; the next target is recomputed
// from the clock each cycle, so the loop cannot drift.
type Scheduler struct {
	cfg   Config
	loc   *time.Location
	store Store
	disp  Dispatcher

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(cfg Config, store Store, disp Dispatcher) (*Scheduler, error) {
	if cfg.Timezone == "" {
		cfg.Timezone = "Africa/Nairobi"
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.WindowStart == (Clock{}) {
		cfg.WindowStart = Clock{Hour: 22}
	}
	if cfg.WindowEnd == (Clock{}) {
		cfg.WindowEnd = Clock{Hour: 4, Minute: 50}
	}
	if cfg.ObjectClass == "" {
		cfg.ObjectClass = "person"
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}

	return &Scheduler{
		cfg:      cfg,
		loc:      loc,
		store:    store,
		disp:     disp,
		stopChan: make(chan struct{}),
	}, nil
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop cancels the current sleep immediately. No final report is produced.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		now := time.Now().In(s.loc)
		target := NextWake(now, s.cfg.WakeHour, s.cfg.WakeMinute)

		sleep := target.Sub(now)
		log.Printf("Nightly Reporter: sleeping %v, next run at %s", sleep.Round(time.Second), target.Format(time.RFC3339))

		timer := time.NewTimer(sleep)
		select {
		case <-s.stopChan:
			timer.Stop()
			return
		case <-timer.C:
		}

		s.runCycle(target)
	}
}

// runCycle performs the Reporting state: one query, at most one dispatch.
// Whatever happens, the caller transitions straight back to Sleeping.
func (s *Scheduler) runCycle(wake time.Time) {
	start, end := ReportWindow(wake, s.cfg.WindowStart, s.cfg.WindowEnd)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.QueryTimeout)
	defer cancel()

	count, err := s.store.QueryWindow(ctx, s.cfg.ObjectClass, start, end)
	if err != nil {
		log.Printf("[ERROR] Nightly Reporter: window query failed, skipping this cycle's report: %v", err)
		metrics.ReportCyclesTotal.WithLabelValues("query_failed").Inc()
		return
	}

	r := Report{
		ID:          uuid.New(),
		ObjectClass: s.cfg.ObjectClass,
		WindowStart: start,
		WindowEnd:   end,
		Count:       count,
		GeneratedAt: time.Now().UTC(),
	}
	r.Message = FormatMessage(r)

	metrics.ReportLastCount.Set(float64(count))
	log.Printf("Nightly Reporter: counted %d %q detections between %s and %s",
		count, s.cfg.ObjectClass, start.Format(time.RFC3339), end.Format(time.RFC3339))

	// One attempt per cycle. The next cycle is 24h away and an immediate retry
	// against a slow-but-healthy sink risks duplicate delivery.
	if err := s.disp.Dispatch(ctx, r); err != nil {
		log.Printf("[ERROR] Nightly Reporter: dispatch failed: %v", err)
		metrics.ReportCyclesTotal.WithLabelValues("dispatch_failed").Inc()
		return
	}
	metrics.ReportCyclesTotal.WithLabelValues("ok").Inc()
}

// NextWake returns the next strictly-future occurrence of the daily wake time.
// At exactly the wake instant the target is tomorrow, never now.
func NextWake(now time.Time, hour, minute int) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// ReportWindow derives the half-open aggregation interval for a wake instant:
// [windowStart on the previous calendar day, windowEnd on the wake day).
func ReportWindow(wake time.Time, start, end Clock) (time.Time, time.Time) {
	prev := wake.AddDate(0, 0, -1)
	ws := time.Date(prev.Year(), prev.Month(), prev.Day(), start.Hour, start.Minute, 0, 0, wake.Location())
	we := time.Date(wake.Year(), wake.Month(), wake.Day(), end.Hour, end.Minute, 0, 0, wake.Location())
	return ws, we
}
