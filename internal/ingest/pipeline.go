package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lanternlabs/lantern/internal/data"
	"github.com/lanternlabs/lantern/internal/metrics"
)

var ErrPipelineClosed = errors.New("ingest pipeline closed")

// Store is the durable sink for flushed batches.
type Store interface {
	AppendBatch(ctx context.Context, batch []data.Detection) error
}

// Config bounds the channel and the batch triggers.
type Config struct {
	ChannelCapacity  int
	MaxBatchSize     int
	MaxBatchInterval time.Duration
	FlushRetryMax    int
	FlushBackoff     time.Duration
	DedupMaxKeys     int
	DedupTTL         time.Duration
}

// Pipeline is the many-producer single-consumer ingest path: a bounded channel
// feeding one batch collector goroutine. Producers block on Produce when the
// channel is full; that backpressure is the flow-control contract, never an
// error.
type Pipeline struct {
	cfg   Config
	store Store
	dedup *Dedup

	in       chan data.Detection
	stopOnce sync.Once
	wg       sync.WaitGroup

	// mu orders Produce against Stop: the closed flag and the channel close
	// flip together under the write lock, and every enqueue happens under the
	// read lock. A nil return from Produce is therefore always backed by a
	// record the collector will see.
	mu     sync.RWMutex
	closed bool

	persisted atomic.Int64
	dropped   atomic.Int64
}

func New(store Store, cfg Config) *Pipeline {
	if cfg.ChannelCapacity <= 0 {
		cfg.ChannelCapacity = 256
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 50
	}
	if cfg.MaxBatchInterval <= 0 {
		cfg.MaxBatchInterval = 2 * time.Second
	}
	if cfg.FlushRetryMax < 0 {
		cfg.FlushRetryMax = 0
	}
	if cfg.FlushBackoff <= 0 {
		cfg.FlushBackoff = 200 * time.Millisecond
	}

	return &Pipeline{
		cfg:   cfg,
		store: store,
		dedup: NewDedup(cfg.DedupMaxKeys, cfg.DedupTTL),
		in:    make(chan data.Detection, cfg.ChannelCapacity),
	}
}

// Start launches the batch collector.
func (p *Pipeline) Start() {
	p.wg.Add(1)
	go p.runCollector()
}

// Stop closes the pipeline: subsequent Produce calls fail with
// ErrPipelineClosed, and every record accepted before the close is drained and
// flushed before Stop returns. Safe to call more than once.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.in)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

// Produce enqueues one detection, blocking under backpressure until the
// collector makes room, the caller's context is cancelled, or the pipeline
// shuts down. Duplicate submissions (producer retries) are absorbed here.
func (p *Pipeline) Produce(ctx context.Context, d data.Detection) error {
	if err := d.Validate(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPipelineClosed
	}
	if p.dedup.IsDuplicate(DedupKey(d)) {
		metrics.DetectionsDedupedTotal.Inc()
		return nil
	}

	// Stop cannot close p.in while the read lock is held, and the collector
	// keeps consuming until Stop completes, so a full channel always makes
	// room eventually.
	select {
	case p.in <- d:
		metrics.DetectionsIngestedTotal.Inc()
		metrics.IngestQueueDepth.Set(float64(len(p.in)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Persisted reports the number of records durably written so far.
func (p *Pipeline) Persisted() int64 { return p.persisted.Load() }

// Dropped reports the number of records explicitly dropped so far.
// persisted + dropped accounts for every record that entered the channel.
func (p *Pipeline) Dropped() int64 { return p.dropped.Load() }
