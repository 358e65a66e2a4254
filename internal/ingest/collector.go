package ingest

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/lanternlabs/lantern/internal/data"
	"github.com/lanternlabs/lantern/internal/metrics"
)

// runCollector is the single consumer. It accumulates records into a batch and
// flushes on whichever trigger fires first: the batch reaches MaxBatchSize, or
// MaxBatchInterval elapses since the first record of the current batch.
func (p *Pipeline) runCollector() {
	defer p.wg.Done()

	batch := make([]data.Detection, 0, p.cfg.MaxBatchSize)

	timer := time.NewTimer(p.cfg.MaxBatchInterval)
	stopTimer(timer)
	defer timer.Stop()

	for {
		select {
		case d, ok := <-p.in:
			if !ok {
				// Stop closed the channel. Everything buffered has already
				// been delivered; flush the final partial batch and exit.
				stopTimer(timer)
				if len(batch) > 0 {
					p.flush(batch)
				}
				metrics.IngestQueueDepth.Set(0)
				return
			}
			if len(batch) == 0 {
				timer.Reset(p.cfg.MaxBatchInterval)
			}
			batch = append(batch, d)
			metrics.IngestQueueDepth.Set(float64(len(p.in)))
			if len(batch) >= p.cfg.MaxBatchSize {
				stopTimer(timer)
				p.flush(batch)
				batch = batch[:0]
			}

		case <-timer.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// flush hands the batch to the store. Transient failures are retried with
// bounded exponential backoff; permanent rejections and exhausted retries end
// in an explicit, counted drop so the collector never stalls on one bad batch.
func (p *Pipeline) flush(batch []data.Detection) {
	ctx := context.Background()
	backoff := p.cfg.FlushBackoff

	var err error
	for attempt := 0; attempt <= p.cfg.FlushRetryMax; attempt++ {
		start := time.Now()
		err = p.store.AppendBatch(ctx, batch)
		metrics.BatchFlushDuration.Observe(float64(time.Since(start).Milliseconds()))

		if err == nil {
			p.persisted.Add(int64(len(batch)))
			metrics.DetectionsPersistedTotal.Add(float64(len(batch)))
			metrics.BatchesFlushedTotal.WithLabelValues("ok").Inc()
			return
		}

		if errors.Is(err, data.ErrStorageRejected) {
			// Malformed payload: retrying cannot help. Log the full batch for
			// diagnosis and discard.
			log.Printf("[ERROR] Batch Collector: batch of %d rejected, dropping: %v", len(batch), err)
			for _, d := range batch {
				log.Printf("[ERROR] Batch Collector: rejected record camera=%s class=%s ts=%s conf=%.3f box=(%.1f,%.1f,%.1f,%.1f)",
					d.CameraID, d.ObjectClass, d.Timestamp.Format(time.RFC3339), d.Confidence,
					d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
			}
			p.recordDrop(len(batch), "rejected")
			return
		}

		if attempt < p.cfg.FlushRetryMax {
			log.Printf("[WARN] Batch Collector: flush attempt %d/%d failed: %v (retrying in %v)",
				attempt+1, p.cfg.FlushRetryMax+1, err, backoff)
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	// Retries exhausted. The batch is never requeued; requeueing would grow
	// memory without bound while storage is down.
	log.Printf("[ERROR] Batch Collector: dropping batch of %d after %d attempts: %v",
		len(batch), p.cfg.FlushRetryMax+1, err)
	p.recordDrop(len(batch), "unavailable")
}

func (p *Pipeline) recordDrop(n int, reason string) {
	p.dropped.Add(int64(n))
	metrics.DetectionsDroppedTotal.WithLabelValues(reason).Add(float64(n))
	metrics.BatchesFlushedTotal.WithLabelValues("dropped").Inc()
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
