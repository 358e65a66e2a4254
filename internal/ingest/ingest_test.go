package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternlabs/lantern/internal/data"
)

// fakeStore captures flushed batches and injects failures.
type fakeStore struct {
	mu        sync.Mutex
	batches   [][]data.Detection
	calls     int
	failWith  error
	failTimes int // -1 = always fail
}

func (f *fakeStore) AppendBatch(_ context.Context, batch []data.Detection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failWith != nil && (f.failTimes < 0 || f.calls <= f.failTimes) {
		return f.failWith
	}
	cp := append([]data.Detection(nil), batch...)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeStore) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeStore) totalRecords() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func sampleDetection(class string, n int) data.Detection {
	return data.Detection{
		Timestamp:   time.Now().UTC().Add(time.Duration(n) * time.Millisecond),
		CameraID:    uuid.New(),
		Location:    "main_entrance",
		ObjectClass: class,
		Confidence:  0.9,
		Box:         data.BoundingBox{X1: 10, Y1: 10, X2: 50, Y2: 90},
	}
}

func TestFlush_SizeTrigger(t *testing.T) {
	store := &fakeStore{}
	p := New(store, Config{MaxBatchSize: 3, MaxBatchInterval: 10 * time.Second})
	p.Start()
	defer p.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Produce(context.Background(), sampleDetection("person", i)))
	}

	// Size threshold must fire long before the 10s interval.
	assert.Eventually(t, func() bool { return store.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, store.batches[0], 3)
	assert.EqualValues(t, 3, p.Persisted())
}

func TestFlush_IntervalTrigger(t *testing.T) {
	store := &fakeStore{}
	p := New(store, Config{MaxBatchSize: 100, MaxBatchInterval: 100 * time.Millisecond})
	p.Start()
	defer p.Stop()

	require.NoError(t, p.Produce(context.Background(), sampleDetection("person", 0)))
	require.NoError(t, p.Produce(context.Background(), sampleDetection("car", 1)))

	assert.Eventually(t, func() bool { return store.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, store.batches[0], 2)
}

func TestFlush_RetryRecovers(t *testing.T) {
	store := &fakeStore{
		failWith:  fmt.Errorf("%w: connection reset", data.ErrStorageUnavailable),
		failTimes: 1,
	}
	p := New(store, Config{MaxBatchSize: 3, MaxBatchInterval: 10 * time.Second, FlushRetryMax: 2, FlushBackoff: time.Millisecond})
	p.Start()
	defer p.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Produce(context.Background(), sampleDetection("person", i)))
	}

	assert.Eventually(t, func() bool { return p.Persisted() == 3 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 0, p.Dropped())
	assert.Equal(t, 2, store.callCount())
}

func TestFlush_RetriesExhaustedDrops(t *testing.T) {
	store := &fakeStore{
		failWith:  fmt.Errorf("%w: connection refused", data.ErrStorageUnavailable),
		failTimes: -1,
	}
	p := New(store, Config{MaxBatchSize: 3, MaxBatchInterval: 10 * time.Second, FlushRetryMax: 1, FlushBackoff: time.Millisecond})
	p.Start()
	defer p.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, p.Produce(context.Background(), sampleDetection("person", i)))
	}

	// Dropped exactly once after 2 attempts, never requeued.
	assert.Eventually(t, func() bool { return p.Dropped() == 3 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 0, p.Persisted())
	assert.Equal(t, 2, store.callCount())
}

func TestFlush_RejectedNotRetried(t *testing.T) {
	store := &fakeStore{
		failWith:  fmt.Errorf("%w: check constraint violated", data.ErrStorageRejected),
		failTimes: -1,
	}
	p := New(store, Config{MaxBatchSize: 2, MaxBatchInterval: 10 * time.Second, FlushRetryMax: 5, FlushBackoff: time.Millisecond})
	p.Start()
	defer p.Stop()

	require.NoError(t, p.Produce(context.Background(), sampleDetection("person", 0)))
	require.NoError(t, p.Produce(context.Background(), sampleDetection("person", 1)))

	assert.Eventually(t, func() bool { return p.Dropped() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, store.callCount(), "permanent rejection must not be retried")
}

func TestBadBatchDoesNotStallPipeline(t *testing.T) {
	store := &fakeStore{
		failWith:  fmt.Errorf("%w: gone", data.ErrStorageUnavailable),
		failTimes: 2, // first batch burns both attempts, second batch succeeds
	}
	p := New(store, Config{MaxBatchSize: 2, MaxBatchInterval: 10 * time.Second, FlushRetryMax: 1, FlushBackoff: time.Millisecond})
	p.Start()
	defer p.Stop()

	for i := 0; i < 2; i++ {
		require.NoError(t, p.Produce(context.Background(), sampleDetection("person", i)))
	}
	assert.Eventually(t, func() bool { return p.Dropped() == 2 }, time.Second, 5*time.Millisecond)

	for i := 2; i < 4; i++ {
		require.NoError(t, p.Produce(context.Background(), sampleDetection("person", i)))
	}
	assert.Eventually(t, func() bool { return p.Persisted() == 2 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, p.Dropped())
}

func TestStop_FlushesPartialBatch(t *testing.T) {
	store := &fakeStore{}
	p := New(store, Config{MaxBatchSize: 100, MaxBatchInterval: 10 * time.Second})
	p.Start()

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Produce(context.Background(), sampleDetection("person", i)))
	}

	p.Stop()

	assert.Equal(t, 4, store.totalRecords())
	assert.EqualValues(t, 4, p.Persisted())

	err := p.Produce(context.Background(), sampleDetection("person", 99))
	assert.ErrorIs(t, err, ErrPipelineClosed)
}

// Producers race Stop. Every Produce that returned nil must end up persisted
// or dropped: a record accepted into the channel during shutdown may not be
// silently lost.
func TestStop_AccountsForConcurrentProducers(t *testing.T) {
	for iter := 0; iter < 20; iter++ {
		store := &fakeStore{}
		p := New(store, Config{ChannelCapacity: 8, MaxBatchSize: 5, MaxBatchInterval: time.Hour})
		p.Start()

		var accepted atomic.Int64
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; ; i++ {
					err := p.Produce(context.Background(), sampleDetection("person", w*10000+i))
					if err != nil {
						assert.ErrorIs(t, err, ErrPipelineClosed)
						return
					}
					accepted.Add(1)
				}
			}(w)
		}

		time.Sleep(2 * time.Millisecond)
		p.Stop()
		wg.Wait()

		require.Equal(t, accepted.Load(), p.Persisted()+p.Dropped(),
			"iteration %d: %d accepted but only %d accounted", iter, accepted.Load(), p.Persisted()+p.Dropped())
		require.EqualValues(t, accepted.Load(), store.totalRecords())
	}
}

func TestProduce_BackpressureRespectsContext(t *testing.T) {
	store := &fakeStore{}
	p := New(store, Config{ChannelCapacity: 1, MaxBatchSize: 100, MaxBatchInterval: 10 * time.Second})
	// Collector intentionally not started: the channel stays full.

	require.NoError(t, p.Produce(context.Background(), sampleDetection("person", 0)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := p.Produce(ctx, sampleDetection("person", 1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProduce_RejectsInvalidDetection(t *testing.T) {
	store := &fakeStore{}
	p := New(store, Config{MaxBatchSize: 10, MaxBatchInterval: time.Second})
	p.Start()
	defer p.Stop()

	d := sampleDetection("person", 0)
	d.Confidence = 1.5
	assert.Error(t, p.Produce(context.Background(), d))

	d = sampleDetection("", 1)
	assert.Error(t, p.Produce(context.Background(), d))
}

// End-to-end: 3 producers x 50 detections through a capacity-20 channel with
// batch size 10. Every record must be persisted, none dropped.
func TestPipeline_EndToEnd(t *testing.T) {
	store := &fakeStore{}
	p := New(store, Config{
		ChannelCapacity:  20,
		MaxBatchSize:     10,
		MaxBatchInterval: 500 * time.Millisecond,
	})
	p.Start()

	classes := []string{"person", "car", "dog"}
	var wg sync.WaitGroup
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				err := p.Produce(context.Background(), sampleDetection(classes[(w+i)%len(classes)], w*50+i))
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	assert.Eventually(t, func() bool { return p.Persisted() == 150 }, 5*time.Second, 10*time.Millisecond)
	p.Stop()

	assert.Equal(t, 150, store.totalRecords())
	assert.EqualValues(t, 0, p.Dropped())
	assert.GreaterOrEqual(t, store.batchCount(), 15)
	for _, b := range store.batches {
		assert.LessOrEqual(t, len(b), 10)
	}
	// Accounting invariant: everything that entered the channel is accounted.
	assert.EqualValues(t, 150, p.Persisted()+p.Dropped())
}
