package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue() *jobQueue {
	return newJobQueue(prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_queue_depth"}))
}

func TestJobQueueFIFO(t *testing.T) {
	q := newTestQueue()
	for i := int64(1); i <= 3; i++ {
		q.push(queuedJob{id: i})
	}
	assert.Equal(t, 3, q.len())

	stop := make(chan struct{})
	for i := int64(1); i <= 3; i++ {
		j, ok := q.pop(stop)
		require.True(t, ok)
		assert.Equal(t, i, j.id)
	}
	assert.Equal(t, 0, q.len())
}

func TestJobQueuePopWaitsForPush(t *testing.T) {
	q := newTestQueue()
	stop := make(chan struct{})

	got := make(chan int64, 1)
	go func() {
		j, ok := q.pop(stop)
		if ok {
			got <- j.id
		}
	}()

	select {
	case <-got:
		t.Fatal("pop returned before push")
	case <-time.After(20 * time.Millisecond):
	}

	q.push(queuedJob{id: 9})
	select {
	case id := <-got:
		assert.Equal(t, int64(9), id)
	case <-time.After(time.Second):
		t.Fatal("pop did not wake after push")
	}
}

func TestJobQueueDrainsAfterStop(t *testing.T) {
	q := newTestQueue()
	q.push(queuedJob{id: 1})
	q.push(queuedJob{id: 2})

	stop := make(chan struct{})
	close(stop)

	j, ok := q.pop(stop)
	require.True(t, ok)
	assert.Equal(t, int64(1), j.id)
	j, ok = q.pop(stop)
	require.True(t, ok)
	assert.Equal(t, int64(2), j.id)

	_, ok = q.pop(stop)
	assert.False(t, ok)
}

func TestJobQueueStopWakesIdleConsumers(t *testing.T) {
	q := newTestQueue()
	stop := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.pop(stop)
			assert.False(t, ok)
		}()
	}

	close(stop)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("idle consumers did not observe stop")
	}
}

func TestJobQueueManyConsumersSeeEveryItemOnce(t *testing.T) {
	q := newTestQueue()
	stop := make(chan struct{})

	const n = 500
	var mu sync.Mutex
	seen := make(map[int64]int)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				j, ok := q.pop(stop)
				if !ok {
					return
				}
				mu.Lock()
				seen[j.id]++
				mu.Unlock()
			}
		}()
	}

	for i := int64(1); i <= n; i++ {
		q.push(queuedJob{id: i})
	}
	close(stop)
	wg.Wait()

	require.Len(t, seen, n)
	for id, c := range seen {
		assert.Equal(t, 1, c, "item %d popped %d times", id, c)
	}
}

func TestJobQueueDepthTracksConcurrentChanges(t *testing.T) {
	depth := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_queue_depth"})
	q := newJobQueue(depth)
	stop := make(chan struct{})

	const producers, perProducer = 8, 200
	var wg sync.WaitGroup
	for p := range producers {
		wg.Go(func() {
			for i := range perProducer {
				q.push(queuedJob{id: int64(p*perProducer + i + 1)})
			}
		})
	}
	for range producers / 2 {
		wg.Go(func() {
			for range perProducer {
				_, ok := q.pop(stop)
				if !ok {
					return
				}
			}
		})
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer/2, q.len())
	assert.Equal(t, float64(q.len()), testutil.ToFloat64(depth))

	close(stop)
	for {
		if _, ok := q.pop(stop); !ok {
			break
		}
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(depth))
}
