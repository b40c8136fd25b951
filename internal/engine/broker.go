package engine

import (
	"sync"

	"github.com/seantiz/nutristat/internal/model"
)

// subscriberBufferSize is the channel buffer for each status subscriber.
// A job produces at most two transitions, so this never fills.
const subscriberBufferSize = 4

// StatusBroker fans out job status transitions to subscribers.
// It is safe for concurrent use.
//
// A topic lives only while it has subscribers. Close does not remember
// finished jobs, so a caller subscribing to a job that may already be done
// must read the job's status after subscribing.
type StatusBroker struct {
	mu     sync.Mutex
	topics map[int64]*statusTopic
}

type statusTopic struct {
	subs   map[int]chan model.Job
	nextID int
}

// NewStatusBroker creates a new status broker.
func NewStatusBroker() *StatusBroker {
	return &StatusBroker{
		topics: make(map[int64]*statusTopic),
	}
}

// Subscribe returns a channel of status records for jobID and an
// unsubscribe function. The channel is closed when the job completes.
func (b *StatusBroker) Subscribe(jobID int64) (<-chan model.Job, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok {
		t = &statusTopic{subs: make(map[int]chan model.Job)}
		b.topics[jobID] = t
	}

	id := t.nextID
	t.nextID++
	ch := make(chan model.Job, subscriberBufferSize)
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
		if len(t.subs) == 0 && b.topics[jobID] == t {
			delete(b.topics, jobID)
		}
	}
}

// Publish delivers a status record to every subscriber of the job.
func (b *StatusBroker) Publish(j *model.Job) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[j.ID]
	if !ok {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- *j.Clone():
		default:
			// Never block a worker on a slow subscriber.
		}
	}
}

// Close closes every subscriber channel of the job and drops its topic.
func (b *StatusBroker) Close(jobID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[jobID]
	if !ok {
		return
	}
	for _, ch := range t.subs {
		close(ch)
	}
	delete(b.topics, jobID)
}

// topicCount reports how many jobs currently have subscribers.
func (b *StatusBroker) topicCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
