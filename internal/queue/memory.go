package queue

import (
	"sync"
)

// InMemoryQueue is a process-local dispatch queue. It backs tests and
// single-process deployments without a broker.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers []func(broadcastID int) error
	wg       sync.WaitGroup
}

var _ DispatchQueue = (*InMemoryQueue)(nil)

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{}
}

// Subscribe adds a handler invoked for every published job.
func (q *InMemoryQueue) Subscribe(handler func(broadcastID int) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// PublishDispatch hands the job to every subscriber on its own goroutine,
// mirroring the broker's async delivery.
func (q *InMemoryQueue) PublishDispatch(broadcastID int) error {
	q.mu.Lock()
	handlers := make([]func(int) error, len(q.handlers))
	copy(handlers, q.handlers)
	q.mu.Unlock()

	for _, h := range handlers {
		h := h
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			_ = h(broadcastID)
		}()
	}
	return nil
}

// Wait blocks until every published job has been handled.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}
