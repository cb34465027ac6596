package mq

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
)

// LocalQueue dispatches messages in process to every handler whose glob
// pattern matches the event name. Handlers run synchronously on the
// publishing goroutine.
type LocalQueue struct {
	handlers map[string][]Handler
	mu       sync.RWMutex
}

func NewLocalQueue() *LocalQueue {
	return &LocalQueue{
		handlers: make(map[string][]Handler),
	}
}

func (q *LocalQueue) Subscribe(_ context.Context, pattern string, handler Handler) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return fmt.Errorf("invalid subscription pattern %q: %w", pattern, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[pattern] = append(q.handlers[pattern], handler)
	return nil
}

func (q *LocalQueue) Unsubscribe(pattern string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.handlers, pattern)
	return nil
}

func (q *LocalQueue) Publish(_ context.Context, msg Message) error {
	q.mu.RLock()
	var matched []Handler
	for pattern, handlers := range q.handlers {
		// patterns were validated on subscribe
		if ok, _ := path.Match(pattern, msg.EventName); ok {
			matched = append(matched, handlers...)
		}
	}
	q.mu.RUnlock()

	for _, handler := range matched {
		q.dispatch(handler, msg)
	}
	return nil
}

func (q *LocalQueue) dispatch(handler Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Message handler panicked", "event", msg.EventName, "id", msg.ID, "panic", r)
		}
	}()
	handler(msg)
}

func (q *LocalQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.handlers)
	return nil
}
