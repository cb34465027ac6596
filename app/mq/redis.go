package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisQueue publishes each message as JSON on a channel named after its
// event, so consumers in other processes can PSUBSCRIBE to "feed.*".
type RedisQueue struct {
	client *redis.Client
	subs   map[string]*redis.PubSub
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{
		client: client,
		subs:   make(map[string]*redis.PubSub),
	}
}

func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message %s: %w", msg.EventName, err)
	}

	if err := q.client.Publish(ctx, msg.EventName, data).Err(); err != nil {
		return fmt.Errorf("failed to publish message %s: %w", msg.EventName, err)
	}
	return nil
}

// Subscribe starts delivering messages on channels matching pattern to
// handler until Unsubscribe or Close.
func (q *RedisQueue) Subscribe(ctx context.Context, pattern string, handler Handler) error {
	pubsub := q.client.PSubscribe(ctx, pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
	}

	q.mu.Lock()
	if prev, ok := q.subs[pattern]; ok {
		_ = prev.Close()
	}
	q.subs[pattern] = pubsub
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for m := range pubsub.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				slog.Warn("Dropping malformed message", "channel", m.Channel, "error", err)
				continue
			}
			handler(msg)
		}
	}()

	return nil
}

func (q *RedisQueue) Unsubscribe(pattern string) error {
	q.mu.Lock()
	pubsub, ok := q.subs[pattern]
	delete(q.subs, pattern)
	q.mu.Unlock()

	if !ok {
		return nil
	}
	if err := pubsub.Close(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", pattern, err)
	}
	return nil
}

// Close stops all subscriptions. The client itself is owned by the caller.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	for pattern, pubsub := range q.subs {
		_ = pubsub.Close()
		delete(q.subs, pattern)
	}
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
