package mq

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	_ Queue = (*LocalQueue)(nil)
	_ Queue = (*RedisQueue)(nil)
)

func TestNewMessage(t *testing.T) {
	before := time.Now().UnixMilli()
	msg := NewMessage("feed.entries", "FeedReader", map[string]string{"url": "https://example.org"})

	if msg.ID == "" {
		t.Error("Expected message ID to be set")
	}
	if msg.EventName != "feed.entries" {
		t.Errorf("Expected event 'feed.entries', got '%s'", msg.EventName)
	}
	if msg.Sender != "FeedReader" {
		t.Errorf("Expected sender 'FeedReader', got '%s'", msg.Sender)
	}
	if msg.Ts < before {
		t.Errorf("Expected timestamp >= %d, got %d", before, msg.Ts)
	}

	other := NewMessage("feed.entries", "FeedReader", nil)
	if other.ID == msg.ID {
		t.Error("Expected unique message IDs")
	}
}

func TestLocalQueueGlobDispatch(t *testing.T) {
	q := NewLocalQueue()
	ctx := context.Background()

	var feedEvents, entryEvents, otherEvents []string
	if err := q.Subscribe(ctx, "feed.*", func(m Message) { feedEvents = append(feedEvents, m.EventName) }); err != nil {
		t.Fatal(err)
	}
	if err := q.Subscribe(ctx, "feed.entries", func(m Message) { entryEvents = append(entryEvents, m.EventName) }); err != nil {
		t.Fatal(err)
	}
	if err := q.Subscribe(ctx, "mail.*", func(m Message) { otherEvents = append(otherEvents, m.EventName) }); err != nil {
		t.Fatal(err)
	}

	for _, event := range []string{"feed.entries", "feed.success", "feed.error"} {
		if err := q.Publish(ctx, NewMessage(event, "test", nil)); err != nil {
			t.Fatal(err)
		}
	}

	if len(feedEvents) != 3 {
		t.Errorf("Expected 3 feed events, got %v", feedEvents)
	}
	if len(entryEvents) != 1 || entryEvents[0] != "feed.entries" {
		t.Errorf("Expected only feed.entries, got %v", entryEvents)
	}
	if len(otherEvents) != 0 {
		t.Errorf("Expected no mail events, got %v", otherEvents)
	}
}

func TestLocalQueueUnsubscribe(t *testing.T) {
	q := NewLocalQueue()
	ctx := context.Background()

	count := 0
	_ = q.Subscribe(ctx, "feed.*", func(Message) { count++ })
	_ = q.Publish(ctx, NewMessage("feed.success", "test", nil))
	_ = q.Unsubscribe("feed.*")
	_ = q.Publish(ctx, NewMessage("feed.success", "test", nil))

	if count != 1 {
		t.Errorf("Expected 1 delivery, got %d", count)
	}
}

func TestLocalQueueInvalidPattern(t *testing.T) {
	q := NewLocalQueue()
	if err := q.Subscribe(context.Background(), "feed.[", func(Message) {}); err == nil {
		t.Error("Expected error for invalid pattern")
	}
}

func TestLocalQueueHandlerPanic(t *testing.T) {
	q := NewLocalQueue()
	ctx := context.Background()

	delivered := false
	_ = q.Subscribe(ctx, "feed.error", func(Message) { panic("boom") })
	_ = q.Subscribe(ctx, "feed.*", func(Message) { delivered = true })

	if err := q.Publish(ctx, NewMessage("feed.error", "test", nil)); err != nil {
		t.Fatal(err)
	}
	if !delivered {
		t.Error("Expected other handlers to run after a panic")
	}
}

func TestRedisQueuePublishSubscribe(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	q := NewRedisQueue(client)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan Message, 1)
	if err := q.Subscribe(ctx, "feed.*", func(m Message) { received <- m }); err != nil {
		t.Fatal(err)
	}

	sent := NewMessage("feed.success", "FeedReader", map[string]string{"url": "https://example.org"})
	if err := q.Publish(ctx, sent); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-received:
		if got.ID != sent.ID || got.EventName != "feed.success" {
			t.Errorf("Expected message %s, got %+v", sent.ID, got)
		}
		data, ok := got.Data.(map[string]any)
		if !ok || data["url"] != "https://example.org" {
			t.Errorf("Expected data to round-trip, got %v", got.Data)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for message")
	}
}
