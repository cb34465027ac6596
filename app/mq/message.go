package mq

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Message is the envelope every event travels in, whichever queue carries it.
type Message struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	EventName string `json:"eventName"`
	Data      any    `json:"data"`
	Ts        int64  `json:"ts"`
}

func NewMessage(eventName, sender string, data any) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		EventName: eventName,
		Data:      data,
		Ts:        time.Now().UnixMilli(),
	}
}

type Handler func(Message)

// Publisher is the only part of a queue the feed reader needs.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type Queue interface {
	Publisher
	Subscribe(ctx context.Context, pattern string, handler Handler) error
	Unsubscribe(pattern string) error
	Close() error
}
