package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan Message, error)
	Close() error
}

// Message is a payload received on a channel.
type Message struct {
	Channel string
	Payload []byte
}
