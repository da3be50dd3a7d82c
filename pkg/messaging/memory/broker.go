// Package memory is an in-process broker for single-binary deployments and
// tests. Delivery is at most once: a subscriber whose buffer is full misses
// the message.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jwalitptl/homecare-api/pkg/messaging"
)

var ErrClosed = errors.New("broker is closed")

type subscription struct {
	channels map[string]struct{}
	out      chan messaging.Message
}

type Broker struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	buffer int
	closed bool
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 100
	}
	return &Broker{subs: make(map[*subscription]struct{}), buffer: buffer}
}

func (b *Broker) Publish(ctx context.Context, channel string, message interface{}) error {
	var payload []byte
	switch m := message.(type) {
	case []byte:
		payload = m
	case json.RawMessage:
		payload = m
	default:
		encoded, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		payload = encoded
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.subs {
		if _, ok := sub.channels[channel]; !ok {
			continue
		}
		select {
		case sub.out <- messaging.Message{Channel: channel, Payload: payload}:
		default:
		}
	}
	return nil
}

// Subscribe delivers messages until ctx is done or the broker closes.
func (b *Broker) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.Message, error) {
	sub := &subscription{
		channels: make(map[string]struct{}, len(channels)),
		out:      make(chan messaging.Message, b.buffer),
	}
	for _, c := range channels {
		sub.channels[c] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.unsubscribe(sub)
	}()
	return sub.out, nil
}

func (b *Broker) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.out)
	}
}

func (b *Broker) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		close(sub.out)
	}
	return nil
}
