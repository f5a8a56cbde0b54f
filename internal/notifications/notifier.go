package notifications

import (
	"context"
	"encoding/json"
	"log"
	"runtime/debug"

	"github.com/redis/go-redis/v9"
)

// Notifier publishes comment events into Redis channels so every API
// instance can fan them out to its own websocket clients.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier using the provided Redis client.
// A nil client turns every publish into a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Publish sends a comment event to its target's channel. Delivery is
// best-effort; a failed publish never fails the mutation that caused it.
func (n *Notifier) Publish(ctx context.Context, event CommentEvent) {
	if n.rdb == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("notifier: marshal event: %v", err)
		return
	}
	if err := n.rdb.Publish(ctx, event.Channel(), payload).Err(); err != nil {
		log.Printf("notifier: publish to %s: %v", event.Channel(), err)
	}
}

// StartSubscriber subscribes to every comment channel and calls onMessage
// for each incoming message until ctx is canceled.
func (n *Notifier) StartSubscriber(ctx context.Context, onMessage func(channel string, payload string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, "comments:*")
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							log.Printf("PANIC in comment subscriber: %v\n%s", r, debug.Stack())
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
