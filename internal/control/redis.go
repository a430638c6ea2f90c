package control

import (
	"context"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"
)

// RedisSource delivers control messages published on Redis channels. The
// channel index of a message is the position of its Redis channel in the
// list given to NewRedisSource.
type RedisSource struct {
	client   *redis.Client
	ctrl     *Controller
	channels []string
	index    map[string]int
}

// NewRedisSource returns a source that subscribes client to channels.
func NewRedisSource(client *redis.Client, channels []string, ctrl *Controller) *RedisSource {
	index := make(map[string]int, len(channels))
	for i, ch := range channels {
		index[ch] = i
	}
	return &RedisSource{
		client:   client,
		ctrl:     ctrl,
		channels: append([]string(nil), channels...),
		index:    index,
	}
}

// Run subscribes and applies messages until ctx is cancelled or the
// subscription is closed. It returns an error if the initial subscription
// cannot be confirmed.
func (s *RedisSource) Run(ctx context.Context) error {
	if len(s.channels) == 0 {
		return fmt.Errorf("redis source: no channels configured")
	}

	sub := s.client.Subscribe(ctx, s.channels...)
	defer sub.Close()

	// Wait for the subscription confirmation so connection problems surface
	// here instead of as a silently empty channel.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %v: %w", s.channels, err)
	}
	log.Printf("control: subscribed to redis channels %v", s.channels)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.deliver(msg.Channel, msg.Payload)
		}
	}
}

func (s *RedisSource) deliver(channel, payload string) {
	idx, ok := s.index[channel]
	if !ok {
		idx = -1
	}
	_ = s.ctrl.Handle([]byte(payload), idx)
}
