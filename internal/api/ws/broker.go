package ws

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 64

// LocalBroker is an in-process pub/sub used when Redis is not configured.
// Slow subscribers miss payloads rather than blocking publishers.
type LocalBroker struct {
	mu   sync.Mutex
	subs map[string]map[*localSub]struct{}
}

type localSub struct {
	ch   chan []byte
	once sync.Once
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: make(map[string]map[*localSub]struct{})}
}

func (b *LocalBroker) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[channel] {
		select {
		case sub.ch <- payload:
		default:
			log.Debug().Str("channel", channel).Msg("ws: dropping event for slow subscriber")
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := &localSub{ch: make(chan []byte, subscriberBuffer)}

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*localSub]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	b.mu.Unlock()

	cleanup := func() {
		sub.once.Do(func() {
			b.mu.Lock()
			delete(b.subs[channel], sub)
			if len(b.subs[channel]) == 0 {
				delete(b.subs, channel)
			}
			b.mu.Unlock()
			close(sub.ch)
		})
	}

	go func() {
		<-ctx.Done()
		cleanup()
	}()

	return sub.ch, cleanup, nil
}
