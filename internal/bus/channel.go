// Package bus carries scoring pipeline events between the API, the async
// scoring workers, and alert consumers. The Community tier runs on Go
// channels in-process; the Pro tier runs on NATS.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/Saimudragada/fraud-detection-system/internal/domain"
)

// ChannelBus is the in-process Community tier event bus. Delivery is
// at-most-once: a subscriber whose buffer is full misses the event.
type ChannelBus struct {
	mu      sync.RWMutex
	buffer  int
	byTopic map[string]map[string][]*chanSub // tenantID -> topic -> subscribers
	dropped uint64
	closed  bool
}

type chanSub struct {
	id       string
	tenantID string
	topic    string
	inbox    chan *domain.Message
	cancel   context.CancelFunc
}

// NewChannelBus creates an in-process bus. bufferSize is the per-subscriber
// inbox depth; a burst of ingested transactions beyond it is dropped rather
// than blocking the publisher.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		buffer:  bufferSize,
		byTopic: make(map[string]map[string][]*chanSub),
	}
}

// Publish fans an event out to every subscriber of the tenant's topic.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	subs := b.byTopic[tenantID][topic]
	b.mu.RUnlock()

	msg := &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}

	for _, sub := range subs {
		select {
		case sub.inbox <- msg:
		default:
			b.mu.Lock()
			b.dropped++
			n := b.dropped
			b.mu.Unlock()
			slog.Warn("event dropped, subscriber inbox full",
				"topic", topic,
				"tenant_id", tenantID,
				"total_dropped", n,
			)
		}
	}

	return nil
}

// Subscribe registers a handler for a tenant's topic. The handler runs on a
// dedicated goroutine until Unsubscribe or Close.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &chanSub{
		id:       uuid.New().String(),
		tenantID: tenantID,
		topic:    topic,
		inbox:    make(chan *domain.Message, b.buffer),
		cancel:   cancel,
	}

	if b.byTopic[tenantID] == nil {
		b.byTopic[tenantID] = make(map[string][]*chanSub)
	}
	b.byTopic[tenantID][topic] = append(b.byTopic[tenantID][topic], sub)

	go func() {
		for {
			select {
			case <-subCtx.Done():
				return
			case msg := <-sub.inbox:
				if msg == nil {
					return
				}
				if err := handler(subCtx, msg); err != nil {
					slog.Error("event handler failed",
						"topic", msg.Topic,
						"message_id", msg.ID,
						"error", err,
					)
				}
			}
		}
	}()

	return sub, nil
}

// Request publishes and waits for a reply on a per-request reply topic.
func (b *ChannelBus) Request(ctx context.Context, tenantID string, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	replyCh := make(chan []byte, 1)
	replyTopic := topic + ".reply." + uuid.New().String()

	sub, err := b.Subscribe(ctx, tenantID, replyTopic, func(ctx context.Context, msg *domain.Message) error {
		select {
		case replyCh <- msg.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := b.Publish(ctx, tenantID, topic, payload); err != nil {
		return nil, err
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("request timeout")
	}
}

// Ping reports whether the bus is accepting events.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close stops every subscriber and rejects further operations.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, topics := range b.byTopic {
		for _, subs := range topics {
			for _, sub := range subs {
				sub.cancel()
				close(sub.inbox)
			}
		}
	}
	b.byTopic = make(map[string]map[string][]*chanSub)
	return nil
}

func (s *chanSub) Unsubscribe() error {
	s.cancel()
	return nil
}

func (s *chanSub) Topic() string {
	return s.topic
}
