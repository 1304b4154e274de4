package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"
)

const channelPrefix = "notify:org:"

// Channel returns the pub/sub channel of an organization.
func Channel(orgID uuid.UUID) string {
	return channelPrefix + orgID.String()
}

// Broker publishes events to per-organization Redis channels.
type Broker struct {
	client    *redis.Client
	formatter *Formatter
	logger    *slog.Logger
}

// NewBroker constructs a broker. A nil formatter uses Indonesian text.
func NewBroker(client *redis.Client, formatter *Formatter, logger *slog.Logger) *Broker {
	if formatter == nil {
		formatter = NewFormatter(language.Und)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{client: client, formatter: formatter, logger: logger}
}

// Publish fills the event text and sends it to the organization channel.
func (b *Broker) Publish(ctx context.Context, ev Event) error {
	if b == nil || b.client == nil {
		return nil
	}
	if ev.OrganizationID == uuid.Nil {
		return fmt.Errorf("notify: publish %s: missing organization", ev.Type)
	}
	ev.Message = b.formatter.Describe(ev)
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(ev.OrganizationID), payload).Err(); err != nil {
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

// Notify implements Notifier by publishing directly.
func (b *Broker) Notify(ctx context.Context, ev Event) error {
	return b.Publish(ctx, ev)
}

// Subscription streams events of one organization.
type Subscription struct {
	pubsub *redis.PubSub
	events chan Event
}

// Events returns the channel of decoded events. It is closed when the
// subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close ends the subscription.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

// Subscribe listens on the organization channel. The subscription is
// confirmed before Subscribe returns.
func (b *Broker) Subscribe(ctx context.Context, orgID uuid.UUID) (*Subscription, error) {
	if b == nil || b.client == nil {
		return nil, fmt.Errorf("notify: subscribe: broker not configured")
	}
	pubsub := b.client.Subscribe(ctx, Channel(orgID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("notify: subscribe: %w", err)
	}
	sub := &Subscription{pubsub: pubsub, events: make(chan Event, 16)}
	go func() {
		defer close(sub.events)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("decode notification", slog.String("channel", msg.Channel), slog.Any("error", err))
					continue
				}
				select {
				case sub.events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return sub, nil
}
