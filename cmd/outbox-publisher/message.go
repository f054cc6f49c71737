package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/clubemecanico/courses-backend/pkg/db/models"
	"github.com/clubemecanico/courses-backend/pkg/outbox/registry"
)

var errNoPublisher = errors.New("no publisher for topic")

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// topicPublishers opens one publisher per topic and reuses it.
type topicPublishers struct {
	source topicSource
	open   func(topic string) publisher

	mu    sync.Mutex
	cache map[string]publisher
}

func newTopicPublishers(source topicSource) *topicPublishers {
	return &topicPublishers{
		source: source,
		cache:  map[string]publisher{},
		open: func(topic string) publisher {
			handle := source.Publisher(topic)
			if handle == nil {
				return nil
			}
			return gcpPublisher{handle}
		},
	}
}

func (t *topicPublishers) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pub, ok := t.cache[topic]; ok {
		return pub
	}
	pub := t.open(topic)
	if pub != nil {
		t.cache[topic] = pub
	}
	return pub
}

// publish sends msg and waits for the server ack. A missing publisher is non-retryable.
func (t *topicPublishers) publish(ctx context.Context, topic string, msg *gcppubsub.Message) error {
	pub := t.get(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("%w %q", errNoPublisher, topic))
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(ctx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("%w %q: nil publish result", errNoPublisher, topic))
	}
	_, err := result.Get(ctx)
	return err
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.Publisher.Publish(ctx, msg)
}

// orderReferenced payloads expose the public order number.
type orderReferenced interface {
	OrderRef() string
}

// buildMessage carries the envelope bytes unchanged. Attributes let subscribers filter on
// event type and priority without decoding the body.
func buildMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	priority := "normal"
	if resolved.Descriptor.Urgent {
		priority = "urgent"
	}
	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   strconv.FormatInt(event.AggregateID, 10),
		"priority":       priority,
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if ref, ok := resolved.Payload.(orderReferenced); ok && ref.OrderRef() != "" {
		attrs["order_number"] = ref.OrderRef()
	}
	return &gcppubsub.Message{Data: event.Payload, Attributes: attrs}
}

func eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID,
		"attempt_count": event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	if resolved == nil {
		return fields
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID
	if ref, ok := resolved.Payload.(orderReferenced); ok && ref.OrderRef() != "" {
		fields["order_number"] = ref.OrderRef()
	}
	return fields
}
