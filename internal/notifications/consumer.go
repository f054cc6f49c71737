package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/clubemecanico/courses-backend/pkg/enums"
	"github.com/clubemecanico/courses-backend/pkg/logger"
	"github.com/clubemecanico/courses-backend/pkg/mailer"
	"github.com/clubemecanico/courses-backend/pkg/outbox"
	"github.com/clubemecanico/courses-backend/pkg/outbox/payloads"
	"github.com/clubemecanico/courses-backend/pkg/outbox/registry"
)

const emailConsumer = "email-notifications"

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type processedGuard interface {
	Claim(ctx context.Context, consumer, id string) (bool, error)
	Complete(ctx context.Context, consumer, id string) error
	Release(ctx context.Context, consumer, id string) error
}

// ConsumerParams wires the email consumer.
type ConsumerParams struct {
	Subscription receiver
	Guard        processedGuard
	Sender       mailer.Sender
	AdminEmail   string
	Logger       *logger.Logger
}

// Consumer turns paid-order and seat alerts from the notification subscription into emails.
type Consumer struct {
	subscription receiver
	guard        processedGuard
	sender       mailer.Sender
	decoders     *registry.DecoderRegistry
	recipients   []string
	logg         *logger.Logger
}

// NewConsumer builds the email consumer. AdminEmail may hold several comma-separated addresses.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("mail sender required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	recipients := splitRecipients(params.AdminEmail)
	if len(recipients) == 0 {
		return nil, fmt.Errorf("admin email required")
	}
	return &Consumer{
		subscription: params.Subscription,
		guard:        params.Guard,
		sender:       params.Sender,
		decoders:     newDecoders(),
		recipients:   recipients,
		logg:         params.Logger,
	}, nil
}

func newDecoders() *registry.DecoderRegistry {
	decoders := registry.NewDecoderRegistry()
	decoders.Register(enums.EventOrderPaid, 1, func(payload json.RawMessage) (interface{}, error) {
		var event payloads.OrderPaidEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	})
	decoders.Register(enums.EventSeatsExhausted, 1, func(payload json.RawMessage) (interface{}, error) {
		var event payloads.SeatsExhaustedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, err
		}
		return event, nil
	})
	return decoders
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if eventType != enums.EventOrderPaid && eventType != enums.EventSeatsExhausted {
		c.logg.Info(logCtx, "skipping event without email")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	eventID := strings.TrimSpace(envelope.EventID)
	if eventID == "" {
		c.logg.Warn(logCtx, "envelope without event id")
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID)

	version := envelope.Version
	if version == 0 {
		version = 1
	}
	decoded, err := c.decoders.Decode(eventType, version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode payload", err)
		return processResult{ack: true}
	}

	already, err := c.guard.Claim(ctx, emailConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.send(logCtx, decoded); err != nil {
		c.logg.Error(logCtx, "email delivery failed", err)
		if relErr := c.guard.Release(ctx, emailConsumer, eventID); relErr != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", relErr.Error()), "release idempotency marker failed")
		}
		return processResult{nack: true}
	}
	if err := c.guard.Complete(ctx, emailConsumer, eventID); err != nil {
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "complete idempotency marker failed")
	}
	return processResult{ack: true}
}

func (c *Consumer) send(ctx context.Context, decoded interface{}) error {
	var (
		msg mailer.Message
		err error
	)
	switch event := decoded.(type) {
	case payloads.OrderPaidEvent:
		ctx = c.logg.WithOrderID(ctx, event.OrderID)
		msg, err = renderOrderPaid(event)
	case payloads.SeatsExhaustedEvent:
		ctx = c.logg.WithFields(ctx, map[string]any{
			"order_id":         event.OrderID,
			"class_session_id": event.ClassSessionID,
		})
		msg, err = renderSeatsExhausted(event)
	default:
		return fmt.Errorf("unexpected payload %T", decoded)
	}
	if err != nil {
		return err
	}
	msg.To = c.recipients
	if err := c.sender.Send(ctx, msg); err != nil {
		return err
	}
	c.logg.Info(ctx, "notification email sent")
	return nil
}

func splitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
