package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who produced the event. System actors (cron, webhooks) leave UserID zero.
type ActorRef struct {
	UserID int64  `json:"userId,omitempty"`
	Source string `json:"source,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
