package webhooks

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/clubemecanico/courses-backend/api/responses"
	"github.com/clubemecanico/courses-backend/internal/reconciliation"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
	"github.com/clubemecanico/courses-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

// recordedHeaders are copied onto the gateway event log.
var recordedHeaders = []string{"X-Request-Id", "X-Signature", "User-Agent", "Content-Type"}

type mercadoPagoPayload struct {
	ID     flexibleID `json:"id"`
	Type   string     `json:"type"`
	Topic  string     `json:"topic"`
	Action string     `json:"action"`
	Data   struct {
		ID flexibleID `json:"id"`
	} `json:"data"`
}

// flexibleID accepts both string and numeric JSON ids.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if bytes.Equal(trimmed, []byte("null")) {
		*f = ""
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

// MercadoPagoWebhook receives payment notifications. Anything that parses is
// acknowledged with 200, including deliveries whose processing failed.
func MercadoPagoWebhook(svc reconciliation.Service, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation service unavailable"))
			return
		}

		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		notification, err := decodeNotification(r, raw)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if strings.TrimSpace(secret) != "" {
			if err := verifySignature(r, notification.ResourceID, secret); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		// outcome and errors are logged and recorded by the service
		_, _ = svc.HandleNotification(ctx, notification)

		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}

func decodeNotification(r *http.Request, raw []byte) (reconciliation.Notification, error) {
	var payload mercadoPagoPayload
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return reconciliation.Notification{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
		}
	} else {
		raw = nil
	}

	query := r.URL.Query()
	notification := reconciliation.Notification{
		ID:         string(payload.ID),
		Type:       firstNonEmpty(payload.Type, payload.Topic, query.Get("type"), query.Get("topic")),
		Action:     payload.Action,
		ResourceID: firstNonEmpty(string(payload.Data.ID), query.Get("data.id"), query.Get("id")),
		Raw:        raw,
		Headers:    map[string]string{},
	}
	for _, name := range recordedHeaders {
		if value := r.Header.Get(name); value != "" {
			notification.Headers[strings.ToLower(name)] = value
		}
	}
	return notification, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
