package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/hospital-api/internal/email"
	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
)

// EmailHandler delivers notification.email events.
func EmailHandler(svc email.Service) Handler {
	return func(ctx context.Context, evt *model.OutboxEvent) error {
		var notice model.EmailNotice
		if err := json.Unmarshal(evt.Payload, &notice); err != nil {
			return fmt.Errorf("invalid email payload: %w", err)
		}
		return svc.Send(ctx, &notice)
	}
}

// PublishHandler replays change events that could not be published when
// they happened.
func PublishHandler(broker messaging.MessageBroker, channel string) Handler {
	return func(ctx context.Context, evt *model.OutboxEvent) error {
		return broker.Publish(ctx, channel, evt.Payload)
	}
}
