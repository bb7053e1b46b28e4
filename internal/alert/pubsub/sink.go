// Package pubsub delivers alerts to a Google Cloud Pub/Sub topic, where the
// notification worker fans them out to operators. The production sink.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
)

// Sink publishes alerts to a topic.
type Sink struct {
	topic  *pubsub.Topic
	logger *zap.Logger
}

// New builds a Sink from an existing client.
func New(client *pubsub.Client, topicID string, logger *zap.Logger) (*Sink, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("topic id is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{topic: client.Topic(topicID), logger: logger}, nil
}

// Deliver publishes the alert as a JSON message with severity attributes.
func (s *Sink) Deliver(ctx context.Context, alert ingest.Alert) error {
	payload := map[string]any{
		"severity": string(alert.Severity),
		"title":    alert.Title,
		"message":  alert.Message,
		"context":  alert.Context,
		"sentAt":   time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	result := s.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"severity": string(alert.Severity),
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	s.logger.Debug("alert published", zap.String("message_id", id))
	return nil
}

// Stop flushes pending messages.
func (s *Sink) Stop() {
	if s != nil && s.topic != nil {
		s.topic.Stop()
	}
}
