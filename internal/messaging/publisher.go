package messaging

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MetadataTopic is the message metadata key holding the topic an event was published on.
const MetadataTopic = "topic"

// Publish is a function that publishes a typed event.
type Publish[T any] func(event *T) error

// NewPublishFunc creates a typed publish function for a specific topic.
func NewPublishFunc[T any](publisher message.Publisher, topic string) Publish[T] {
	return func(event *T) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}

		msg := message.NewMessage(uuid.NewString(), payload)
		msg.Metadata.Set(MetadataTopic, topic)

		return publisher.Publish(topic, msg)
	}
}

// BestEffort wraps publish so failures are logged instead of returned.
// Request paths use it where losing an audit event must not fail the request.
func BestEffort[T any](publish Publish[T], logger *zap.Logger) Publish[T] {
	if publish == nil {
		return Discard[T]()
	}

	return func(event *T) error {
		if err := publish(event); err != nil {
			logger.Warn("failed to publish event", zap.Error(err))
		}

		return nil
	}
}

// Discard returns a Publish that drops every event.
func Discard[T any]() Publish[T] {
	return func(*T) error { return nil }
}

// PublisherGroup manages the underlying publisher lifecycle.
type PublisherGroup struct {
	publisher message.Publisher
	backend   string
}

// NewPublisherGroup creates a new publisher group. backend names the transport for logs.
func NewPublisherGroup(publisher message.Publisher, backend string) *PublisherGroup {
	return &PublisherGroup{publisher: publisher, backend: backend}
}

// Publisher returns the underlying message publisher for creating typed publish functions.
func (g *PublisherGroup) Publisher() message.Publisher {
	return g.publisher
}

// Backend reports the transport behind the publisher, "redis" or "memory".
func (g *PublisherGroup) Backend() string {
	return g.backend
}

// Shutdown closes the underlying publisher.
func (g *PublisherGroup) Shutdown() error {
	return g.publisher.Close()
}
