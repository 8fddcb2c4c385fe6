package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Runnable represents a component that can be started and shutdown.
type Runnable interface {
	Start(ctx context.Context) error
	Shutdown() error
}

type topicer interface {
	Topic() string
}

// ConsumerGroup manages multiple consumers with unified lifecycle.
type ConsumerGroup struct {
	consumers    []Runnable
	subscriber   message.Subscriber
	logger       *zap.Logger
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewConsumerGroup creates a new consumer group.
func NewConsumerGroup(subscriber message.Subscriber, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		subscriber: subscriber,
		logger:     logger,
	}
}

// Add registers consumers with the group.
func (g *ConsumerGroup) Add(consumers ...Runnable) {
	g.consumers = append(g.consumers, consumers...)
}

// Topics lists the topics of the registered consumers that expose one.
func (g *ConsumerGroup) Topics() []string {
	topics := make([]string, 0, len(g.consumers))

	for _, c := range g.consumers {
		if t, ok := c.(topicer); ok {
			topics = append(topics, t.Topic())
		}
	}

	return topics
}

// Start starts all consumers in the group.
func (g *ConsumerGroup) Start(ctx context.Context) error {
	for i, consumer := range g.consumers {
		if err := consumer.Start(ctx); err != nil {
			// Shutdown already started consumers on failure
			for j := i - 1; j >= 0; j-- {
				_ = g.consumers[j].Shutdown()
			}

			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}
	}

	g.logger.Info("consumer group started",
		zap.Int("count", len(g.consumers)),
		zap.Strings("topics", g.Topics()),
	)

	return nil
}

// Shutdown stops all consumers gracefully. Later calls return the first result.
func (g *ConsumerGroup) Shutdown() error {
	g.shutdownOnce.Do(func() {
		g.logger.Info("shutting down consumer group")

		for _, consumer := range g.consumers {
			if err := consumer.Shutdown(); err != nil && g.shutdownErr == nil {
				g.shutdownErr = err
			}
		}

		if err := g.subscriber.Close(); err != nil && g.shutdownErr == nil {
			g.shutdownErr = err
		}
	})

	return g.shutdownErr
}
