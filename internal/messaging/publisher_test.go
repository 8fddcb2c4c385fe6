package messaging_test

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/quota-guard/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockPublisher struct {
	messages   []*message.Message
	topic      string
	publishErr error
	closeErr   error
}

func (m *mockPublisher) Publish(topic string, msgs ...*message.Message) error {
	if m.publishErr != nil {
		return m.publishErr
	}

	m.topic = topic
	m.messages = append(m.messages, msgs...)

	return nil
}

func (m *mockPublisher) Close() error {
	return m.closeErr
}

type publishTestEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestNewPublishFunc(t *testing.T) {
	t.Run("publishes event successfully", func(t *testing.T) {
		mock := &mockPublisher{}
		publish := messaging.NewPublishFunc[publishTestEvent](mock, "test.topic")

		err := publish(&publishTestEvent{ID: "123", Name: "test"})

		require.NoError(t, err)
		assert.Equal(t, "test.topic", mock.topic)
		require.Len(t, mock.messages, 1)
		assert.Contains(t, string(mock.messages[0].Payload), `"id":"123"`)
		assert.Equal(t, "test.topic", mock.messages[0].Metadata.Get(messaging.MetadataTopic))
		assert.NotEmpty(t, mock.messages[0].UUID)
	})

	t.Run("returns error when publish fails", func(t *testing.T) {
		mock := &mockPublisher{publishErr: errors.New("publish error")}
		publish := messaging.NewPublishFunc[publishTestEvent](mock, "test.topic")

		err := publish(&publishTestEvent{ID: "123"})

		assert.Error(t, err)
	})
}

func TestBestEffort(t *testing.T) {
	t.Run("logs and swallows publish errors", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		mock := &mockPublisher{publishErr: errors.New("broker down")}
		publish := messaging.BestEffort(messaging.NewPublishFunc[publishTestEvent](mock, "t"), zap.New(core))

		require.NoError(t, publish(&publishTestEvent{ID: "1"}))
		assert.Equal(t, 1, logs.FilterMessage("failed to publish event").Len())
	})

	t.Run("nil publish discards", func(t *testing.T) {
		publish := messaging.BestEffort[publishTestEvent](nil, zap.NewNop())

		assert.NoError(t, publish(&publishTestEvent{ID: "1"}))
	})
}

func TestPublisherGroup(t *testing.T) {
	t.Run("returns underlying publisher", func(t *testing.T) {
		mock := &mockPublisher{}
		group := messaging.NewPublisherGroup(mock, "memory")

		assert.Equal(t, mock, group.Publisher())
		assert.Equal(t, "memory", group.Backend())
	})

	t.Run("shuts down successfully", func(t *testing.T) {
		group := messaging.NewPublisherGroup(&mockPublisher{}, "memory")

		require.NoError(t, group.Shutdown())
	})

	t.Run("returns error when close fails", func(t *testing.T) {
		group := messaging.NewPublisherGroup(&mockPublisher{closeErr: errors.New("close error")}, "redis")

		assert.Error(t, group.Shutdown())
	})
}
