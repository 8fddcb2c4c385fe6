package container

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/samber/do"
	"github.com/serroba/quota-guard/internal/audit"
	auditstore "github.com/serroba/quota-guard/internal/audit/store"
	"github.com/serroba/quota-guard/internal/messaging"
	"github.com/serroba/quota-guard/internal/store"
	"go.uber.org/zap"
)

// AuditConsumerGroup is the consumer group name shared by audit consumers on Redis streams.
const AuditConsumerGroup = "quota-audit"

// WatermillLoggerPackage provides the zap-backed watermill logger.
func WatermillLoggerPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (watermill.LoggerAdapter, error) {
		return messaging.NewZapLoggerAdapter(do.MustInvoke[*zap.Logger](i)), nil
	})
}

// InProcessPubSubPackage provides the in-memory transport used when Redis is not configured.
func InProcessPubSubPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*gochannel.GoChannel, error) {
		return gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			do.MustInvoke[watermill.LoggerAdapter](i),
		), nil
	})
}

// TransportPackage provides the watermill logger and the in-process transport.
// Register it once before the publisher and consumer packages.
func TransportPackage(i *do.Injector) {
	WatermillLoggerPackage(i)
	InProcessPubSubPackage(i)
}

// PublisherGroupPackage provides the event publisher and the typed publish functions.
func PublisherGroupPackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		conn := do.MustInvoke[*RedisConn](i)

		if conn.Client == nil {
			return messaging.NewPublisherGroup(do.MustInvoke[*gochannel.GoChannel](i), "memory"), nil
		}

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client: conn.Client,
		}, do.MustInvoke[watermill.LoggerAdapter](i))
		if err != nil {
			return nil, err
		}

		return messaging.NewPublisherGroup(publisher, "redis"), nil
	})

	do.Provide(i, func(i *do.Injector) (messaging.Publish[audit.QuotaRejectedEvent], error) {
		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return messaging.NewPublishFunc[audit.QuotaRejectedEvent](group.Publisher(), audit.TopicQuotaRejected), nil
	})

	do.Provide(i, func(i *do.Injector) (messaging.Publish[audit.WebhookReceivedEvent], error) {
		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return messaging.NewPublishFunc[audit.WebhookReceivedEvent](group.Publisher(), audit.TopicWebhookReceived), nil
	})

	do.Provide(i, func(i *do.Injector) (messaging.Publish[audit.ExportRequestedEvent], error) {
		group := do.MustInvoke[*messaging.PublisherGroup](i)

		return messaging.NewPublishFunc[audit.ExportRequestedEvent](group.Publisher(), audit.TopicExportRequested), nil
	})
}

// AuditStorePackage provides the audit store: PostgreSQL when configured, a logging no-op otherwise.
func AuditStorePackage(i *do.Injector) {
	do.Provide(i, func(i *do.Injector) (audit.Store, error) {
		conn := do.MustInvoke[*PostgresConn](i)
		logger := do.MustInvoke[*zap.Logger](i).Named("audit")

		if conn.Pool == nil {
			logger.Info("no audit database configured, logging events only")

			return auditstore.NewNoop(logger), nil
		}

		pg := store.NewPostgresAuditStore(conn.Pool)
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, err
		}

		return pg, nil
	})
}

// ConsumerGroupPackage provides the audit consumers. In process mode they read the
// in-memory transport the server publishes on.
func ConsumerGroupPackage(i *do.Injector) {
	AuditStorePackage(i)

	do.Provide(i, func(i *do.Injector) (*messaging.ConsumerGroup, error) {
		conn := do.MustInvoke[*RedisConn](i)
		logger := do.MustInvoke[*zap.Logger](i).Named("consumer")

		var subscriber message.Subscriber

		if conn.Client == nil {
			subscriber = do.MustInvoke[*gochannel.GoChannel](i)
		} else {
			sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        conn.Client,
				ConsumerGroup: AuditConsumerGroup,
			}, do.MustInvoke[watermill.LoggerAdapter](i))
			if err != nil {
				return nil, err
			}

			subscriber = sub
		}

		group := messaging.NewConsumerGroup(subscriber, logger)
		group.Add(audit.NewConsumers(subscriber, do.MustInvoke[audit.Store](i), logger)...)

		return group, nil
	})
}
