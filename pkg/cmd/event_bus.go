package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/dukex/flowrun/pkg/channels/gochannel"
	"github.com/dukex/flowrun/pkg/channels/kafka"
	"github.com/dukex/flowrun/pkg/eventbus"
)

const (
	EventBusGoChannel = "gochannel"
	EventBusKafka     = "kafka"
)

// NewEventBus creates the event bus for provider. brokers is a comma separated
// list used by the kafka provider; serviceName names its consumer group.
func NewEventBus(provider, brokers, serviceName string, logger *slog.Logger) (*eventbus.WatermillEventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case EventBusGoChannel, "":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	case EventBusKafka:
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider: %s", provider)
	}
}
