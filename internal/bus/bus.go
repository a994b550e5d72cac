package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opensource-finance/spiritx/internal/domain"
)

// New creates an event bus from configuration.
// Community tier gets the in-process ChannelBus; Pro tier gets NATS.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// PublishEvent encodes ev as JSON and publishes it on topic.
func PublishEvent(ctx context.Context, b domain.EventBus, topic string, ev domain.PlayerEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Type, err)
	}
	return b.Publish(ctx, topic, payload)
}

// DecodeEvent reads a PlayerEvent from a bus message.
func DecodeEvent(msg *domain.Message) (domain.PlayerEvent, error) {
	var ev domain.PlayerEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return ev, fmt.Errorf("failed to decode event on %s: %w", msg.Topic, err)
	}
	return ev, nil
}
