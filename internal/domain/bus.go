package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// Topics for player change notifications.
const (
	TopicPlayerUpdated      = "spiritx.player.updated"
	TopicPlayersListUpdated = "spiritx.players.updated"
	TopicStatsUpdated       = "spiritx.stats.updated"
)

// PlayerTopics lists every topic a live client is interested in.
var PlayerTopics = []string{TopicPlayerUpdated, TopicPlayersListUpdated, TopicStatsUpdated}

// PlayerEvent is the payload published on the player topics.
type PlayerEvent struct {
	Type     string `json:"type"` // PlayerUpdated, PlayersListUpdated, StatsUpdated
	PlayerID string `json:"playerId,omitempty"`
	Count    int    `json:"count,omitempty"`
}

// Player event types, one per topic.
const (
	EventPlayerUpdated      = "PlayerUpdated"
	EventPlayersListUpdated = "PlayersListUpdated"
	EventStatsUpdated       = "StatsUpdated"
)
