// Package worker relays player change events from the EventBus to live clients.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/spiritx/internal/bus"
	"github.com/opensource-finance/spiritx/internal/domain"
)

// Broadcaster delivers a message to every connected client.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Notification is what a live client receives.
type Notification struct {
	Type      string `json:"type"`
	PlayerID  string `json:"playerId,omitempty"`
	Count     int    `json:"count,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Relay subscribes to the player topics and forwards each event.
type Relay struct {
	bus    domain.EventBus
	out    Broadcaster
	topics []string

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewRelay creates a relay over domain.PlayerTopics.
func NewRelay(eventBus domain.EventBus, out Broadcaster) *Relay {
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		bus:    eventBus,
		out:    out,
		topics: domain.PlayerTopics,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to every player topic. On failure the subscriptions
// made so far are released.
func (r *Relay) Start() error {
	for _, topic := range r.topics {
		sub, err := r.bus.Subscribe(r.ctx, topic, r.handleMessage)
		if err != nil {
			r.unsubscribeAll()
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		r.subscriptions = append(r.subscriptions, sub)
	}

	slog.Info("live relay started", "topics", len(r.subscriptions))
	return nil
}

func (r *Relay) handleMessage(ctx context.Context, msg *domain.Message) error {
	ev, err := bus.DecodeEvent(msg)
	if err != nil {
		slog.Error("failed to decode player event",
			"message_id", msg.ID,
			"topic", msg.Topic,
			"error", err,
		)
		return err
	}
	if ev.Type == "" {
		return fmt.Errorf("player event on %s has no type", msg.Topic)
	}

	ts := time.Now().UnixMilli()
	if msg.Timestamp > 0 {
		ts = time.Unix(0, msg.Timestamp).UnixMilli()
	}
	payload, err := json.Marshal(Notification{
		Type:      ev.Type,
		PlayerID:  ev.PlayerID,
		Count:     ev.Count,
		Timestamp: ts,
	})
	if err != nil {
		return err
	}

	r.out.Broadcast(payload)
	slog.Debug("player event relayed", "type", ev.Type, "player_id", ev.PlayerID)
	return nil
}

// Stop releases every subscription.
func (r *Relay) Stop() error {
	r.cancel()
	r.unsubscribeAll()
	slog.Info("live relay stopped")
	return nil
}

func (r *Relay) unsubscribeAll() {
	for _, sub := range r.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	r.subscriptions = nil
}

// Stats describes the relay's subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current relay statistics.
func (r *Relay) GetStats() Stats {
	topics := make([]string, len(r.subscriptions))
	for i, sub := range r.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(r.subscriptions),
		Topics:            topics,
	}
}
