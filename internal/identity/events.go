// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/dreamlog/internal/authz"
	"github.com/taibuivan/dreamlog/internal/platform/constants"
	"github.com/taibuivan/dreamlog/internal/platform/metrics"
)

// # Session Events

// EventKind names a session lifecycle change.
type EventKind string

const (
	EventSignedIn    EventKind = "signed_in"
	EventSignedOut   EventKind = "signed_out"
	EventRefreshed   EventKind = "refreshed"
	EventRoleChanged EventKind = "role_changed"
)

// Event is published on the session channel. An empty SessionID on a
// signed_out event means every session of the principal.
type Event struct {
	Kind        EventKind `json:"kind"`
	PrincipalID string    `json:"principalId"`
	SessionID   string    `json:"sessionId,omitempty"`
	Role        string    `json:"role,omitempty"`
	At          time.Time `json:"at"`
}

// # Broker

/*
Broker publishes session events on Redis and fans them out to in-process
subscribers.

Every API instance runs one broker. Local subscribers only see events after
they went through Redis, so all instances observe the same order.
*/
type Broker struct {
	client  redis.UniversalClient
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu          sync.RWMutex
	subscribers map[string]map[int]func(Event)
	nextID      int
}

// NewBroker creates a broker. Call [Broker.Start] before relying on delivery.
func NewBroker(client redis.UniversalClient, m *metrics.Metrics, logger *slog.Logger) *Broker {
	return &Broker{
		client:      client,
		metrics:     m,
		logger:      logger,
		subscribers: make(map[string]map[int]func(Event)),
	}
}

// Start subscribes to the session channel and delivers events until ctx ends.
// It returns once the subscription is confirmed by Redis.
func (broker *Broker) Start(ctx context.Context) error {
	pubsub := broker.client.Subscribe(ctx, constants.RedisChannelSessions)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("session_events_subscribe_failed: %w", err)
	}

	go func() {
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case message, ok := <-messages:
				if !ok {
					return
				}
				broker.dispatch(ctx, message.Payload)
			}
		}
	}()

	broker.logger.Info("session_events_subscribed", slog.String("channel", constants.RedisChannelSessions))
	return nil
}

/*
Publish sends event to every instance.

Parameters:
  - context: context.Context
  - event: Event

Returns:
  - error: Encoding or Redis failures
*/
func (broker *Broker) Publish(context context.Context, event Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("session_event_encode_failed: %w", err)
	}
	if err := broker.client.Publish(context, constants.RedisChannelSessions, payload).Err(); err != nil {
		return fmt.Errorf("session_event_publish_failed: %w", err)
	}
	broker.metrics.ObserveSessionEvent(string(event.Kind))
	return nil
}

// RoleChanged implements authz.RoleNotifier.
func (broker *Broker) RoleChanged(context context.Context, principalID string, role authz.Role) {
	err := broker.Publish(context, Event{Kind: EventRoleChanged, PrincipalID: principalID, Role: string(role)})
	if err != nil {
		broker.logger.WarnContext(context, "role_change_publish_failed",
			slog.String("principal_id", principalID),
			slog.Any("error", err),
		)
	}
}

// Subscribe registers fn for events of principalID. fn runs on the delivery
// goroutine and must not block.
func (broker *Broker) Subscribe(principalID string, fn func(Event)) (unsubscribe func()) {
	broker.mu.Lock()
	defer broker.mu.Unlock()

	id := broker.nextID
	broker.nextID++
	if broker.subscribers[principalID] == nil {
		broker.subscribers[principalID] = make(map[int]func(Event))
	}
	broker.subscribers[principalID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			broker.mu.Lock()
			defer broker.mu.Unlock()
			delete(broker.subscribers[principalID], id)
			if len(broker.subscribers[principalID]) == 0 {
				delete(broker.subscribers, principalID)
			}
		})
	}
}

func (broker *Broker) dispatch(ctx context.Context, payload string) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		broker.logger.WarnContext(ctx, "session_event_decode_failed", slog.Any("error", err))
		return
	}

	broker.mu.RLock()
	listeners := make([]func(Event), 0, len(broker.subscribers[event.PrincipalID]))
	for _, fn := range broker.subscribers[event.PrincipalID] {
		listeners = append(listeners, fn)
	}
	broker.mu.RUnlock()

	for _, fn := range listeners {
		fn(event)
	}
}
