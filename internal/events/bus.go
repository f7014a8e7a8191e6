// Package events records domain events next to the state change that caused them and fans
// them out to notifiers once that change has committed.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/obs"
)

// EventStore defines the persistence operation required by the event bus. Inside a
// transaction it is the transaction's Querier.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, e db.DomainEvent) error
}

// Notifier reacts to emitted events (log line, Kafka message, ...).
type Notifier interface {
	Name() string
	Notify(ctx context.Context, event db.DomainEvent) error
}

// Bus persists domain events and fans them out to downstream handlers.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
	Now       func() time.Time
}

// New builds an event with a fresh id. Payload may be any JSON-marshalable value, raw JSON
// bytes or a JSON string.
func (b *Bus) New(topic, aggregateID string, payload any) (db.DomainEvent, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return db.DomainEvent{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(aggregateID) == "" {
		return db.DomainEvent{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return db.DomainEvent{}, fmt.Errorf("events: encode payload: %w", err)
	}
	return db.DomainEvent{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		Payload:     encoded,
		CreatedAt:   b.now(),
	}, nil
}

// Record builds an event and writes it through s, normally the Querier of the transaction that
// makes the change the event describes. Dispatch the returned event after the commit.
func (b *Bus) Record(ctx context.Context, s EventStore, topic, aggregateID string, payload any) (db.DomainEvent, error) {
	ev, err := b.New(topic, aggregateID, payload)
	if err != nil {
		return db.DomainEvent{}, err
	}
	if s == nil {
		return db.DomainEvent{}, errors.New("events: store not configured")
	}
	if err := s.InsertDomainEvent(ctx, ev); err != nil {
		return db.DomainEvent{}, fmt.Errorf("events: persist event: %w", err)
	}
	return ev, nil
}

// Emit records the event in the bus store and dispatches it immediately.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any) (db.DomainEvent, error) {
	if b == nil || b.Store == nil {
		return db.DomainEvent{}, errors.New("events: store not configured")
	}
	ev, err := b.Record(ctx, b.Store, topic, aggregateID, payload)
	if err != nil {
		return db.DomainEvent{}, err
	}
	return ev, b.Dispatch(ctx, ev)
}

// Dispatch hands already persisted events to every notifier. Notifier failures are joined and
// returned; they never undo the persisted event.
func (b *Bus) Dispatch(ctx context.Context, evs ...db.DomainEvent) error {
	if b == nil {
		return nil
	}
	var joined error
	for _, ev := range evs {
		for _, notifier := range b.Notifiers {
			if notifier == nil {
				continue
			}
			if err := notifier.Notify(ctx, ev); err != nil {
				obs.ObserveEventPublish(notifier.Name(), "error")
				joined = errors.Join(joined, fmt.Errorf("events: notifier %s: %w", notifier.Name(), err))
				continue
			}
			obs.ObserveEventPublish(notifier.Name(), "ok")
		}
	}
	return joined
}

func (b *Bus) now() time.Time {
	if b != nil && b.Now != nil {
		return b.Now().UTC()
	}
	return time.Now().UTC()
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		return validJSON(v)
	case json.RawMessage:
		return validJSON(v)
	case string:
		if strings.TrimSpace(v) == "" {
			return []byte("{}"), nil
		}
		return validJSON([]byte(v))
	default:
		return json.Marshal(v)
	}
}

func validJSON(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), data...), nil
}
