package notify

import (
	"context"
	"time"

	"innkeep/pkg/events"
	"innkeep/pkg/logger"
)

// Publisher is the slice of the event producer the dispatcher needs.
type Publisher interface {
	Publish(ctx context.Context, msg events.Message) error
}

// Dispatcher publishes engine events. Lifecycle transitions are committed
// before dispatch and delivery is fire-and-forget: a broker outage is logged,
// never propagated back into the transaction that triggered it.
type Dispatcher struct {
	producer Publisher
	source   string
	timeout  time.Duration
	log      *logger.Logger
}

func NewDispatcher(producer Publisher, source string, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		producer: producer,
		source:   source,
		timeout:  5 * time.Second,
		log:      log,
	}
}

// Dispatch publishes one event keyed on the entity ID. Errors are swallowed
// after logging; callers must not treat dispatch as part of their own
// success/failure outcome.
func (d *Dispatcher) Dispatch(eventType, entityID, actor string, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	msg := events.NewMessage().
		WithKey(entityID).
		WithValue(payload).
		WithEventType(eventType).
		WithSource(d.source).
		WithActor(actor).
		Build()

	if err := d.producer.Publish(ctx, msg); err != nil {
		d.log.Error("Failed to dispatch event",
			"event_type", eventType,
			"entity_id", entityID,
			"error", err,
		)
		return
	}

	d.log.Debug("Event dispatched", "event_type", eventType, "entity_id", entityID)
}
