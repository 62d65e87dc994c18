package triage

import (
	"context"
	"time"
)

// EventType names the lifecycle step a notification is about.
type EventType string

const (
	EventRaised     EventType = "raised"
	EventDispatched EventType = "dispatched"
	EventResolved   EventType = "resolved"
)

// notifyTimeout bounds a single notifier call.
const notifyTimeout = 15 * time.Second

// Event is a lifecycle change handed to a Notifier.
type Event struct {
	Type  EventType
	Alert Alert
	At    time.Time
}

// Notifier receives lifecycle events after they are committed to the store.
type Notifier interface {
	Notify(ctx context.Context, ev *Event) error
}

// notify delivers ev asynchronously. Delivery failures are logged and never
// affect the operation that produced the event.
func (e *Engine) notify(ctx context.Context, typ EventType, al *Alert) {
	if e.notifier == nil {
		return
	}
	ev := &Event{Type: typ, Alert: *al, At: e.now()}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := e.notifier.Notify(nctx, ev); err != nil {
			e.logger.Error(nctx, err, "failed to send notification",
				"alert_id", ev.Alert.ID,
				"event", ev.Type,
			)
		}
	}()
}
