// Package events publishes domain state changes to subscribers. The ledger is
// authoritative; events are notifications and may be lost.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	SplitCreated            = "split.created"
	SplitLinePaid           = "split.line_paid"
	SplitPartiallyFulfilled = "split.partially_fulfilled"
	SplitFulfilled          = "split.fulfilled"
	SplitRejected           = "split.rejected"
	DAOStatusChanged        = "dao.status_changed"
	PlanCreated             = "plan.created"
	PlanCancelled           = "plan.cancelled"
	PlanDue                 = "plan.due"
	DeploymentRecorded      = "deployment.recorded"
)

// Event is a single notification
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Subject    string    `json:"subject"` // id of the entity the event concerns
	Data       any       `json:"data,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// New builds an event stamped with a fresh id and the current time.
func New(typ, subject string, data any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       typ,
		Subject:    subject,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events to some transport.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to several publishers. Every publisher is tried;
// the returned error joins the individual failures.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
