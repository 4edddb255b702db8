package audit

import (
	"context"
	"time"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

type contextKey string

const (
	actorKey     contextKey = "audit_actor"
	requestIDKey contextKey = "audit_request_id"
)

// WithActor records who is performing the mutations made with ctx
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor set by WithActor, or "system"
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey).(string); ok && actor != "" {
		return actor
	}
	return "system"
}

// WithRequestID attaches a request id to audit events logged with ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// NewEvent creates an event with the common fields populated from ctx
func NewEvent(ctx context.Context, eventType EventType, resourceType ResourceType, resourceID string) *Event {
	event := &Event{
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		Status:       EventStatusSuccess,
		Actor:        ActorFromContext(ctx),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Metadata:     make(map[string]interface{}),
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		event.RequestID = id
	}
	return event
}

// Fail marks the event as failed with err. Rejected outcomes use EventStatusRejected.
func (e *Event) Fail(status EventStatus, err error) *Event {
	e.Status = status
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	return e
}

// NoOpLogger discards every event
type NoOpLogger struct{}

func (NoOpLogger) Log(ctx context.Context, event *Event) error { return nil }

func (NoOpLogger) Close() error { return nil }
