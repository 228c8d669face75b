package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAuthorizeSuccess ActivityEventType = "accounts.authorize.success"
	ActivityEventAuthorizeFailure ActivityEventType = "accounts.authorize.failure"
	ActivityEventUserProvisioned  ActivityEventType = "accounts.user.provisioned"
	ActivityEventTokenIssued      ActivityEventType = "accounts.token.issued"
	ActivityEventTokenRedeemed    ActivityEventType = "accounts.token.redeemed"
	ActivityEventTokenRevoked     ActivityEventType = "accounts.token.revoked"
)

// ActorRef identifies who triggered an event.
type ActorRef struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Email      string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
