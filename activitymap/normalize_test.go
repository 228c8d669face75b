package activitymap_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := accounts.ActivityEvent{
		EventType:  accounts.ActivityEventAuthorizeSuccess,
		Actor:      accounts.ActorRef{ID: "user-100", Type: "app_user"},
		UserID:     "user-100",
		Email:      "jane@example.com",
		Metadata: map[string]any{
			"provisioned": true,
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "user-100" {
		t.Fatalf("expected actor_id user-100, got %q", out.ActorID)
	}
	if out.Verb != string(accounts.ActivityEventAuthorizeSuccess) {
		t.Fatalf("expected verb %q, got %q", accounts.ActivityEventAuthorizeSuccess, out.Verb)
	}
	if out.ObjectType != "app_user" {
		t.Fatalf("expected object_type app_user, got %q", out.ObjectType)
	}
	if out.ObjectID != "user-100" {
		t.Fatalf("expected object_id user-100, got %q", out.ObjectID)
	}
	if out.Channel != "accounts" {
		t.Fatalf("expected channel accounts, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["provisioned"] != true {
		t.Fatalf("expected metadata provisioned true, got %#v", out.Metadata["provisioned"])
	}
	if out.Metadata[activitymap.MetadataKeyActorType] != "app_user" {
		t.Fatalf("expected metadata actor_type app_user, got %#v", out.Metadata[activitymap.MetadataKeyActorType])
	}
	if out.Metadata[activitymap.MetadataKeyEmail] != "jane@example.com" {
		t.Fatalf("expected metadata email jane@example.com, got %#v", out.Metadata[activitymap.MetadataKeyEmail])
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	event := accounts.ActivityEvent{
		EventType: accounts.ActivityEventTokenRedeemed,
		Actor:     accounts.ActorRef{Type: "app_user"},
		UserID:    "user-200",
		Metadata: map[string]any{
			"refresh_token_id":               "token-1",
			activitymap.MetadataKeyActorType: "existing",
		},
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("security"),
		activitymap.WithDefaultObjectType("refresh_token"),
		activitymap.WithObjectIDResolver(func(e accounts.ActivityEvent) string {
			if v, ok := e.Metadata["refresh_token_id"].(string); ok {
				return v
			}
			return ""
		}),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != "refresh_token" {
		t.Fatalf("expected object_type refresh_token, got %q", out.ObjectType)
	}
	if out.ObjectID != "token-1" {
		t.Fatalf("expected object_id token-1, got %q", out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyActorType] != "existing" {
		t.Fatalf("expected existing actor_type preserved, got %#v", out.Metadata[activitymap.MetadataKeyActorType])
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set when input is zero")
	}
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  accounts.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses actor id when present",
			event:  accounts.ActivityEvent{Actor: accounts.ActorRef{ID: "actor-1"}, UserID: "user-1"},
			expect: "actor-1",
		},
		{
			name:   "uses user id when actor id missing",
			event:  accounts.ActivityEvent{Actor: accounts.ActorRef{ID: ""}, UserID: "user-2"},
			expect: "user-2",
		},
		{
			name:   "uses default fallback when actor and user missing",
			event:  accounts.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "uses configured fallback when actor and user missing",
			event:  accounts.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("job")},
			expect: "job",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}

func TestSinkForwardsNormalizedEvents(t *testing.T) {
	t.Parallel()

	var got activitymap.Normalized
	sink := activitymap.Sink(func(_ context.Context, n activitymap.Normalized) error {
		got = n
		return nil
	}, activitymap.WithDefaultChannel("audit"))

	event := accounts.ActivityEvent{
		EventType:  accounts.ActivityEventTokenIssued,
		Actor:      accounts.ActorRef{ID: "user-7", Type: "app_user"},
		UserID:     "user-7",
		Email:      "val@example.com",
		OccurredAt: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC),
	}

	if err := sink.Record(context.Background(), event); err != nil {
		t.Fatalf("unexpected sink error: %v", err)
	}

	if got.Verb != string(accounts.ActivityEventTokenIssued) {
		t.Fatalf("expected verb %q, got %q", accounts.ActivityEventTokenIssued, got.Verb)
	}
	if got.Channel != "audit" {
		t.Fatalf("expected channel audit, got %q", got.Channel)
	}
	if got.Metadata[activitymap.MetadataKeyEmail] != "val@example.com" {
		t.Fatalf("expected metadata email, got %#v", got.Metadata)
	}
}
