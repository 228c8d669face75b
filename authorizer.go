package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Authorizer decides whether an external identity may use the system. Given
// a claims assertion it resolves the existing user or provisions one from an
// account invitation, an application invitation, or the pre-authorization
// allow-list, in that order. Successful authorizations stamp the login on the
// user row, append a login history record, and write the session claims back
// onto the bag.
//
// Every failure is terminal for the attempt; the Authorizer never retries.
type Authorizer struct {
	repo         RepositoryManager
	provisioner  *Provisioner
	resolver     inviteResolver
	logger       Logger
	activitySink ActivitySink
	validate     ValidationFn
	now          func() time.Time
}

var _ AuthorizerClient = (*Authorizer)(nil)

// NewAuthorizer returns a new Authorizer
func NewAuthorizer(repo RepositoryManager) *Authorizer {
	a := &Authorizer{
		repo:         repo,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}

	a.provisioner = NewProvisioner(repo)
	a.resolver = inviteResolver{repo: repo, logger: a.logger, now: a.now}

	return a
}

func (a *Authorizer) WithLogger(logger Logger) *Authorizer {
	if logger == nil {
		return a
	}
	a.logger = logger
	a.provisioner = a.provisioner.WithLogger(logger)
	a.resolver.logger = logger
	return a
}

// WithClock overrides the time source for expiry checks and login stamps,
// mostly for tests.
func (a *Authorizer) WithClock(now func() time.Time) *Authorizer {
	if now == nil {
		return a
	}
	a.now = now
	a.provisioner = a.provisioner.WithClock(now)
	a.resolver.now = now
	return a
}

// WithActivitySink configures an ActivitySink for emitting authorization
// events.
func (a *Authorizer) WithActivitySink(sink ActivitySink) *Authorizer {
	a.activitySink = normalizeActivitySink(sink)
	return a
}

// WithValidationFn installs a caller veto that runs after the user is
// resolved and before the login is finalized. An error from the callback
// aborts and rolls back the whole attempt.
func (a *Authorizer) WithValidationFn(fn ValidationFn) *Authorizer {
	a.validate = fn
	return a
}

// Authorize resolves the claims to a local user, provisioning on first login
// when an invitation or pre-authorization allows it. On success the bag
// carries the user id and role claims, the user's UtcLastLogin and Version
// are bumped, and one login history row is appended.
func (a *Authorizer) Authorize(ctx context.Context, bag *ClaimsBag, device DeviceInfo) (*AppUser, error) {
	principal, err := ToPrincipal(bag)
	if err != nil {
		a.logger.Error("authorization rejected, invalid identity", "error", err)
		a.emitEvent(ctx, ActivityEventAuthorizeFailure, "", "", map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	email := principal.Email

	var user *AppUser
	var provisioned bool
	err = a.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, provisioned, err = a.authorizeTx(ctx, tx, principal, bag, device)
		return err
	})
	if err != nil {
		a.logger.Error("authorization rejected", "email", email, "error", err)
		a.emitEvent(ctx, ActivityEventAuthorizeFailure, email, "", map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	StampPrincipal(bag, user)

	if provisioned {
		a.emitEvent(ctx, ActivityEventUserProvisioned, user.Email, user.ID.String(), map[string]any{
			"account_id": user.AccountID.String(),
			"roles":      user.RoleNames(),
		})
	}

	a.logger.Info("authorization succeeded", "email", user.Email, "user_id", user.ID)
	a.emitEvent(ctx, ActivityEventAuthorizeSuccess, user.Email, user.ID.String(), map[string]any{
		"provisioned": provisioned,
	})

	return user, nil
}

// authorizeTx walks the decision ladder inside one transaction: existing user
// fast path, account invite, application invite, allow-list, otherwise
// unauthenticated.
func (a *Authorizer) authorizeTx(ctx context.Context, tx bun.Tx, principal *AppUser, bag *ClaimsBag, device DeviceInfo) (*AppUser, bool, error) {
	now := a.now()

	user, err := a.repo.Users().GetByEmailTx(ctx, tx, principal.Email, IncludeAccount(), IncludeRoles())
	if err != nil && !repository.IsRecordNotFound(err) {
		return nil, false, err
	}

	provisioned := false

	if user != nil && err == nil {
		if aerr := ensureUserActive(user, now); aerr != nil {
			return nil, false, aerr
		}
	} else {
		user, err = a.provisionTx(ctx, tx, principal)
		if err != nil {
			return nil, false, err
		}
		provisioned = true
	}

	if a.validate != nil {
		if verr := a.validate(ctx, user, bag); verr != nil {
			a.logger.Warn("authorization vetoed by validation callback",
				"email", user.Email, "error", verr)
			return nil, false, verr
		}
	}

	enriched, err := a.repo.Users().TouchLoginTx(ctx, tx, user, now)
	if err != nil {
		return nil, false, err
	}
	enriched.Account = user.Account
	enriched.Roles = user.Roles

	if _, err := a.repo.LoginHistory().RecordTx(ctx, tx, enriched.Email, now, device); err != nil {
		return nil, false, err
	}

	return enriched, provisioned, nil
}

// provisionTx tries each admission door in spec order. No door matching is
// an unauthenticated rejection, not a lookup error.
func (a *Authorizer) provisionTx(ctx context.Context, tx bun.Tx, principal *AppUser) (*AppUser, error) {
	invite, err := a.resolver.FindAccountInvite(ctx, tx, principal.Email)
	if err != nil {
		return nil, err
	}
	if invite != nil {
		return a.provisioner.ProvisionFromAccountInviteTx(ctx, tx, invite, principal)
	}

	appInvite, err := a.resolver.FindApplicationInvite(ctx, tx, principal.Email)
	if err != nil {
		return nil, err
	}
	if appInvite != nil {
		return a.provisioner.ProvisionFromApplicationInviteTx(ctx, tx, appInvite, principal)
	}

	entry, err := a.resolver.FindPreAuthorized(ctx, tx, principal.Email)
	if err != nil {
		return nil, err
	}
	if entry != nil {
		return a.provisioner.ProvisionPreAuthorizedTx(ctx, tx, entry, principal)
	}

	return nil, ErrUnauthenticated.Clone().
		WithMetadata(map[string]any{"email": principal.Email})
}

// ensureUserActive enforces account-level expiration first, then the user's
// own active-until window.
func ensureUserActive(user *AppUser, now time.Time) error {
	if user.Account != nil && user.Account.Expired(now) {
		return ErrAccountExpired.Clone().
			WithMetadata(map[string]any{
				"email":      user.Email,
				"account_id": user.AccountID.String(),
				"expired_on": user.Account.UtcExpirationDate,
			})
	}

	if user.ActiveWindowExpired(now) {
		return ErrAccountExpired.Clone().
			WithMetadata(map[string]any{
				"email":        user.Email,
				"active_until": user.UtcActiveUntil,
			})
	}

	return nil
}

func (a *Authorizer) emitEvent(ctx context.Context, eventType ActivityEventType, email, userID string, metadata map[string]any) {
	actor := ActorRef{ID: userID, Type: "app_user"}
	if userID == "" {
		actor = ActorRef{Type: "unknown"}
	}

	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		Email:      email,
		Metadata:   metadata,
		OccurredAt: a.now(),
	}

	if err := a.activitySink.Record(ctx, event); err != nil {
		a.logger.Warn("activity sink failure", "event", eventType, "error", err)
	}
}
