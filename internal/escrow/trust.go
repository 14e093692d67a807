package escrow

import (
	"context"
	"fmt"
	"math"
	"time"
)

// IsAdministrator reports whether id may run administrative operations.
func (e *Engine) IsAdministrator(id Identity) bool {
	_, ok := e.admins[id]
	return ok
}

func (e *Engine) requireAdmin(caller Identity) error {
	if err := requireIdentity(caller); err != nil {
		return err
	}
	if !e.IsAdministrator(caller) {
		return ErrNotAdministrator
	}
	return nil
}

// UpdateTrustScore overwrites an organization's trust score.
func (e *Engine) UpdateTrustScore(ctx context.Context, caller Identity, org ID, score int64) (Organization, error) {
	if err := e.requireAdmin(caller); err != nil {
		return Organization{}, err
	}
	var out Organization
	err := e.update(ctx, func(t *txn) error {
		o, err := t.registry().organization(ctx, org)
		if err != nil {
			return err
		}
		o.TrustScore = score
		if err := t.PutOrganization(ctx, o); err != nil {
			return fmt.Errorf("store organization: %w", err)
		}
		t.emit(Event{Type: EventTrustScoreUpdated, OrganizationID: org, Identity: caller, Score: score})
		out = o
		return nil
	})
	return out, err
}

// VerifyOrganization marks an organization verified and sets its base score
// in the same write.
func (e *Engine) VerifyOrganization(ctx context.Context, caller Identity, org ID, baseScore int64) (Organization, error) {
	if err := e.requireAdmin(caller); err != nil {
		return Organization{}, err
	}
	var out Organization
	err := e.update(ctx, func(t *txn) error {
		o, err := t.registry().organization(ctx, org)
		if err != nil {
			return err
		}
		o.Verified = true
		o.TrustScore = baseScore
		if err := t.PutOrganization(ctx, o); err != nil {
			return fmt.Errorf("store organization: %w", err)
		}
		t.emit(Event{Type: EventOrganizationVerified, OrganizationID: org, Identity: caller, Score: baseScore})
		out = o
		return nil
	})
	return out, err
}

// GracePeriodFromSeconds validates a grace period given in whole seconds.
func GracePeriodFromSeconds(secs int64) (time.Duration, error) {
	if secs < 0 || secs > int64(math.MaxInt64/int64(time.Second)) {
		return 0, ErrInvalidGracePeriod
	}
	return time.Duration(secs) * time.Second, nil
}

// UpdateGracePeriod changes the process-wide grace period. It affects every
// later state evaluation; payouts already made are final.
func (e *Engine) UpdateGracePeriod(ctx context.Context, caller Identity, secs int64) (time.Duration, error) {
	if err := e.requireAdmin(caller); err != nil {
		return 0, err
	}
	d, err := GracePeriodFromSeconds(secs)
	if err != nil {
		return 0, err
	}
	err = e.update(ctx, func(t *txn) error {
		if err := t.SetGracePeriod(ctx, d); err != nil {
			return fmt.Errorf("store grace period: %w", err)
		}
		t.emit(Event{Type: EventGracePeriodUpdated, Identity: caller, GracePeriod: secs})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return d, nil
}
