package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Organization returns the organization with the given id.
func (e *Engine) Organization(ctx context.Context, id ID) (Organization, error) {
	var org Organization
	err := e.view(ctx, func(t *txn) error {
		var err error
		org, err = t.registry().organization(ctx, id)
		return err
	})
	return org, err
}

// OrganizationExists reports whether an organization is registered.
func (e *Engine) OrganizationExists(ctx context.Context, id ID) (bool, error) {
	_, err := e.Organization(ctx, id)
	return existence(err)
}

// OrganizationIndex returns the registration position of an organization.
func (e *Engine) OrganizationIndex(ctx context.Context, id ID) (uint64, error) {
	org, err := e.Organization(ctx, id)
	if err != nil {
		return 0, err
	}
	return org.Index, nil
}

// IsOrganizationCreator reports whether caller created the organization.
// An unknown organization has no creator.
func (e *Engine) IsOrganizationCreator(ctx context.Context, id ID, caller Identity) (bool, error) {
	org, err := e.Organization(ctx, id)
	if ok, err := existence(err); !ok {
		return false, err
	}
	return org.Creator == caller, nil
}

// Organizations lists registered organizations from index from onwards.
func (e *Engine) Organizations(ctx context.Context, from uint64, limit int) ([]Organization, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	var out []Organization
	err := e.view(ctx, func(t *txn) error {
		var err error
		out, err = t.ListOrganizations(ctx, from, limit)
		if err != nil {
			return fmt.Errorf("list organizations: %w", err)
		}
		return nil
	})
	return out, err
}

// Campaign returns a campaign of an organization.
func (e *Engine) Campaign(ctx context.Context, org, id ID) (Campaign, error) {
	var c Campaign
	err := e.view(ctx, func(t *txn) error {
		var err error
		c, err = t.registry().campaign(ctx, org, id)
		return err
	})
	return c, err
}

// CampaignExists reports whether the campaign exists under org.
func (e *Engine) CampaignExists(ctx context.Context, org, id ID) (bool, error) {
	_, err := e.Campaign(ctx, org, id)
	return existence(err)
}

// CampaignIndex returns the position of a campaign within its organization.
func (e *Engine) CampaignIndex(ctx context.Context, org, id ID) (uint64, error) {
	c, err := e.Campaign(ctx, org, id)
	if err != nil {
		return 0, err
	}
	return c.Index, nil
}

// CampaignStatus returns the campaign with its derived state as of now.
func (e *Engine) CampaignStatus(ctx context.Context, org, id ID) (CampaignStatus, error) {
	var st CampaignStatus
	err := e.view(ctx, func(t *txn) error {
		c, err := t.registry().campaign(ctx, org, id)
		if err != nil {
			return err
		}
		grace, err := t.GracePeriod(ctx)
		if err != nil {
			return fmt.Errorf("load grace period: %w", err)
		}
		st = statusOf(c, t.now, grace)
		return nil
	})
	return st, err
}

// Campaigns lists an organization's campaigns in creation order.
func (e *Engine) Campaigns(ctx context.Context, org ID) ([]CampaignStatus, error) {
	var out []CampaignStatus
	err := e.view(ctx, func(t *txn) error {
		if _, err := t.registry().organization(ctx, org); err != nil {
			return err
		}
		list, err := t.ListCampaigns(ctx, org)
		if err != nil {
			return fmt.Errorf("list campaigns: %w", err)
		}
		grace, err := t.GracePeriod(ctx)
		if err != nil {
			return fmt.Errorf("load grace period: %w", err)
		}
		out = make([]CampaignStatus, 0, len(list))
		for _, c := range list {
			out = append(out, statusOf(c, t.now, grace))
		}
		return nil
	})
	return out, err
}

// Donation returns the donor's outstanding amount for a campaign. Unknown
// campaigns and donors read as zero.
func (e *Engine) Donation(ctx context.Context, campaign ID, donor Identity) (int64, error) {
	var amount int64
	err := e.view(ctx, func(t *txn) error {
		c, ok, err := t.Campaign(ctx, campaign)
		if err != nil {
			return fmt.Errorf("load campaign: %w", err)
		}
		if !ok {
			return nil
		}
		amount, err = t.ledger().outstanding(ctx, c, donor)
		return err
	})
	return amount, err
}

// GracePeriod returns the current process-wide grace period.
func (e *Engine) GracePeriod(ctx context.Context) (time.Duration, error) {
	var d time.Duration
	err := e.view(ctx, func(t *txn) error {
		var err error
		d, err = t.GracePeriod(ctx)
		return err
	})
	return d, err
}

// Balance returns the payout account of an identity.
func (e *Engine) Balance(ctx context.Context, account Identity) (int64, error) {
	var bal int64
	err := e.view(ctx, func(t *txn) error {
		var err error
		bal, err = t.Balance(ctx, account)
		return err
	})
	return bal, err
}

// Held returns the value currently in escrow custody.
func (e *Engine) Held(ctx context.Context) (int64, error) {
	var held int64
	err := e.view(ctx, func(t *txn) error {
		var err error
		held, err = t.Held(ctx)
		return err
	})
	return held, err
}

// RejectDirectTransfer is the answer to a value transfer that names no
// operation. Such transfers are never accepted.
func (e *Engine) RejectDirectTransfer(context.Context, Identity, int64) error {
	return ErrDirectTransferRejected
}

func statusOf(c Campaign, now time.Time, grace time.Duration) CampaignStatus {
	return CampaignStatus{
		Campaign:    c,
		State:       StateAt(c, now, grace),
		Pool:        c.Pool(),
		GraceEndsAt: GraceEnd(c.Timeline, grace),
		AsOf:        now,
	}
}

func existence(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}
