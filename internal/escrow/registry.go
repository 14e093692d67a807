package escrow

import (
	"context"
	"fmt"
	"time"
)

// registry enforces existence, uniqueness and creator invariants over the
// organization and campaign tables of one transaction.
type registry struct {
	tx Tx
}

func (r registry) organization(ctx context.Context, id ID) (Organization, error) {
	org, ok, err := r.tx.Organization(ctx, id)
	if err != nil {
		return Organization{}, fmt.Errorf("load organization: %w", err)
	}
	if !ok {
		return Organization{}, ErrNotFound
	}
	return org, nil
}

// campaign loads a campaign and checks it belongs to the organization.
func (r registry) campaign(ctx context.Context, org, id ID) (Campaign, error) {
	c, ok, err := r.tx.Campaign(ctx, id)
	if err != nil {
		return Campaign{}, fmt.Errorf("load campaign: %w", err)
	}
	if !ok || c.OrganizationID != org {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (r registry) createOrganization(ctx context.Context, name string, desc Hash, creator Identity, now time.Time) (Organization, error) {
	if err := validName(name); err != nil {
		return Organization{}, err
	}
	id := OrganizationID(name, desc)
	if _, ok, err := r.tx.Organization(ctx, id); err != nil {
		return Organization{}, fmt.Errorf("load organization: %w", err)
	} else if ok {
		return Organization{}, ErrAlreadyExists
	}
	if _, owns, err := r.tx.OrganizationByCreator(ctx, creator); err != nil {
		return Organization{}, fmt.Errorf("lookup creator: %w", err)
	} else if owns {
		return Organization{}, ErrCreatorAlreadyOwnsOrganization
	}
	n, err := r.tx.OrganizationCount(ctx)
	if err != nil {
		return Organization{}, fmt.Errorf("count organizations: %w", err)
	}
	org := Organization{
		ID:          id,
		Index:       n,
		Name:        name,
		Description: desc,
		Creator:     creator,
		CreatedAt:   now,
	}
	if err := r.tx.PutOrganization(ctx, org); err != nil {
		return Organization{}, fmt.Errorf("store organization: %w", err)
	}
	return org, nil
}

type campaignSpec struct {
	Name        string
	Description Hash
	Target      int64
	Timeline    int64
}

func (r registry) addCampaign(ctx context.Context, orgID ID, spec campaignSpec, caller Identity, now time.Time) (Campaign, error) {
	org, err := r.organization(ctx, orgID)
	if err != nil {
		return Campaign{}, err
	}
	if org.Creator != caller {
		return Campaign{}, ErrNotOrganizationCreator
	}
	if err := validName(spec.Name); err != nil {
		return Campaign{}, err
	}
	if spec.Target <= 0 {
		return Campaign{}, ErrZeroAmount
	}
	id := CampaignID(spec.Name, spec.Description, spec.Target, spec.Timeline, orgID)
	if _, ok, err := r.tx.Campaign(ctx, id); err != nil {
		return Campaign{}, fmt.Errorf("load campaign: %w", err)
	} else if ok {
		return Campaign{}, ErrAlreadyExists
	}
	n, err := r.tx.CampaignCount(ctx, orgID)
	if err != nil {
		return Campaign{}, fmt.Errorf("count campaigns: %w", err)
	}
	c := Campaign{
		ID:             id,
		OrganizationID: orgID,
		Index:          n,
		Name:           spec.Name,
		Description:    spec.Description,
		TargetAmount:   spec.Target,
		Timeline:       spec.Timeline,
		CreatedAt:      now,
	}
	if err := r.tx.PutCampaign(ctx, c); err != nil {
		return Campaign{}, fmt.Errorf("store campaign: %w", err)
	}
	return c, nil
}
