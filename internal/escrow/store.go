package escrow

import (
	"context"
	"time"
)

// Store is the key-value surface the escrow runs on. Update runs fn inside a
// single-writer transaction: either every write fn made is committed or, when
// fn (or the commit) fails, none is. View runs fn against a consistent
// snapshot and must not be used for writes.
type Store interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
}

// Tx is the view of the store inside a transaction. The bool results of the
// lookups report presence; absence is not an error at this level.
type Tx interface {
	Organization(ctx context.Context, id ID) (Organization, bool, error)
	OrganizationByCreator(ctx context.Context, creator Identity) (ID, bool, error)
	OrganizationCount(ctx context.Context) (uint64, error)
	// ListOrganizations returns up to limit organizations with Index >= from,
	// ordered by Index.
	ListOrganizations(ctx context.Context, from uint64, limit int) ([]Organization, error)
	PutOrganization(ctx context.Context, org Organization) error

	Campaign(ctx context.Context, id ID) (Campaign, bool, error)
	CampaignCount(ctx context.Context, org ID) (uint64, error)
	// ListCampaigns returns the organization's campaigns ordered by Index.
	ListCampaigns(ctx context.Context, org ID) ([]Campaign, error)
	PutCampaign(ctx context.Context, c Campaign) error

	// Donation returns the stored record, or a zero-amount record when the
	// donor never contributed.
	Donation(ctx context.Context, campaign ID, donor Identity) (Donation, error)
	PutDonation(ctx context.Context, d Donation) error

	GracePeriod(ctx context.Context) (time.Duration, error)
	SetGracePeriod(ctx context.Context, d time.Duration) error

	// Held is the total value in escrow custody across all campaigns.
	Held(ctx context.Context) (int64, error)
	SetHeld(ctx context.Context, amount int64) error

	// Balance is the payout account of an identity (refunds and payouts).
	Balance(ctx context.Context, account Identity) (int64, error)
	SetBalance(ctx context.Context, account Identity, amount int64) error
}

// DefaultGracePeriod applies until an administrator changes it.
const DefaultGracePeriod = 14 * 24 * time.Hour
